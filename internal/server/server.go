package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/tsheringkof667-bot/Bank/internal/config"
	"github.com/tsheringkof667-bot/Bank/internal/httpx"
	"github.com/tsheringkof667-bot/Bank/internal/routes"
	"github.com/tsheringkof667-bot/Bank/internal/store"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	store  store.Store
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// The server takes ownership of db through the store it builds.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: httpx.ErrorHandler(logger),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Registry: reg})
	if err != nil {
		return nil, err
	}
	return &Server{app: app, cfg: cfg, store: st, logger: logger}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then releases the store.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.app.ShutdownWithContext(ctx), s.store.Close())
}
