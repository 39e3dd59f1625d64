package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tsheringkof667-bot/Bank/internal/config"
	"github.com/tsheringkof667-bot/Bank/internal/infra"
	"github.com/tsheringkof667-bot/Bank/internal/logging"
	"github.com/tsheringkof667-bot/Bank/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := infra.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
				logger.Error("run migrations", "error", err)
				os.Exit(1)
			}
		}
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.StoreBusyTimeout)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set; idempotency disabled and notifications go to the log")
	}

	srv, err := server.New(cfg, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		if db != nil {
			db.Close()
		}
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
