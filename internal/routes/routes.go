package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tsheringkof667-bot/Bank/internal/account"
	"github.com/tsheringkof667-bot/Bank/internal/audit"
	"github.com/tsheringkof667-bot/Bank/internal/config"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/metrics"
	"github.com/tsheringkof667-bot/Bank/internal/middleware"
	"github.com/tsheringkof667-bot/Bank/internal/movement"
	"github.com/tsheringkof667-bot/Bank/internal/notification"
	"github.com/tsheringkof667-bot/Bank/internal/store"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

const (
	notificationChannel = "bank:notifications"
	auditStream         = "bank:audit"
	auditStreamMaxLen   = 100_000
	metricsNamespace    = "bank"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional in development.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes. The returned store
// belongs to the caller, who closes it on shutdown.
func Setup(app *fiber.App, d Deps) (store.Store, error) {
	if !d.Cfg.IsDevelopment() && d.DB == nil {
		return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	recorder, err := metrics.NewPrometheus(metricsNamespace, d.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var inner store.Store
	if d.DB != nil {
		inner = store.NewPostgres(d.DB, transactions.NewTransactionID, d.Cfg.StoreBusyTimeout)
	} else {
		d.Logger.Warn("DATABASE_URL not set; using in-memory store")
		inner = store.NewMemory(store.MemoryOptions{BusyTimeout: d.Cfg.StoreBusyTimeout})
	}
	st := store.NewResilient(inner, store.BreakerConfig{
		Name:        "store",
		MaxFailures: d.Cfg.BreakerMaxFailures,
		OpenTimeout: d.Cfg.BreakerOpenTimeout,
	}, recorder, d.Logger)

	var (
		notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
		sink     audit.Sink            = audit.NewLoggerSink(d.Logger)
	)
	if d.Cache != nil {
		notifier = notification.NewRedisNotifier(d.Cache, notificationChannel)
		sink = audit.NewStreamSink(d.Cache, auditStream, auditStreamMaxLen)
	}

	terms := loan.Terms{
		InterestRate:  d.Cfg.LoanInterestRate,
		PenaltyRate:   d.Cfg.EMIPenaltyRate,
		OverdueWindow: d.Cfg.OverdueWindow,
	}
	accountSvc := account.NewService(st, account.Options{
		MaxPerOwner: d.Cfg.MaxAccountsPerUser,
		Currency:    d.Cfg.DefaultCurrency,
		Audit:       sink,
		Logger:      d.Logger,
	})
	loanSvc := loan.NewService(st, terms, notifier, sink, d.Logger)
	movementSvc := movement.NewService(st, movement.Options{
		Limits:    movement.Limits{DailyTransfer: d.Cfg.DailyTransferLimit, Withdrawal: d.Cfg.WithdrawalLimit},
		LoanTerms: terms,
		Notifier:  notifier,
		Audit:     sink,
		Metrics:   recorder,
		Logger:    d.Logger,
	})

	limiter, err := middleware.NewLimiter(d.Cfg.RateLimit, d.Cache)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1", middleware.CallerIdentity(), middleware.RateLimit(limiter, d.Logger))
	RegisterAccountRoutes(api, account.NewHandler(accountSvc))

	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	movements := movement.NewHandler(movementSvc)
	RegisterMovementRoutes(api, movements, idempotent)
	RegisterLoanRoutes(api, loan.NewHandler(loanSvc), movements, idempotent)

	return st, nil
}
