package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envDevelopment = "development"

// Config captures application runtime configuration loaded from the environment,
// optionally seeded from a .env file.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	MigrationsPath string
	AutoMigrate    bool
	RateLimit      string

	StoreBusyTimeout   time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	DailyTransferLimit decimal.Decimal
	WithdrawalLimit    decimal.Decimal
	MaxAccountsPerUser int
	DefaultCurrency    string

	LoanInterestRate decimal.Decimal
	EMIPenaltyRate   decimal.Decimal
	OverdueWindow    time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "KoniBank")
	v.SetDefault("APP_ENV", envDevelopment)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("MIGRATIONS_PATH", "migrations")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("RATE_LIMIT", "120-M")
	v.SetDefault("STORE_BUSY_TIMEOUT", "5s")
	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_OPEN_TIMEOUT", "30s")
	v.SetDefault("DAILY_TRANSFER_LIMIT", "50000")
	v.SetDefault("WITHDRAWAL_LIMIT", "20000")
	v.SetDefault("MAX_ACCOUNTS_PER_USER", 3)
	v.SetDefault("DEFAULT_CURRENCY", "INR")
	v.SetDefault("LOAN_INTEREST_RATE", "8.5")
	v.SetDefault("EMI_PENALTY_RATE", "2")
	v.SetDefault("OVERDUE_WINDOW", "720h")
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:            v.GetString("APP_NAME"),
		AppEnv:             strings.ToLower(v.GetString("APP_ENV")),
		Port:               v.GetString("PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		MigrationsPath:     v.GetString("MIGRATIONS_PATH"),
		AutoMigrate:        v.GetBool("AUTO_MIGRATE"),
		RateLimit:          v.GetString("RATE_LIMIT"),
		MaxAccountsPerUser: v.GetInt("MAX_ACCOUNTS_PER_USER"),
		DefaultCurrency:    strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
	}
	if n := v.GetInt("BREAKER_MAX_FAILURES"); n > 0 {
		cfg.BreakerMaxFailures = uint32(n)
	} else {
		return Config{}, fmt.Errorf("invalid BREAKER_MAX_FAILURES: must be positive")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"STORE_BUSY_TIMEOUT", &cfg.StoreBusyTimeout},
		{"BREAKER_OPEN_TIMEOUT", &cfg.BreakerOpenTimeout},
		{"OVERDUE_WINDOW", &cfg.OverdueWindow},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", d.key, v.GetString(d.key))
		}
		*d.dst = parsed
	}

	amounts := []struct {
		key      string
		dst      *decimal.Decimal
		positive bool
	}{
		{"DAILY_TRANSFER_LIMIT", &cfg.DailyTransferLimit, true},
		{"WITHDRAWAL_LIMIT", &cfg.WithdrawalLimit, true},
		{"LOAN_INTEREST_RATE", &cfg.LoanInterestRate, true},
		{"EMI_PENALTY_RATE", &cfg.EMIPenaltyRate, false},
	}
	for _, a := range amounts {
		parsed, err := decimal.NewFromString(v.GetString(a.key))
		if err != nil || parsed.IsNegative() || (a.positive && parsed.IsZero()) {
			return Config{}, fmt.Errorf("invalid %s: %q", a.key, v.GetString(a.key))
		}
		*a.dst = parsed
	}

	if cfg.MaxAccountsPerUser <= 0 {
		return Config{}, fmt.Errorf("invalid MAX_ACCOUNTS_PER_USER: must be positive")
	}
	if cfg.DatabaseURL == "" && !cfg.IsDevelopment() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set outside %s", envDevelopment)
	}
	return cfg, nil
}

// IsDevelopment reports whether the app runs in the development environment,
// where the in-memory store stands in for Postgres.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == envDevelopment
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
