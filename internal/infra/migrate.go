package infra

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// RunMigrations applies all pending up migrations found at path (a directory) against
// the database at url. A database already at the latest version is not an error.
func RunMigrations(url, path string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("close migration connection", slog.Any("error", cerr))
		}
	}()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		logger.Info("no new migrations to apply")
	} else {
		version, dirty, _ := m.Version()
		logger.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}
