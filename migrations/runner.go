package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// Runner defines the operations a migration-aware caller needs: the
	// worker runs Up at startup (tolerating errors), cmd/migrate exposes
	// all of them as a standalone CLI.
	Runner interface {
		Up() error
		Down() error
		Status() error
		Version() error
		Drop() error
		Close() error
	}

	runner struct {
		migrate *migrate.Migrate
		db      *sql.DB
		set     *Set
		logger  *slog.Logger
	}

	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)
var _ io.Writer = (*migrateLogger)(nil)

// NewRunner validates the embedded migration set, pings db, and wires a
// golang-migrate instance against it using the iofs source driver.
func NewRunner(db *sql.DB, logger *slog.Logger) (Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	set := NewSet(nil)

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("validate embedded migrations: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(set.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &runner{migrate: m, db: db, set: set, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *runner) Up() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no new migrations to apply")
	} else {
		r.logger.Info("all migrations applied")
	}

	return nil
}

// Down rolls back the most recently applied migration.
func (r *runner) Down() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no migrations to roll back")
	} else {
		r.logger.Info("last migration rolled back")
	}

	return nil
}

// Status logs the current migration version and dirty state.
func (r *runner) Status() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			r.logger.Info("migration status", "version", 0, "applied", false)

			return nil
		}

		return fmt.Errorf("get migration version: %w", err)
	}

	r.logger.Info("migration status", "version", ver, "dirty", dirty)

	return nil
}

// Version logs the current migration version.
func (r *runner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			r.logger.Info("current version", "version", 0, "applied", false)

			return nil
		}

		return fmt.Errorf("get migration version: %w", err)
	}

	r.logger.Info("current version", "version", ver, "dirty", dirty)

	return nil
}

// Drop drops all tables. Destructive; used only by the standalone CLI.
func (r *runner) Drop() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}

	r.logger.Warn("all tables dropped")

	return nil
}

// Close releases the migrate instance's source and database handles.
func (r *runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close: %w", dbErr))
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return true
}

func (l *migrateLogger) Write(p []byte) (int, error) {
	l.logger.Info(string(p))

	return len(p), nil
}
