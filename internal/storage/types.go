// Package storage provides the SQL adapter and domain types for buckets,
// events, key-value settings, and API keys.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pulsedb/pulsedb/internal/config"
)

const (
	postgresDriver = "postgres"
	ctxTimeout     = 5 * time.Second
)

type (
	// Connection wraps a pooled *sql.DB.
	Connection struct {
		*sql.DB
	}

	// Bucket is a named stream of events belonging to one watcher/client/host.
	// Start/End are derived aggregates, populated by LoadAllBuckets and left
	// untouched by runtime inserts (see BucketMetadata).
	Bucket struct {
		BID      int64
		ID       string
		Type     string
		Client   string
		Hostname string
		Created  time.Time
		Data     []byte // raw JSON object bag
		Metadata BucketMetadata
	}

	// BucketMetadata holds the derived first/last event timestamps for a
	// bucket, snapshotted at cache-load time.
	BucketMetadata struct {
		Start *time.Time
		End   *time.Time
	}

	// Event is a time interval [Timestamp, Timestamp+Duration) with an
	// opaque JSON payload.
	Event struct {
		ID        int64
		BucketID  string
		Timestamp time.Time
		Duration  time.Duration // microsecond precision, signed
		Data      []byte        // raw JSON object
	}

	// KeyValue is a JSON-valued setting keyed by a string.
	KeyValue struct {
		Key       string
		Value     []byte // raw JSON
		UpdatedAt time.Time
	}

	// APIKey is a credential record. Key material is never stored; only
	// KeyHash (the SHA-256 hex digest of the plaintext) is persisted.
	APIKey struct {
		ID          int64
		KeyHash     string
		ClientID    string
		Description *string
		CreatedAt   time.Time
		LastUsedAt  *time.Time
		IsActive    bool
	}
)

// NewConnection opens a pooled connection using cfg and verifies
// reachability with an immediate, timed health check.
func NewConnection(cfg *config.Config) (*Connection, error) {
	db, err := sql.Open(postgresDriver, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error { //nolint:contextcheck
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), ctxTimeout)
		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the pool. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Stats exposes pool statistics for monitoring.
func (c *Connection) Stats() sql.DBStats {
	return c.DB.Stats()
}
