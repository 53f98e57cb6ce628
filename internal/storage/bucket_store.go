package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a unique-constraint
// violation (23505).
const uniqueViolation = "23505"

// Adapter is the typed CRUD layer over buckets, events, and key-value
// settings. The worker reaches the pool only through it; the api-key store
// (internal/apikeys) runs its own queries on the shared Connection.
type Adapter struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAdapter wraps conn with a logger for adapter-level diagnostics.
func NewAdapter(conn *Connection, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{conn: conn, logger: logger}
}

// ConnectionStats exposes the pool's statistics for monitoring.
func (a *Adapter) ConnectionStats() sql.DBStats {
	return a.conn.Stats()
}

// LoadAllBuckets runs a single query LEFT OUTER JOINing events to compute
// first_event/last_event per bucket, returning a map keyed by bucket_id.
// Called exactly once, at worker start.
func (a *Adapter) LoadAllBuckets(ctx context.Context) (map[string]*Bucket, error) {
	const q = `
		SELECT b.id, b.bucket_id, b.type, b.client, b.hostname, b.created, b.data,
		       MIN(e.timestamp) AS first_event,
		       MAX(e.timestamp + (e.duration * INTERVAL '1 microsecond')) AS last_event
		FROM buckets b
		LEFT JOIN events e ON e.bucket_id = b.bucket_id
		GROUP BY b.id, b.bucket_id, b.type, b.client, b.hostname, b.created, b.data`

	rows, err := a.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, InternalError("load all buckets", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*Bucket)

	for rows.Next() {
		b := &Bucket{}

		var start, end sql.NullTime

		if err := rows.Scan(&b.BID, &b.ID, &b.Type, &b.Client, &b.Hostname, &b.Created, &b.Data, &start, &end); err != nil {
			return nil, InternalError("scan bucket row", err)
		}

		if start.Valid {
			t := start.Time
			b.Metadata.Start = &t
		}

		if end.Valid {
			t := end.Time
			b.Metadata.End = &t
		}

		out[b.ID] = b
	}

	if err := rows.Err(); err != nil {
		return nil, InternalError("iterate bucket rows", err)
	}

	return out, nil
}

// CreateBucket inserts a new bucket, assigning BID and Created on success.
// A unique violation on bucket_id returns BucketAlreadyExists.
func (a *Adapter) CreateBucket(ctx context.Context, b *Bucket) error {
	const q = `
		INSERT INTO buckets (bucket_id, name, type, client, hostname, created, data)
		VALUES ($1, $1, $2, $3, $4, COALESCE($5, now()), $6)
		RETURNING id, created`

	var created sql.NullTime
	if !b.Created.IsZero() {
		created.Time = b.Created
		created.Valid = true
	}

	row := a.conn.QueryRowContext(ctx, q, b.ID, b.Type, b.Client, b.Hostname, created, b.Data)

	if err := row.Scan(&b.BID, &b.Created); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return BucketAlreadyExists(b.ID)
		}

		return InternalError(fmt.Sprintf("create bucket %s", b.ID), err)
	}

	return nil
}

// DeleteBucket deletes a bucket by id; its events cascade via the schema's
// ON DELETE CASCADE. Zero rows affected returns NoSuchBucket.
func (a *Adapter) DeleteBucket(ctx context.Context, id string) error {
	const q = `DELETE FROM buckets WHERE bucket_id = $1`

	res, err := a.conn.ExecContext(ctx, q, id)
	if err != nil {
		return InternalError(fmt.Sprintf("delete bucket %s", id), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return InternalError("rows affected", err)
	}

	if n == 0 {
		return NoSuchBucket(id)
	}

	return nil
}
