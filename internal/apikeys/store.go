package apikeys

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pulsedb/pulsedb/internal/storage"
)

const (
	opCreated = "created"
	opRevoked = "revoked"
)

// Store is a hash-indexed credential store backed directly by the SQL
// pool; it holds only a connection reference and has no mutable state of
// its own, so it is safe to call concurrently from boundary handlers
// without going through the single-writer worker.
type Store struct {
	conn   *storage.Connection
	logger *slog.Logger
}

// NewStore wraps conn for API-key operations.
func NewStore(conn *storage.Connection, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{conn: conn, logger: logger}
}

// Create generates a new key, persists its hash, and returns the database
// id alongside the plaintext — the only time the plaintext is ever
// available.
func (s *Store) Create(ctx context.Context, clientID string, description *string) (id int64, plaintext string, err error) {
	plaintext, err = generatePlaintext()
	if err != nil {
		return 0, "", err
	}

	hash := hashPlaintext(plaintext)

	const q = `
		INSERT INTO api_keys (key_hash, client_id, description, created_at, is_active)
		VALUES ($1, $2, $3, now(), true)
		RETURNING id`

	row := s.conn.QueryRowContext(ctx, q, hash, clientID, description)
	if err := row.Scan(&id); err != nil {
		return 0, "", fmt.Errorf("insert api key: %w", err)
	}

	s.logAudit(ctx, id, opCreated, plaintext, clientID, nil)

	return id, plaintext, nil
}

// Validate hashes plaintext, looks up an active record by hash, and
// touches last_used_at on a hit.
func (s *Store) Validate(ctx context.Context, plaintext string) (id int64, clientID string, ok bool) {
	if plaintext == "" {
		return 0, "", false
	}

	hash := hashPlaintext(plaintext)

	const q = `
		SELECT id, client_id, key_hash
		FROM api_keys
		WHERE key_hash = $1 AND is_active = true`

	var storedHash string

	row := s.conn.QueryRowContext(ctx, q, hash)
	if err := row.Scan(&id, &clientID, &storedHash); err != nil {
		return 0, "", false
	}

	if !secureCompare(storedHash, hash) {
		return 0, "", false
	}

	const touch = `UPDATE api_keys SET last_used_at = now() WHERE id = $1`
	if _, err := s.conn.ExecContext(ctx, touch, id); err != nil {
		s.logger.Warn("failed to update last_used_at", "api_key_id", id, "error", err)
	}

	return id, clientID, true
}

// List returns every key record ordered by created_at DESC. Plaintext is
// never returned — it exists only at Create time.
func (s *Store) List(ctx context.Context) ([]*Info, error) {
	const q = `
		SELECT id, client_id, description, created_at, last_used_at, is_active
		FROM api_keys
		ORDER BY created_at DESC`

	rows, err := s.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Info

	for rows.Next() {
		info := &Info{}

		if err := rows.Scan(&info.ID, &info.ClientID, &info.Description, &info.CreatedAt, &info.LastUsedAt, &info.IsActive); err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}

		out = append(out, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}

	return out, nil
}

// Revoke sets is_active=false on id and reports whether a row was
// affected.
func (s *Store) Revoke(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE api_keys SET is_active = false WHERE id = $1`

	res, err := s.conn.ExecContext(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("revoke api key %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return false, nil
	}

	clientID := s.clientIDFor(ctx, id)
	s.logAudit(ctx, id, opRevoked, "", clientID, nil)

	return true, nil
}

func (s *Store) clientIDFor(ctx context.Context, id int64) string {
	const q = `SELECT client_id FROM api_keys WHERE id = $1`

	var clientID string

	row := s.conn.QueryRowContext(ctx, q, id)
	if err := row.Scan(&clientID); err != nil {
		return ""
	}

	return clientID
}

// logAudit writes a best-effort audit row; failures are logged, not
// propagated, since the audit trail is ambient observability rather than a
// correctness requirement of the key operation itself.
func (s *Store) logAudit(ctx context.Context, apiKeyID int64, operation, plaintext, clientID string, metadata map[string]any) {
	var masked *string

	if plaintext != "" {
		m := maskKey(plaintext)
		masked = &m
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}

	const q = `
		INSERT INTO api_key_audit_log (api_key_id, operation, masked_key, client_id, metadata)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.conn.ExecContext(ctx, q, apiKeyID, operation, masked, clientID, metadataJSON); err != nil {
		s.logger.Error("failed to write audit log entry", "operation", operation, "api_key_id", apiKeyID, "error", err)
	}
}
