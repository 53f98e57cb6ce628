package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// GetKeyValue looks up a setting by key. A missing key returns NoSuchKey.
func (a *Adapter) GetKeyValue(ctx context.Context, key string) (*KeyValue, error) {
	const q = `SELECT key, value, updated_at FROM key_value WHERE key = $1`

	kv := &KeyValue{}

	row := a.conn.QueryRowContext(ctx, q, key)
	if err := row.Scan(&kv.Key, &kv.Value, &kv.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, NoSuchKey(key)
		}

		return nil, InternalError(fmt.Sprintf("get key-value %s", key), err)
	}

	return kv, nil
}

// SetKeyValue upserts key with the given JSON value, setting updated_at to
// now() on conflict.
func (a *Adapter) SetKeyValue(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO key_value (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := a.conn.ExecContext(ctx, q, key, value); err != nil {
		return InternalError(fmt.Sprintf("set key-value %s", key), err)
	}

	return nil
}

// DeleteKeyValue removes key. Missing keys are not an error.
func (a *Adapter) DeleteKeyValue(ctx context.Context, key string) error {
	const q = `DELETE FROM key_value WHERE key = $1`

	if _, err := a.conn.ExecContext(ctx, q, key); err != nil {
		return InternalError(fmt.Sprintf("delete key-value %s", key), err)
	}

	return nil
}

// settingsPrefix is the hard policy applied to every listing: only keys
// under this namespace are ever returned, regardless of pattern.
const settingsPrefix = "settings."

// ListKeyValues returns settings matching a LIKE-style pattern, additionally
// restricted to keys with the settings. prefix.
func (a *Adapter) ListKeyValues(ctx context.Context, pattern string) ([]*KeyValue, error) {
	const q = `
		SELECT key, value, updated_at
		FROM key_value
		WHERE key LIKE $1 AND key LIKE $2
		ORDER BY key`

	rows, err := a.conn.QueryContext(ctx, q, pattern, settingsPrefix+"%")
	if err != nil {
		return nil, InternalError("list key-values", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*KeyValue

	for rows.Next() {
		kv := &KeyValue{}
		if err := rows.Scan(&kv.Key, &kv.Value, &kv.UpdatedAt); err != nil {
			return nil, InternalError("scan key-value row", err)
		}

		out = append(out, kv)
	}

	if err := rows.Err(); err != nil {
		return nil, InternalError("iterate key-value rows", err)
	}

	return out, nil
}
