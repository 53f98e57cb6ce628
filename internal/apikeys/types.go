// Package apikeys implements hash-indexed API credentials, validated
// against the SHA-256 digest of a one-time plaintext key.
package apikeys

import (
	"time"
)

// Info is the public view of an API key: plaintext and key_hash are never
// included, matching the "plaintext returned exactly once" invariant.
type Info struct {
	ID          int64
	ClientID    string
	Description *string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	IsActive    bool
}
