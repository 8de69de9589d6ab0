// Package revoke marks tokens unusable before their natural expiry. Entries
// are keyed by the SHA-256 hash of the raw token so raw token values are
// never stored. An entry is inert once the recorded expiry passes, so the
// sweep only bounds storage growth and is not needed for correctness.
package revoke

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store records revoked tokens until they would have expired anyway.
type Store interface {
	// Revoke marks the token unusable until expiresAt. Idempotent.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	// IsRevoked reports whether the token is currently revoked.
	IsRevoked(ctx context.Context, token string) (bool, error)
	// SweepExpired deletes entries whose expiry has passed and returns the
	// number of deleted entries.
	SweepExpired(ctx context.Context) (int, error)
}

// Key returns the storage key for a raw token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
