// Package revocation implements the token denylist. Revoked token ids are
// stored with a TTL equal to the token's remaining lifetime, so entries
// expire on their own once the token itself would no longer verify.
package revocation

import (
	"context"
	"time"
)

// Store records revoked token identifiers (jti claims).
type Store interface {
	// SetRevoked marks a jti as revoked for the given duration. A
	// non-positive ttl means the token is already expired and nothing
	// needs to be recorded.
	SetRevoked(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether a jti is currently on the denylist.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
