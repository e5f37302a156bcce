package auth

import (
	"context"
	"time"

	"github.com/meetsync/auth-service/internal/model"
)

// The authenticator depends on store interfaces rather than concrete
// repositories so tests can substitute in-memory fakes without
// monkey-patching. internal/repository provides the MySQL
// implementations.

// CredentialStore persists user credential records and their lockout
// state. Implementations must apply failure counting atomically; the
// counter is written by concurrent login attempts for the same account.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id uint64) (model.User, error)
	RegisterLoginFailure(ctx context.Context, userID uint64, now time.Time, maxAttempts int, lockFor time.Duration) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, userID uint64, at time.Time) error
	UpdatePassword(ctx context.Context, userID uint64, newHash string, at time.Time) error
	PasswordHistory(ctx context.Context, userID uint64, limit int) ([]string, error)
}

// SessionStore persists device sessions. Rotate and MarkRevoked are
// compare-and-set operations: they return false instead of an error when
// the session was concurrently rotated or revoked.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	FindByRefreshJTI(ctx context.Context, jti string) (model.Session, error)
	FindByAccessJTI(ctx context.Context, jti string) (model.Session, error)
	Rotate(ctx context.Context, id uint64, oldRefreshJTI, newAccessJTI, newRefreshJTI string, expiresAt, refreshExpiresAt time.Time) (bool, error)
	MarkRevoked(ctx context.Context, id uint64, reason model.RevocationReason, at time.Time) (bool, error)
}
