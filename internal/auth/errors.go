package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both "no such user" and "wrong
	// password". The two cases are never distinguished in anything a
	// client can observe, to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a token is structurally fine but
	// unusable for the requested operation: wrong type, unknown session,
	// or a session that was already rotated or revoked.
	ErrInvalidToken = errors.New("invalid token")

	// ErrPasswordReused rejects a password change that matches the
	// current password or a recent history entry.
	ErrPasswordReused = errors.New("password was used recently")
)

// AccountLockedError is returned for any login attempt against a locked
// account, including attempts with the correct password. Until tells the
// caller when login becomes possible again.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}
