package model

import "time"

// User represents a credential record as stored in the `users` table.
// Lockout state lives on the row itself and is mutated only by the
// authenticator during login attempts: FailedLoginAttempts counts
// consecutive failures, LockedUntil is set once the configured threshold
// is crossed and cleared again on the next successful login.
//
// PasswordHash is empty for federated (SSO-only) accounts; those accounts
// can never log in with a password.
type User struct {
	ID                    uint64     // users.id
	Email                 string     // users.email (unique, stored lowercase)
	PasswordHash          string     // users.password_hash ("" for federated accounts)
	IsFederated           bool       // users.is_federated_identity
	EmailVerified         bool       // users.email_verified
	RequirePasswordChange bool       // users.requires_password_change
	FailedLoginAttempts   int        // users.failed_login_attempts
	LockedUntil           *time.Time // users.locked_until (nil = not locked)
	LastLogin             *time.Time // users.last_login
	LastFailedLogin       *time.Time // users.last_failed_login
	CreatedAt             time.Time  // users.created_at
	UpdatedAt             time.Time  // users.updated_at
}

// Locked reports whether the account is locked out at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// PasswordHistory models a row in the append-only `password_history`
// table. Entries are consulted on password change to refuse reuse of a
// recent password; they are never updated or deleted.
type PasswordHistory struct {
	ID           uint64    // password_history.id
	UserID       uint64    // password_history.user_id
	PasswordHash string    // password_history.password_hash
	CreatedAt    time.Time // password_history.created_at
}
