package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meetsync/auth-service/internal/model"
)

// UserRepo is the credential store. Lockout state is the only per-row
// mutable state with concurrent writers (simultaneous login attempts for
// one account), so failure counting runs inside a transaction that locks
// the row instead of a read-modify-write on the connection pool.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, password_hash, is_federated_identity, email_verified,
	requires_password_change, failed_login_attempts, locked_until,
	last_login, last_failed_login, created_at, updated_at`

// FindByEmail fetches a credential record by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// FindByID fetches a credential record by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u            model.User
		passwordHash sql.NullString
		lockedUntil  sql.NullTime
		lastLogin    sql.NullTime
		lastFailed   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.IsFederated, &u.EmailVerified,
		&u.RequirePasswordChange, &u.FailedLoginAttempts, &lockedUntil,
		&lastLogin, &lastFailed, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	u.PasswordHash = passwordHash.String
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	if lastFailed.Valid {
		t := lastFailed.Time.UTC()
		u.LastFailedLogin = &t
	}
	return u, nil
}

// RegisterLoginFailure increments the failure counter and, when the count
// reaches maxAttempts, sets locked_until. The row is locked for the
// duration of the transaction so two simultaneous failures cannot lose a
// lockout event. Returns the new counter and the lockout deadline, if one
// is now in effect.
func (r *UserRepo) RegisterLoginFailure(ctx context.Context, userID uint64, now time.Time, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin login failure tx: %w", err)
	}
	defer tx.Rollback()

	var (
		attempts    int
		lockedUntil sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		"SELECT failed_login_attempts, locked_until FROM users WHERE id=? FOR UPDATE",
		userID).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("lock user row: %w", err)
	}

	// Already locked by a concurrent attempt: keep the existing deadline.
	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return 0, nil, fmt.Errorf("commit login failure tx: %w", err)
		}
		return attempts, &until, nil
	}

	attempts++
	var nextLock *time.Time
	var nextLockValue interface{}
	if attempts >= maxAttempts {
		until := now.UTC().Add(lockFor)
		nextLock = &until
		nextLockValue = until
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=?, locked_until=?, last_failed_login=? WHERE id=?",
		attempts, nextLockValue, now.UTC(), userID)
	if err != nil {
		return 0, nil, fmt.Errorf("update lockout state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit login failure tx: %w", err)
	}
	return attempts, nextLock, nil
}

// RecordLoginSuccess resets the failure counter, clears any lockout and
// stamps last_login.
func (r *UserRepo) RecordLoginSuccess(ctx context.Context, userID uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=0, locked_until=NULL, last_login=? WHERE id=?",
		at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

// UpdatePassword swaps the stored hash and appends the replaced hash to
// the password history in the same transaction.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint64, newHash string, at time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin password tx: %w", err)
	}
	defer tx.Rollback()

	var oldHash sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE id=? FOR UPDATE", userID).Scan(&oldHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock user row: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET password_hash=?, requires_password_change=0, updated_at=? WHERE id=?",
		newHash, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if oldHash.Valid && oldHash.String != "" {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO password_history (user_id, password_hash, created_at) VALUES (?,?,?)",
			userID, oldHash.String, at.UTC())
		if err != nil {
			return fmt.Errorf("append password history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit password tx: %w", err)
	}
	return nil
}

// PasswordHistory returns up to limit most recent previous hashes for a
// user, newest first.
func (r *UserRepo) PasswordHistory(ctx context.Context, userID uint64, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT password_hash FROM password_history WHERE user_id=? ORDER BY created_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
