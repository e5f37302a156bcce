package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meetsync/auth-service/internal/model"
)

// SessionRepo persists device sessions. Rotation and revocation are
// compare-and-set updates guarded by the revoked flag (and, for rotation,
// the current refresh jti), so two concurrent refresh calls with the same
// token produce exactly one winner at the database level — no lock
// service involved.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const sessionColumns = `id, user_id, access_jti, refresh_jti, expires_at, refresh_expires_at,
	revoked, revoked_at, revocation_reason, device_name, device_type, user_agent, ip, created_at`

// Create inserts a session row and sets s.ID.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions
			(user_id, access_jti, refresh_jti, expires_at, refresh_expires_at,
			 device_name, device_type, user_agent, ip)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		s.UserID, s.AccessJTI, s.RefreshJTI, s.ExpiresAt.UTC(), s.RefreshExpiresAt.UTC(),
		s.DeviceName, s.DeviceType, s.UserAgent, s.IP)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("session insert id: %w", err)
	}
	s.ID = uint64(id)
	return nil
}

// FindByRefreshJTI fetches the session currently holding the given
// refresh token id.
func (r *SessionRepo) FindByRefreshJTI(ctx context.Context, jti string) (model.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE refresh_jti=? LIMIT 1", jti)
	return scanSession(row)
}

// FindByAccessJTI fetches the session currently holding the given access
// token id.
func (r *SessionRepo) FindByAccessJTI(ctx context.Context, jti string) (model.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE access_jti=? LIMIT 1", jti)
	return scanSession(row)
}

func scanSession(row *sql.Row) (model.Session, error) {
	var (
		s         model.Session
		revokedAt sql.NullTime
		reason    sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AccessJTI, &s.RefreshJTI, &s.ExpiresAt,
		&s.RefreshExpiresAt, &s.Revoked, &revokedAt, &reason,
		&s.DeviceName, &s.DeviceType, &s.UserAgent, &s.IP, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		s.RevokedAt = &t
	}
	s.RevocationReason = model.RevocationReason(reason.String)
	return s, nil
}

// Rotate swaps the session's token ids in one conditional update. The
// WHERE clause requires the old refresh jti and an unrevoked row, so of
// two concurrent rotations only one can match; the loser sees false.
func (r *SessionRepo) Rotate(ctx context.Context, id uint64, oldRefreshJTI, newAccessJTI, newRefreshJTI string, expiresAt, refreshExpiresAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions
		 SET access_jti=?, refresh_jti=?, expires_at=?, refresh_expires_at=?
		 WHERE id=? AND refresh_jti=? AND revoked=0`,
		newAccessJTI, newRefreshJTI, expiresAt.UTC(), refreshExpiresAt.UTC(),
		id, oldRefreshJTI)
	if err != nil {
		return false, fmt.Errorf("rotate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate session rows: %w", err)
	}
	return n == 1, nil
}

// MarkRevoked flips the revoked flag once. A second call for the same
// session matches zero rows and returns false; callers that need
// idempotency treat that as success. Rows are never deleted.
func (r *SessionRepo) MarkRevoked(ctx context.Context, id uint64, reason model.RevocationReason, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked=1, revoked_at=?, revocation_reason=? WHERE id=? AND revoked=0",
		at.UTC(), string(reason), id)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke session rows: %w", err)
	}
	return n == 1, nil
}
