// Package auth implements the session lifecycle: login with lockout
// enforcement, refresh with rotation, and logout with revocation. A
// session moves anonymous -> authenticated -> refreshed* -> revoked;
// revoked is terminal and only a fresh login creates a new session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meetsync/auth-service/internal/model"
	"github.com/meetsync/auth-service/internal/repository"
	"github.com/meetsync/auth-service/internal/revocation"
	"github.com/meetsync/auth-service/internal/token"
	"github.com/meetsync/auth-service/internal/utils"
)

// Options are the documented policy knobs the original left implicit.
type Options struct {
	MaxFailedLogins      int           // lockout threshold (default 5)
	LockoutDuration      time.Duration // lockout window (default 15m)
	RotateOnRefresh      bool          // rotate the refresh token on every refresh
	PasswordHistoryDepth int           // previous hashes that block reuse
	BcryptCost           int
}

// Device captures the metadata recorded on the session row at login.
type Device struct {
	Name      string
	Type      string
	UserAgent string
	IP        string
}

// LoginResult carries the issued token pair and the created session.
type LoginResult struct {
	User      model.User
	SessionID uint64
	Access    token.Issued
	Refresh   token.Issued
}

// RefreshResult carries the new access token and, when rotation is
// enabled, the replacement refresh token.
type RefreshResult struct {
	UserID    uint64
	SessionID uint64
	Access    token.Issued
	Refresh   *token.Issued
}

// Authenticator orchestrates the credential store, session store, token
// issuer/validator and the denylist. All dependencies are injected.
type Authenticator struct {
	users     CredentialStore
	sessions  SessionStore
	revoked   revocation.Store
	issuer    *token.Issuer
	validator *token.Validator
	opts      Options
}

func New(users CredentialStore, sessions SessionStore, revoked revocation.Store, issuer *token.Issuer, validator *token.Validator, opts Options) *Authenticator {
	if opts.MaxFailedLogins <= 0 {
		opts.MaxFailedLogins = 5
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = 15 * time.Minute
	}
	if opts.PasswordHistoryDepth <= 0 {
		opts.PasswordHistoryDepth = 5
	}
	return &Authenticator{
		users:     users,
		sessions:  sessions,
		revoked:   revoked,
		issuer:    issuer,
		validator: validator,
		opts:      opts,
	}
}

// Login checks credentials, enforces lockout and on success issues one
// access and one refresh token backed by a new session row.
//
// The lockout check runs before the password is examined at all, so a
// locked account rejects even the correct password. A failed password
// increments the failure counter atomically; the attempt that crosses
// the threshold already reports the lockout.
func (a *Authenticator) Login(ctx context.Context, email, password string, dev Device) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()

	u, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if u.Locked(now) {
		return nil, &AccountLockedError{Until: *u.LockedUntil}
	}

	if !utils.VerifyPassword(u.PasswordHash, password) {
		_, lockedUntil, err := a.users.RegisterLoginFailure(ctx, u.ID, now, a.opts.MaxFailedLogins, a.opts.LockoutDuration)
		if err != nil {
			return nil, fmt.Errorf("register login failure: %w", err)
		}
		if lockedUntil != nil {
			return nil, &AccountLockedError{Until: *lockedUntil}
		}
		return nil, ErrInvalidCredentials
	}

	if err := a.users.RecordLoginSuccess(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}

	access, err := a.issuer.IssueAccess(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.issuer.IssueRefresh(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	sess := &model.Session{
		UserID:           u.ID,
		AccessJTI:        access.JTI,
		RefreshJTI:       refresh.JTI,
		ExpiresAt:        access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
		DeviceName:       dev.Name,
		DeviceType:       dev.Type,
		UserAgent:        dev.UserAgent,
		IP:               dev.IP,
	}
	if err := a.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &now
	return &LoginResult{User: u, SessionID: sess.ID, Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token. With
// rotation enabled the refresh token is replaced as well: the session row
// is swapped to the new jtis with a compare-and-set, and the old refresh
// jti is denylisted before the new pair is returned, closing the window
// where both would verify. Of two concurrent refresh calls with the same
// token, exactly one wins the CAS; the other gets ErrInvalidToken.
//
// The superseded access token is denylisted as well, in both modes. A
// session has exactly one live access token; without this, an old access
// token would outlive the refresh that replaced it and Logout could no
// longer tie it back to the session row.
func (a *Authenticator) Refresh(ctx context.Context, rawRefresh string) (*RefreshResult, error) {
	claims, err := a.validator.Validate(ctx, rawRefresh)
	if err != nil {
		return nil, err
	}
	if claims.Type != token.TypeRefresh {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	sess, err := a.sessions.FindByRefreshJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess.Revoked {
		return nil, ErrInvalidToken
	}

	access, err := a.issuer.IssueAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	now := time.Now().UTC()

	if !a.opts.RotateOnRefresh {
		ok, err := a.sessions.Rotate(ctx, sess.ID, claims.ID, access.JTI, claims.ID, access.ExpiresAt, sess.RefreshExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		if !ok {
			return nil, ErrInvalidToken
		}
		if err := a.revoked.SetRevoked(ctx, sess.AccessJTI, sess.ExpiresAt.Sub(now)); err != nil {
			return nil, fmt.Errorf("denylist superseded access token: %w", err)
		}
		return &RefreshResult{UserID: userID, SessionID: sess.ID, Access: access}, nil
	}

	refresh, err := a.issuer.IssueRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	ok, err := a.sessions.Rotate(ctx, sess.ID, claims.ID, access.JTI, refresh.JTI, access.ExpiresAt, refresh.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	if err := a.revoked.SetRevoked(ctx, claims.ID, claims.Remaining(now)); err != nil {
		return nil, fmt.Errorf("denylist rotated refresh token: %w", err)
	}
	if err := a.revoked.SetRevoked(ctx, sess.AccessJTI, sess.ExpiresAt.Sub(now)); err != nil {
		return nil, fmt.Errorf("denylist superseded access token: %w", err)
	}
	return &RefreshResult{UserID: userID, SessionID: sess.ID, Access: access, Refresh: &refresh}, nil
}

// Logout denylists the access token for its remaining lifetime and
// revokes the backing session. Logging out an already-revoked session
// succeeds silently; the refresh token dies with the session because the
// refresh path checks the revoked flag.
//
// The returned ids identify whose session was revoked, for the audit
// trail. sessionID is zero when no session was revoked on this call
// (repeat logout, or no session holds the token).
func (a *Authenticator) Logout(ctx context.Context, rawAccess string) (userID, sessionID uint64, err error) {
	claims, err := a.validator.Validate(ctx, rawAccess)
	if err != nil {
		if errors.Is(err, token.ErrRevoked) {
			return 0, 0, nil // second logout with the same token
		}
		return 0, 0, err
	}
	if claims.Type != token.TypeAccess {
		return 0, 0, ErrInvalidToken
	}
	userID, err = claims.UserID()
	if err != nil {
		return 0, 0, ErrInvalidToken
	}
	now := time.Now().UTC()

	if err := a.revoked.SetRevoked(ctx, claims.ID, claims.Remaining(now)); err != nil {
		return 0, 0, fmt.Errorf("denylist access token: %w", err)
	}

	sess, err := a.sessions.FindByAccessJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userID, 0, nil
		}
		return 0, 0, fmt.Errorf("find session: %w", err)
	}
	if sess.Revoked {
		return userID, 0, nil
	}
	// false means a concurrent logout won; that is still a success.
	ok, err := a.sessions.MarkRevoked(ctx, sess.ID, model.ReasonUserLogout, now)
	if err != nil {
		return 0, 0, fmt.Errorf("revoke session: %w", err)
	}
	if !ok {
		return userID, 0, nil
	}
	return userID, sess.ID, nil
}

// ChangePassword verifies the old password, refuses reuse of the current
// or a recent password and stores the new hash. The history check
// compares the candidate against stored bcrypt hashes, since hashes
// themselves cannot be compared for equality.
func (a *Authenticator) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	u, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if utils.VerifyPassword(u.PasswordHash, newPassword) {
		return ErrPasswordReused
	}

	history, err := a.users.PasswordHistory(ctx, userID, a.opts.PasswordHistoryDepth)
	if err != nil {
		return fmt.Errorf("load password history: %w", err)
	}
	for _, h := range history {
		if utils.VerifyPassword(h, newPassword) {
			return ErrPasswordReused
		}
	}

	hash, err := utils.HashPassword(newPassword, a.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.users.UpdatePassword(ctx, userID, hash, time.Now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
