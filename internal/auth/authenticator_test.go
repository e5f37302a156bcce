package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meetsync/auth-service/internal/model"
	"github.com/meetsync/auth-service/internal/revocation"
	"github.com/meetsync/auth-service/internal/token"
)

const (
	testEmail    = "a@x.com"
	testPassword = "P@ss1"
)

type fixture struct {
	auth     *Authenticator
	users    *MemCredentialStore
	sessions *MemSessionStore
	revoked  *revocation.Memory
	userID   uint64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.MaxFailedLogins == 0 {
		opts.MaxFailedLogins = 5
	}
	if opts.LockoutDuration == 0 {
		opts.LockoutDuration = 15 * time.Minute
	}
	opts.BcryptCost = bcrypt.MinCost

	users := NewMemCredentialStore()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	userID := users.Add(model.User{Email: testEmail, PasswordHash: string(hash), EmailVerified: true})

	sessions := NewMemSessionStore()
	revoked := revocation.NewMemory()
	issuer := token.NewIssuer("user-secret", "service-secret", 15*time.Minute, 7*24*time.Hour, 5*time.Minute)
	validator := token.NewValidator("user-secret", "service-secret", revoked, true)

	return &fixture{
		auth:     New(users, sessions, revoked, issuer, validator, opts),
		users:    users,
		sessions: sessions,
		revoked:  revoked,
		userID:   userID,
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: true})
	ctx := context.Background()

	res, err := f.auth.Login(ctx, testEmail, testPassword, Device{Name: "phone", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != f.userID {
		t.Errorf("user id = %d, want %d", res.User.ID, f.userID)
	}
	if res.Access.JTI == res.Refresh.JTI {
		t.Error("access and refresh tokens share a jti")
	}

	sess, ok := f.sessions.Get(res.SessionID)
	if !ok {
		t.Fatal("no session row created")
	}
	if sess.UserID != f.userID || sess.AccessJTI != res.Access.JTI || sess.RefreshJTI != res.Refresh.JTI {
		t.Errorf("session row does not match issued tokens: %+v", sess)
	}
	if sess.DeviceName != "phone" || sess.IP != "10.0.0.1" {
		t.Errorf("device metadata not recorded: %+v", sess)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.auth.Login(context.Background(), "nobody@x.com", "whatever", Device{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginFederatedAccountHasNoPassword(t *testing.T) {
	f := newFixture(t, Options{})
	f.users.Add(model.User{Email: "sso@x.com", IsFederated: true})
	_, err := f.auth.Login(context.Background(), "sso@x.com", "anything", Device{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLockoutAfterThreshold(t *testing.T) {
	f := newFixture(t, Options{MaxFailedLogins: 5})
	ctx := context.Background()

	// One successful login first; it must not count toward the threshold.
	if _, err := f.auth.Login(ctx, testEmail, testPassword, Device{}); err != nil {
		t.Fatalf("initial login: %v", err)
	}

	for i := 0; i < 4; i++ {
		_, err := f.auth.Login(ctx, testEmail, "wrong", Device{})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// Fifth consecutive failure crosses the threshold.
	var locked *AccountLockedError
	_, err := f.auth.Login(ctx, testEmail, "wrong", Device{})
	if !errors.As(err, &locked) {
		t.Fatalf("attempt 5: err = %v, want AccountLockedError", err)
	}
	if !locked.Until.After(time.Now()) {
		t.Errorf("lockout deadline %v is not in the future", locked.Until)
	}

	// The correct password is refused while the lockout holds.
	if _, err := f.auth.Login(ctx, testEmail, testPassword, Device{}); !errors.As(err, &locked) {
		t.Fatalf("correct password during lockout: err = %v, want AccountLockedError", err)
	}
}

func TestExpiredLockoutAllowsLogin(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	f.users.mu.Lock()
	f.users.users[f.userID].LockedUntil = &past
	f.users.users[f.userID].FailedLoginAttempts = 5
	f.users.mu.Unlock()

	res, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatalf("login after lockout expiry: %v", err)
	}
	if res.User.FailedLoginAttempts != 0 || res.User.LockedUntil != nil {
		t.Errorf("lockout state not reset: %+v", res.User)
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: true})
	ctx := context.Background()

	login, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.auth.Refresh(ctx, login.Refresh.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Refresh == nil {
		t.Fatal("rotation enabled but no new refresh token returned")
	}
	if res.Refresh.JTI == login.Refresh.JTI {
		t.Error("rotated refresh token kept the old jti")
	}

	// The old refresh jti is on the denylist.
	revoked, err := f.revoked.IsRevoked(ctx, login.Refresh.JTI)
	if err != nil || !revoked {
		t.Fatalf("old refresh jti revoked = %v, %v, want true", revoked, err)
	}

	// Replaying the old refresh token fails.
	if _, err := f.auth.Refresh(ctx, login.Refresh.Token); err == nil {
		t.Fatal("replayed rotated refresh token succeeded")
	}

	// The new refresh token works.
	if _, err := f.auth.Refresh(ctx, res.Refresh.Token); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestRefreshWithoutRotation(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: false})
	ctx := context.Background()

	login, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.auth.Refresh(ctx, login.Refresh.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Refresh != nil {
		t.Fatal("rotation disabled but a new refresh token was returned")
	}

	// The replaced access token is dead even without rotation.
	if revoked, _ := f.revoked.IsRevoked(ctx, login.Access.JTI); !revoked {
		t.Error("superseded access jti not on denylist")
	}

	// Same refresh token remains usable.
	if _, err := f.auth.Refresh(ctx, login.Refresh.Token); err != nil {
		t.Fatalf("second refresh with same token: %v", err)
	}
}

func TestRefreshRevokesSupersededAccess(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: true})
	ctx := context.Background()

	login, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.auth.Refresh(ctx, login.Refresh.Token)
	if err != nil {
		t.Fatal(err)
	}

	// The pre-refresh access token is denylisted along with the refresh
	// token it was issued with.
	if revoked, _ := f.revoked.IsRevoked(ctx, login.Access.JTI); !revoked {
		t.Fatal("superseded access jti not on denylist")
	}

	// Logout with the dead token is a no-op and leaves the session alive.
	uid, sid, err := f.auth.Logout(ctx, login.Access.Token)
	if err != nil || uid != 0 || sid != 0 {
		t.Fatalf("logout with superseded token = %d, %d, %v; want no-op", uid, sid, err)
	}
	sess, _ := f.sessions.Get(login.SessionID)
	if sess.Revoked {
		t.Fatal("session revoked by a superseded access token")
	}

	// The current access token still controls the session.
	uid, sid, err = f.auth.Logout(ctx, res.Access.Token)
	if err != nil {
		t.Fatalf("logout with current token: %v", err)
	}
	if uid != f.userID || sid != login.SessionID {
		t.Errorf("logout ids = %d, %d, want %d, %d", uid, sid, f.userID, login.SessionID)
	}
	sess, _ = f.sessions.Get(login.SessionID)
	if !sess.Revoked {
		t.Fatal("session not revoked by current access token")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: true})
	ctx := context.Background()

	login, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.auth.Refresh(ctx, login.Access.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: true})
	ctx := context.Background()

	login, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Refresh(ctx, login.Refresh.Token)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
			} else {
				successes++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || failures != 1 {
		t.Fatalf("successes = %d, failures = %d; want exactly one of each", successes, failures)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{RotateOnRefresh: true})
	ctx := context.Background()

	login, err := f.auth.Login(ctx, testEmail, testPassword, Device{})
	if err != nil {
		t.Fatal(err)
	}

	uid, sid, err := f.auth.Logout(ctx, login.Access.Token)
	if err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if uid != f.userID || sid != login.SessionID {
		t.Errorf("logout ids = %d, %d, want %d, %d", uid, sid, f.userID, login.SessionID)
	}

	revoked, _ := f.revoked.IsRevoked(ctx, login.Access.JTI)
	if !revoked {
		t.Fatal("access jti not on denylist after logout")
	}
	sess, _ := f.sessions.Get(login.SessionID)
	if !sess.Revoked || sess.RevocationReason != model.ReasonUserLogout {
		t.Fatalf("session not revoked with user_logout: %+v", sess)
	}

	// Second logout with the same (now revoked) token still succeeds and
	// reports that nothing was revoked.
	uid, sid, err = f.auth.Logout(ctx, login.Access.Token)
	if err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if uid != 0 || sid != 0 {
		t.Errorf("repeat logout ids = %d, %d, want zeros", uid, sid)
	}

	// The session's refresh token died with the session.
	if _, err := f.auth.Refresh(ctx, login.Refresh.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout: err = %v, want ErrInvalidToken", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.auth.ChangePassword(ctx, f.userID, "wrong-old", "NewP@ss123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password: err = %v, want ErrInvalidCredentials", err)
	}
	if err := f.auth.ChangePassword(ctx, f.userID, testPassword, testPassword); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("same password: err = %v, want ErrPasswordReused", err)
	}
	if err := f.auth.ChangePassword(ctx, f.userID, testPassword, "NewP@ss123"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	// Old password no longer works, new one does.
	if _, err := f.auth.Login(ctx, testEmail, testPassword, Device{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password after change: err = %v", err)
	}
	if _, err := f.auth.Login(ctx, testEmail, "NewP@ss123", Device{}); err != nil {
		t.Fatalf("new password after change: %v", err)
	}

	// Changing back to the original hits the history check.
	if err := f.auth.ChangePassword(ctx, f.userID, "NewP@ss123", testPassword); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("reuse of historical password: err = %v, want ErrPasswordReused", err)
	}
}
