package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/meetsync/auth-service/internal/model"
	"github.com/meetsync/auth-service/internal/repository"
)

// In-memory store implementations. They back the test suites and local
// development without MySQL, and mirror the concurrency contract of the
// SQL repositories: failure counting is atomic, Rotate and MarkRevoked
// are compare-and-set.

// MemCredentialStore is an in-memory CredentialStore.
type MemCredentialStore struct {
	mu      sync.Mutex
	nextID  uint64
	users   map[uint64]*model.User
	byEmail map[string]uint64
	history map[uint64][]string
}

func NewMemCredentialStore() *MemCredentialStore {
	return &MemCredentialStore{
		users:   make(map[uint64]*model.User),
		byEmail: make(map[string]uint64),
		history: make(map[uint64][]string),
	}
}

// Add registers a user and returns its assigned id.
func (s *MemCredentialStore) Add(u model.User) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u.ID = s.nextID
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	s.users[u.ID] = &u
	s.byEmail[u.Email] = u.ID
	return u.ID
}

func (s *MemCredentialStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return *s.users[id], nil
}

func (s *MemCredentialStore) FindByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return *u, nil
}

func (s *MemCredentialStore) RegisterLoginFailure(_ context.Context, userID uint64, now time.Time, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return u.FailedLoginAttempts, u.LockedUntil, nil
	}
	u.FailedLoginAttempts++
	t := now
	u.LastFailedLogin = &t
	if u.FailedLoginAttempts >= maxAttempts {
		until := now.Add(lockFor)
		u.LockedUntil = &until
		return u.FailedLoginAttempts, &until, nil
	}
	return u.FailedLoginAttempts, nil, nil
}

func (s *MemCredentialStore) RecordLoginSuccess(_ context.Context, userID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	t := at
	u.LastLogin = &t
	return nil
}

func (s *MemCredentialStore) UpdatePassword(_ context.Context, userID uint64, newHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.PasswordHash != "" {
		s.history[userID] = append([]string{u.PasswordHash}, s.history[userID]...)
	}
	u.PasswordHash = newHash
	u.RequirePasswordChange = false
	u.UpdatedAt = at
	return nil
}

func (s *MemCredentialStore) PasswordHistory(_ context.Context, userID uint64, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[userID]
	if len(h) > limit {
		h = h[:limit]
	}
	out := make([]string, len(h))
	copy(out, h)
	return out, nil
}

// MemSessionStore is an in-memory SessionStore.
type MemSessionStore struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]*model.Session
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{sessions: make(map[uint64]*model.Session)}
}

func (s *MemSessionStore) Create(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sess.ID = s.nextID
	sess.CreatedAt = time.Now().UTC()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemSessionStore) FindByRefreshJTI(_ context.Context, jti string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.RefreshJTI == jti {
			return *sess, nil
		}
	}
	return model.Session{}, repository.ErrNotFound
}

func (s *MemSessionStore) FindByAccessJTI(_ context.Context, jti string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.AccessJTI == jti {
			return *sess, nil
		}
	}
	return model.Session{}, repository.ErrNotFound
}

func (s *MemSessionStore) Rotate(_ context.Context, id uint64, oldRefreshJTI, newAccessJTI, newRefreshJTI string, expiresAt, refreshExpiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Revoked || sess.RefreshJTI != oldRefreshJTI {
		return false, nil
	}
	sess.AccessJTI = newAccessJTI
	sess.RefreshJTI = newRefreshJTI
	sess.ExpiresAt = expiresAt
	sess.RefreshExpiresAt = refreshExpiresAt
	return true, nil
}

func (s *MemSessionStore) MarkRevoked(_ context.Context, id uint64, reason model.RevocationReason, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Revoked {
		return false, nil
	}
	sess.Revoked = true
	t := at
	sess.RevokedAt = &t
	sess.RevocationReason = reason
	return true, nil
}

// Get returns a copy of a session row, for assertions in tests.
func (s *MemSessionStore) Get(id uint64) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return *sess, true
}
