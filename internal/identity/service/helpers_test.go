package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"session-auth/backend/internal/grant"
	"session-auth/backend/internal/mail"
	"session-auth/backend/internal/security"
	sessionrepo "session-auth/backend/internal/session/repository"
	sessionservice "session-auth/backend/internal/session/service"
	userdomain "session-auth/backend/internal/user/domain"
	userrepo "session-auth/backend/internal/user/repository"
)

const testPassword = "Abcde.123!!"

// memAudit records audit events.
type memAudit struct {
	mu      sync.Mutex
	actions []string
	users   []string
}

func (a *memAudit) LogEvent(ctx context.Context, action, userID, sessionID, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	a.users = append(a.users, userID)
}

func (a *memAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

// memSender records sent mail and fails when err is set.
type memSender struct {
	mu        sync.Mutex
	sent      []mail.Message
	err       error
	block     bool
	sawCancel bool
}

func (s *memSender) Send(ctx context.Context, msg mail.Message) error {
	if s.block {
		<-ctx.Done()
		s.mu.Lock()
		s.sawCancel = true
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *memSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fixture wires the real session manager over in-memory stores.
type fixture struct {
	users    *userrepo.MemoryRepository
	sessions *sessionrepo.MemoryRepository
	manager  *sessionservice.Manager
	hasher   *security.Hasher
	audit    *memAudit
	sender   *memSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := userrepo.NewMemoryRepository()
	sessions := sessionrepo.NewMemoryRepository()
	manager := sessionservice.NewManager(sessions, grant.NewResolver(users, time.Second), tokens, sessionservice.Config{
		SessionTTL:   time.Hour,
		StoreTimeout: time.Second,
	})
	return &fixture{
		users:    users,
		sessions: sessions,
		manager:  manager,
		hasher:   security.NewHasher(bcrypt.MinCost),
		audit:    &memAudit{},
		sender:   &memSender{},
	}
}

func (f *fixture) observers() Observers {
	return Observers{Audit: f.audit}
}

// addUser stores a user whose password is testPassword.
func (f *fixture) addUser(t *testing.T, id, email string, blocked bool, grants ...string) {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := time.Now().UTC()
	f.users.Put(userdomain.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: hash,
		Blocked:      blocked,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, grants...)
}

func (f *fixture) passwordHash(t *testing.T, id string) string {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	if err != nil || u == nil {
		t.Fatalf("GetByID(%s) = %v, %v", id, u, err)
	}
	return u.PasswordHash
}

func (f *fixture) authService(cfg AuthConfig) *AuthService {
	return NewAuthService(f.users, f.manager, f.hasher, cfg, f.observers())
}

// deadlineUsers wraps the memory repository and records, per method, whether
// the context it received carried a deadline. With hang set, GetByEmail
// blocks until that context ends.
type deadlineUsers struct {
	*userrepo.MemoryRepository
	hang bool

	mu       sync.Mutex
	deadline map[string]bool
}

func newDeadlineUsers(inner *userrepo.MemoryRepository) *deadlineUsers {
	return &deadlineUsers{MemoryRepository: inner, deadline: make(map[string]bool)}
}

func (d *deadlineUsers) record(ctx context.Context, method string) {
	_, ok := ctx.Deadline()
	d.mu.Lock()
	d.deadline[method] = ok
	d.mu.Unlock()
}

// sawDeadline reports whether method was called and had a deadline.
func (d *deadlineUsers) sawDeadline(method string) (called, bounded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bounded, called = d.deadline[method]
	return called, bounded
}

func (d *deadlineUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	d.record(ctx, "GetByID")
	return d.MemoryRepository.GetByID(ctx, id)
}

func (d *deadlineUsers) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	d.record(ctx, "GetByEmail")
	if d.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return d.MemoryRepository.GetByEmail(ctx, email)
}

func (d *deadlineUsers) LockByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	d.record(ctx, "LockByEmail")
	return d.MemoryRepository.LockByEmail(ctx, email)
}

func (d *deadlineUsers) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	d.record(ctx, "UpdatePasswordHash")
	return d.MemoryRepository.UpdatePasswordHash(ctx, userID, hash)
}

func (d *deadlineUsers) Do(ctx context.Context, fn func(ctx context.Context, users userrepo.Repository) error) error {
	return d.MemoryRepository.Do(ctx, func(ctx context.Context, _ userrepo.Repository) error {
		return fn(ctx, d)
	})
}

// countingVerifier counts password comparisons.
type countingVerifier struct {
	*security.Hasher

	mu    sync.Mutex
	calls int
}

func (v *countingVerifier) Verify(plaintext, storedHash string) (bool, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	return v.Hasher.Verify(plaintext, storedHash)
}

func (v *countingVerifier) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}
