package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chepyr/tasktracker/internal/db"
	"github.com/chepyr/tasktracker/internal/db/dbtest"
	"golang.org/x/crypto/bcrypt"
)

const goodPassword = "Secr3t!Pass"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubBreach struct {
	compromised bool
	err         error
	calls       int
}

func (s *stubBreach) Compromised(context.Context, string) (bool, error) {
	s.calls++
	return s.compromised, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, breach BreachChecker) (*CredentialStore, *db.UserRepository) {
	t.Helper()
	users := db.NewUserRepository(dbtest.Open(t))
	return NewCredentialStore(users, NewPasswordHasher(bcrypt.MinCost), breach), users
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(clock *fakeClock) *SessionIssuer {
	return NewSessionIssuer(
		SessionConfig{Secret: testSecret, Issuer: "tasktracker", TTL: time.Hour},
		NewMemoryDenylist(clock.Now),
		clock.Now,
	)
}
