package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chepyr/tasktracker/internal/activity"
	"github.com/chepyr/tasktracker/internal/auth"
	"github.com/chepyr/tasktracker/internal/db"
	"github.com/chepyr/tasktracker/internal/db/dbtest"
	"github.com/chepyr/tasktracker/internal/tasks"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Aa1!aaaa"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testApp struct {
	t      *testing.T
	routes http.Handler
	clock  *clock
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	conn := dbtest.Open(t)
	c := &clock{t: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	limiter := auth.NewRateLimiter(5, time.Minute, c.Now)
	t.Cleanup(limiter.Close)

	credentials := auth.NewCredentialStore(db.NewUserRepository(conn), auth.NewPasswordHasher(bcrypt.MinCost), auth.NoBreachCheck{})
	sessions := auth.NewSessionIssuer(
		auth.SessionConfig{Secret: testSecret, Issuer: "tasktracker", TTL: time.Hour},
		auth.NewMemoryDenylist(c.Now),
		c.Now,
	)
	store := db.NewTaskRepository(conn, activity.NewLogger(c.Now))

	h := &Handler{
		Auth:   auth.NewService(credentials, sessions, limiter, logger),
		Tasks:  tasks.NewService(store, c.Now),
		DB:     conn,
		Logger: logger,
		Now:    c.Now,
	}
	return &testApp{t: t, routes: h.Routes(), clock: c}
}

// do sends body as JSON (when non-nil) with an optional bearer token.
func (a *testApp) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				a.t.Fatalf("marshal body: %v", err)
			}
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.routes.ServeHTTP(rec, req)
	return rec
}

// register creates a user and returns its token.
func (a *testApp) register(name, email string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":                  name,
		"email":                 email,
		"password":              testPassword,
		"password_confirmation": testPassword,
	})
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("register %s: want 201, got %d body=%s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		Authorization authorizationResource `json:"authorization"`
	}
	decode(a.t, rec, &resp)
	return resp.Authorization.Token
}

// createTask posts body and returns the new task.
func (a *testApp) createTask(token string, body any) taskResource {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/tasks", token, body)
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("create task: want 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data taskResource `json:"data"`
	}
	decode(a.t, rec, &resp)
	return resp.Data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rec.Body.String())
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	decode(t, rec, &resp)
	return resp
}
