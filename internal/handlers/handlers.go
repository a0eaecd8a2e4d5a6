package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chepyr/tasktracker/internal/auth"
	"github.com/chepyr/tasktracker/internal/tasks"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	Auth   *auth.Service
	Tasks  *tasks.Service
	DB     Pinger
	Logger *slog.Logger
	// Debug exposes internal error detail in 500 responses.
	Debug bool
	Now   func() time.Time
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

/*
routes:
- POST /api/auth/register, /api/auth/login, /api/auth/logout, /api/auth/refresh
- GET /api/auth/me
- GET, POST /api/tasks
- GET, PUT, PATCH, DELETE /api/tasks/{id}
- PATCH /api/tasks/{id}/complete, /api/tasks/{id}/reopen
- POST /api/tasks/{id}/restore
- GET /health
*/
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.HandleFunc("GET /api/auth/me", h.AuthMiddleware(h.Me))

	mux.HandleFunc("GET /api/tasks", h.AuthMiddleware(h.listTasks))
	mux.HandleFunc("POST /api/tasks", h.AuthMiddleware(h.createTask))
	mux.HandleFunc("GET /api/tasks/{id}", h.AuthMiddleware(h.getTask))
	mux.HandleFunc("PUT /api/tasks/{id}", h.AuthMiddleware(h.updateTask))
	mux.HandleFunc("PATCH /api/tasks/{id}", h.AuthMiddleware(h.updateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", h.AuthMiddleware(h.deleteTask))
	mux.HandleFunc("PATCH /api/tasks/{id}/complete", h.AuthMiddleware(h.completeTask))
	mux.HandleFunc("PATCH /api/tasks/{id}/reopen", h.AuthMiddleware(h.reopenTask))
	mux.HandleFunc("POST /api/tasks/{id}/restore", h.AuthMiddleware(h.restoreTask))

	mux.HandleFunc("GET /health", h.Health)

	return h.recoverer(h.logRequests(mux))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.logger().Error("health check failed", "error", err)
			sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger().Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"ip", clientIP(r),
		)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				h.logger().Error("panic serving request", "method", r.Method, "path", r.URL.Path, "panic", v)
				sendError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
