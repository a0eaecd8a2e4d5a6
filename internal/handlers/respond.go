package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/chepyr/tasktracker/internal/apperr"
	"github.com/chepyr/tasktracker/internal/tasks"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, errorResponse{Error: message})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindAuth, apperr.KindSession:
		return http.StatusUnauthorized
	case apperr.KindAuthorization, apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sendAppError renders err according to its kind. A task that exists but
// belongs to someone else gets the same response as a missing one.
// Unexpected errors are logged and rendered without detail unless Debug is
// set.
func (h *Handler) sendAppError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg := "Internal server error"
		if h.Debug {
			msg = err.Error()
		}
		sendError(w, msg, http.StatusInternalServerError)
		return
	}

	body := errorResponse{Error: e.Message, Code: e.Code, Errors: e.Fields}
	switch e.Kind {
	case apperr.KindAuthorization, apperr.KindNotFound:
		if errors.Is(err, tasks.ErrForbidden) {
			h.logger().Warn("denied access to task", "method", r.Method, "path", r.URL.Path, "user_id", identityFrom(r.Context()).ID)
		}
		body = errorResponse{Error: tasks.ErrTaskNotFound.Message, Code: tasks.ErrTaskNotFound.Code}
	case apperr.KindRateLimit:
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	case apperr.KindUnavailable:
		h.logger().Warn("dependency unavailable", "path", r.URL.Path, "code", e.Code, "error", err)
	}
	sendJSON(w, statusFor(e.Kind), body)
}
