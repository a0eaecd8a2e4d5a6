package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/chepyr/tasktracker/internal/models"
)

type contextKey int

const identityKey contextKey = iota

/*
Resolve the bearer token to a live user and put the identity into the
request context. Failures answer 401 with TOKEN_MISSING, TOKEN_EXPIRED or
TOKEN_INVALID.
*/
func (h *Handler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.Auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			h.sendAppError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, sess.Identity)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func identityFrom(ctx context.Context) models.Identity {
	id, _ := ctx.Value(identityKey).(models.Identity)
	return id
}
