package handlers

import (
	"net/http"
	"strings"

	"github.com/chepyr/tasktracker/internal/auth"
)

func requestClient(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{IP: clientIP(r), UserAgent: r.UserAgent()}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var input auth.RegisterInput
	if !decodeJSON(w, r, &input) {
		return
	}

	user, tok, err := h.Auth.Register(r.Context(), input, requestClient(r))
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]any{
		"message":       "User registered successfully",
		"user":          newUserResource(user),
		"authorization": newAuthorization(tok),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if err := auth.ValidationError(input.Validate()); err != nil {
		h.sendAppError(w, r, err)
		return
	}

	user, tok, err := h.Auth.Login(r.Context(), input.Email, input.Password, requestClient(r))
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"message":       "Login successful",
		"user":          newUserResource(user),
		"authorization": newAuthorization(tok),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), bearerToken(r)); err != nil {
		h.sendAppError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

// Refresh swaps a live token for a new one; the old token stops working.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Auth.Refresh(r.Context(), bearerToken(r))
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"authorization": newAuthorization(tok)})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Auth.WhoAmI(r.Context(), identityFrom(r.Context()))
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"user": newUserResource(user)})
}
