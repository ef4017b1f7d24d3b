package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sketchsync/sketchsync/internal/auth"
	"github.com/sketchsync/sketchsync/internal/models"
)

// RegisterRequest represents the account registration request body.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthResponse carries an issued bearer token and its identity.
type AuthResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// Register handles account creation.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidEmail(strings.TrimSpace(req.Email)) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(req.Password) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	acc, err := h.auth.Register(r.Context(), req.Email, name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			h.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:    acc.ID.String(),
		Email: acc.Email,
		Name:  acc.Name,
	})
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles credential login and token issuance.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, acc, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.JSON(w, http.StatusOK, AuthResponse{
		Token: token,
		User:  models.Identity{UserID: acc.ID.String(), Name: acc.Name},
	})
}

// AnonymousRequest represents the guest session request body.
type AnonymousRequest struct {
	Name string `json:"name"`
}

// Anonymous issues a short-lived guest token so unregistered users can
// join rooms.
func (h *Handler) Anonymous(w http.ResponseWriter, r *http.Request) {
	var req AnonymousRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	token, identity, err := h.auth.Anonymous(r.Context(), name)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create guest session")
		return
	}

	h.JSON(w, http.StatusCreated, AuthResponse{Token: token, User: identity})
}

// Logout revokes the caller's bearer token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.Error(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
