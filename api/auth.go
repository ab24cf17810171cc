/*
auth.go - Session auth gate handlers

PURPOSE:
  Register/login/logout/me. The ingestion core treats owner identity as
  an opaque input; these handlers are the collaborator that produces it.

ENDPOINTS:
  POST /api/register   Create account, start session (409 on duplicate email)
  POST /api/login      Verify credentials, start session
  POST /api/logout     Expire the session cookie
  GET  /api/me         Current user's email

PASSWORDS:
  bcrypt with the default cost. Hashes are never returned by the API.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/salesboard/ingest-engine/store/sqlite"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Register creates an account and starts a session.
// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "Invalid email address", nil)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password", err)
		return
	}

	user := sqlite.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, sqlite.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "Email already registered", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	if err := h.setSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "ok"})
}

// Login verifies credentials and starts a session.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up user", err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}

	if err := h.setSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start session", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}

// Logout expires the session cookie.
// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}

// Me returns the current user.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Email: user.Email})
}
