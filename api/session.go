/*
session.go - Cookie-session plumbing

The auth gate uses a gorilla/sessions CookieStore: the session carries
only the user id. requireAuth() rejects unauthenticated requests and
puts the user id on the request context; handlers treat owner identity
as an opaque string.
*/
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
)

const sessionName = "salesboard_session"

type contextKey string

const userIDKey contextKey = "user_id"

// NewSessionStore builds the cookie store used by the router.
func NewSessionStore(secret []byte) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.MaxAge(86400 * 7) // 7 days
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// requireAuth gates a route group on a valid session.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.sessionUserID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionUserID extracts the user id from the request's session.
func (h *Handler) sessionUserID(r *http.Request) (string, bool) {
	session, err := h.Sessions.Get(r, sessionName)
	if err != nil {
		return "", false
	}
	userID, ok := session.Values["user_id"].(string)
	return userID, ok && userID != ""
}

// setSession starts a session for the user.
func (h *Handler) setSession(w http.ResponseWriter, r *http.Request, userID string) error {
	session, _ := h.Sessions.New(r, sessionName)
	session.Values["user_id"] = userID
	return session.Save(r, w)
}

// clearSession expires the session cookie.
func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := h.Sessions.Get(r, sessionName)
	session.Options.MaxAge = -1
	_ = session.Save(r, w)
}

// ownerFromContext returns the authenticated owner id set by requireAuth.
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(userIDKey).(string)
	return owner
}
