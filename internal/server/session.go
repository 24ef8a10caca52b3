// Package server provides authentication and the WebSocket control surface
// for the capture agent.
package server

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "capture_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
)

// SessionManager handles user authentication sessions and CSRF tokens.
// Tokens are held in memory only; a restart logs everyone out.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]time.Time // token -> expiry
	csrfTokens map[string]time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]time.Time),
		csrfTokens: make(map[string]time.Time),
	}
}

// newToken returns 32 bytes from crypto/rand as hex, or the empty string
// if the entropy source fails.
func newToken() string {
	raw := make([]byte, 32)
	if _, err := cryptorand.Read(raw); err != nil {
		return ""
	}
	return hex.EncodeToString(raw)
}

// Create opens a session and returns its token, or "" on entropy failure.
func (sm *SessionManager) Create() string {
	token := newToken()
	if token == "" {
		return ""
	}

	sm.mu.Lock()
	sm.sessions[token] = time.Now().Add(sessionDuration)
	sm.mu.Unlock()
	return token
}

// Validate reports whether token names a live session. Expired entries are
// evicted here rather than by a background sweeper.
func (sm *SessionManager) Validate(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	expiry, ok := sm.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(sm.sessions, token)
		return false
	}
	return true
}

// Delete ends a session. Unknown tokens are ignored.
func (sm *SessionManager) Delete(token string) {
	sm.mu.Lock()
	delete(sm.sessions, token)
	sm.mu.Unlock()
}

// RequireAuth wraps a handler so only requests carrying a valid session
// cookie reach it. Everything else gets 401.
func (sm *SessionManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			if sm.Validate(cookie.Value) {
				next(w, r)
				return
			}
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	}
}

// setSessionCookie writes the session cookie. A negative maxAge clears it.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// Login checks the submitted credentials against the configured pair and,
// on a match, opens a session and sets its cookie. Both fields are compared
// in constant time so latency does not reveal which one was wrong.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password, configUser, configPass string) bool {
	match := subtle.ConstantTimeCompare([]byte(username), []byte(configUser)) &
		subtle.ConstantTimeCompare([]byte(password), []byte(configPass))
	if match != 1 {
		return false
	}

	token := sm.Create()
	if token == "" {
		return false
	}

	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout ends the caller's session, if any, and clears the cookie.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.Delete(cookie.Value)
	}
	setSessionCookie(w, r, "", -1)
}

// CreateCSRFToken issues a single-use token for state-changing requests.
// Expired tokens are swept on roughly one call in ten, which keeps the map
// bounded without a background goroutine.
func (sm *SessionManager) CreateCSRFToken() string {
	token := newToken()
	if token == "" {
		return ""
	}

	now := time.Now()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if rand.Intn(10) == 0 {
		for tok, expiry := range sm.csrfTokens {
			if now.After(expiry) {
				delete(sm.csrfTokens, tok)
			}
		}
	}

	sm.csrfTokens[token] = now.Add(csrfTokenDuration)
	return token
}

// ValidateCSRFToken consumes a token and reports whether it was live.
// The token is removed either way; a replay always fails.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	expiry, ok := sm.csrfTokens[token]
	if !ok {
		return false
	}
	delete(sm.csrfTokens, token)
	return time.Now().Before(expiry)
}
