package dashboard

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "agentsight_session"
	sessionDuration   = 24 * time.Hour

	maxLoginFailures = 5
	lockoutDuration  = 15 * time.Minute
)

type authSession struct {
	token     string
	createdAt time.Time
}

type loginAttempts struct {
	failures    int
	lockedUntil time.Time
}

// Auth manages access-code authentication and session tokens for the API.
type Auth struct {
	accessCode string
	sessions   map[string]authSession
	attempts   map[string]*loginAttempts
	mu         sync.RWMutex
}

// NewAuth generates a random 8-digit access code and returns a new Auth instance.
func NewAuth() *Auth {
	return &Auth{
		accessCode: generateAccessCode(),
		sessions:   make(map[string]authSession),
		attempts:   make(map[string]*loginAttempts),
	}
}

// AccessCode returns the code the user must enter to authenticate.
func (a *Auth) AccessCode() string {
	return a.accessCode
}

// ValidateCode checks if the provided code matches the access code.
func (a *Auth) ValidateCode(code string) bool {
	return code == a.accessCode
}

// CreateSession generates a session token and stores it.
func (a *Auth) CreateSession() string {
	token := generateSessionToken()
	a.mu.Lock()
	a.sessions[token] = authSession{token: token, createdAt: time.Now()}
	a.mu.Unlock()
	return token
}

// ValidateSession checks if a session token is valid and not expired.
func (a *Auth) ValidateSession(token string) bool {
	if token == "" {
		return false
	}
	a.mu.RLock()
	s, ok := a.sessions[token]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(s.createdAt) < sessionDuration
}

// InvalidateSession drops a session token.
func (a *Auth) InvalidateSession(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// CheckRateLimit reports whether ip may attempt a login, and how long
// until the lockout lifts when it may not.
func (a *Auth) CheckRateLimit(ip string) (bool, time.Duration) {
	a.mu.RLock()
	at, ok := a.attempts[ip]
	a.mu.RUnlock()
	if !ok {
		return true, 0
	}
	if remaining := time.Until(at.lockedUntil); remaining > 0 {
		return false, remaining
	}
	return true, 0
}

// RecordFailure counts a failed login for ip. Crossing the failure
// threshold locks the ip out and returns the lockout duration;
// otherwise returns 0.
func (a *Auth) RecordFailure(ip string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.attempts[ip]
	if !ok {
		at = &loginAttempts{}
		a.attempts[ip] = at
	}
	at.failures++
	if at.failures >= maxLoginFailures {
		at.failures = 0
		at.lockedUntil = time.Now().Add(lockoutDuration)
		return lockoutDuration
	}
	return 0
}

// RecordSuccess clears the failure history for ip.
func (a *Auth) RecordSuccess(ip string) {
	a.mu.Lock()
	delete(a.attempts, ip)
	a.mu.Unlock()
}

// Middleware protects API routes. Login, health and metrics stay open;
// everything else requires a valid session token from the cookie or the
// Authorization header.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login", "/healthz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		if !a.ValidateSession(requestToken(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestToken pulls the session token from the session cookie or, for
// SDK clients, from a bearer Authorization header.
func requestToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// clientIP extracts the remote host without the port. The server binds
// localhost by default, so no proxy headers are consulted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// generateAccessCode returns a random 8-digit numeric code.
func generateAccessCode() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(100_000_000))
	return fmt.Sprintf("%08d", n.Int64())
}

// generateSessionToken returns a cryptographically random hex string.
func generateSessionToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
