package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "soundmeter_session"
	apiKeyHeader      = "X-API-Key"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute

	// sweepEvery bounds how many tokens are issued between expiry sweeps.
	sweepEvery = 32
)

// tokenStore holds random tokens until they expire.
type tokenStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	expires map[string]time.Time
	issued  int
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{ttl: ttl, expires: make(map[string]time.Time)}
}

// issue returns a fresh token, or "" if the system RNG failed.
func (s *tokenStore) issue() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	token := hex.EncodeToString(b[:])

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issued++; s.issued%sweepEvery == 0 {
		maps.DeleteFunc(s.expires, func(_ string, at time.Time) bool { return now.After(at) })
	}
	s.expires[token] = now.Add(s.ttl)
	return token
}

// check reports whether token is live. Expired tokens are dropped, and
// consume drops a live one too.
func (s *tokenStore) check(token string, consume bool) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.expires[token]
	if !ok {
		return false
	}
	live := time.Now().Before(at)
	if consume || !live {
		delete(s.expires, token)
	}
	return live
}

func (s *tokenStore) revoke(token string) {
	s.mu.Lock()
	delete(s.expires, token)
	s.mu.Unlock()
}

// SessionManager tracks logged-in dashboard sessions and single-use CSRF
// tokens for the login form. It is safe for concurrent use.
type SessionManager struct {
	sessions *tokenStore
	csrf     *tokenStore
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: newTokenStore(sessionDuration),
		csrf:     newTokenStore(csrfTokenDuration),
	}
}

// Create starts a session and returns its token.
func (sm *SessionManager) Create() string { return sm.sessions.issue() }

// Validate reports whether token names a live session.
func (sm *SessionManager) Validate(token string) bool { return sm.sessions.check(token, false) }

// Delete ends a session.
func (sm *SessionManager) Delete(token string) { sm.sessions.revoke(token) }

// CreateCSRFToken issues a token for one form submission.
func (sm *SessionManager) CreateCSRFToken() string { return sm.csrf.issue() }

// ValidateCSRFToken reports whether token is live and uses it up.
func (sm *SessionManager) ValidateCSRFToken(token string) bool { return sm.csrf.check(token, true) }

// HasSession reports whether the request carries a valid session cookie.
func (sm *SessionManager) HasSession(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	return err == nil && sm.Validate(cookie.Value)
}

// AuthMiddleware sends requests without a session to /login.
func (sm *SessionManager) AuthMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !sm.HasSession(r) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			next(w, r)
		}
	}
}

// APIMiddleware guards the REST API. A request passes with a session cookie
// or an X-API-Key header equal to apiKey(). An empty key turns header auth
// off. Rejections get a JSON 401.
func (sm *SessionManager) APIMiddleware(apiKey func() string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if sm.HasSession(r) || keyMatches(r.Header.Get(apiKeyHeader), apiKey()) {
				next(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"}) //nolint:errcheck // response already committed
		}
	}
}

func keyMatches(given, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// Login checks the submitted credentials in constant time and sets the
// session cookie on success.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password, configUser, configPass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(configUser))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(configPass))
	if userOK&passOK != 1 {
		return false
	}
	token := sm.Create()
	if token == "" {
		return false
	}
	setSessionCookie(w, r, token, int(sessionDuration/time.Second))
	return true
}

// Logout ends the caller's session and clears the cookie.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.Delete(cookie.Value)
	}
	setSessionCookie(w, r, "", -1)
}

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
