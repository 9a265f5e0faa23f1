// Package session validates browser sessions carried in a cookie. A session
// is an HS256-signed JWT whose "email" claim (or "sub" when email is absent)
// names the signed-in user. Tokens are minted by the sign-in provider; Issue
// exists for tests and local development.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is used when Manager.CookieName is empty.
const DefaultCookieName = "session"

// ErrNoSession is returned when the request carries no session cookie.
var ErrNoSession = errors.New("no session")

// ErrInvalidSession is returned for expired, tampered or identity-less tokens.
var ErrInvalidSession = errors.New("invalid session")

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Manager validates and issues session tokens signed with a shared secret.
type Manager struct {
	secret     []byte
	CookieName string
	// Leeway tolerates clock skew on exp/nbf checks.
	Leeway time.Duration
}

// NewManager returns a Manager. An empty secret disables sessions: every
// Validate call reports ErrNoSession.
func NewManager(secret, cookieName string) *Manager {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	return &Manager{secret: []byte(secret), CookieName: cookieName, Leeway: 30 * time.Second}
}

// Enabled reports whether a signing secret is configured.
func (m *Manager) Enabled() bool { return len(m.secret) > 0 }

// Validate returns the identity of the session cookie on r.
func (m *Manager) Validate(r *http.Request) (string, error) {
	if !m.Enabled() {
		return "", ErrNoSession
	}
	c, err := r.Cookie(m.CookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", ErrNoSession
	}
	return m.ValidateToken(c.Value)
}

// ValidateToken parses a session JWT and returns its identity, lower-cased.
func (m *Manager) ValidateToken(raw string) (string, error) {
	if !m.Enabled() {
		return "", ErrNoSession
	}
	tok, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.Leeway),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	cl, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return "", ErrInvalidSession
	}
	id := strings.TrimSpace(cl.Email)
	if id == "" {
		id = strings.TrimSpace(cl.Subject)
	}
	if id == "" {
		return "", ErrInvalidSession
	}
	return strings.ToLower(id), nil
}

// Issue signs a session for email that expires after ttl.
func (m *Manager) Issue(email string, ttl time.Duration) (string, error) {
	if !m.Enabled() {
		return "", errors.New("session secret is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	now := time.Now()
	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(m.secret)
}

// Cookie wraps a signed session value in an http.Cookie for this manager.
func (m *Manager) Cookie(value string) *http.Cookie {
	return &http.Cookie{Name: m.CookieName, Value: value, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode}
}
