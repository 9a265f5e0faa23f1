// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the authentication gate. Every API request is resolved
// to at most one identity:
//
//  1. A well-formed, active bearer token in the Authorization header.
//  2. Otherwise a valid session cookie.
//  3. Otherwise the request is anonymous.
//
// A bad bearer token never fails the request on its own; it falls through to
// the session check. Handlers that need an identity chain RequireUser().
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-status-backend/internal/token"
)

// Gin context keys set by Authenticate.
const (
	ctxKeyUserID     = "userID"
	ctxKeyAuthMethod = "authMethod"
)

// Authentication methods reported by AuthMethod.
const (
	AuthToken     = "token"
	AuthSession   = "session"
	AuthAnonymous = "anonymous"
)

// TokenValidator resolves a raw API token to its owner. ok is false for
// unknown or revoked tokens; err is reserved for lookup failures.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (owner string, ok bool, err error)
}

// SessionValidator resolves the session carried by a request to an identity.
type SessionValidator interface {
	Validate(r *http.Request) (string, error)
}

// Authenticate resolves the caller identity and stores it under the "userID"
// context key together with the method used. Either validator may be nil.
func Authenticate(tokens TokenValidator, sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens != nil {
			if raw, ok := token.FromAuthorizationHeader(c.GetHeader("Authorization")); ok {
				owner, valid, err := tokens.Validate(c.Request.Context(), raw)
				if err != nil {
					LoggerFrom(c).Warn().Err(err).Msg("token lookup failed; trying session")
				}
				if valid && owner != "" {
					setIdentity(c, owner, AuthToken)
					c.Next()
					return
				}
			}
		}
		if sessions != nil {
			if id, err := sessions.Validate(c.Request); err == nil && id != "" {
				setIdentity(c, id, AuthSession)
				c.Next()
				return
			}
		}
		c.Set(ctxKeyAuthMethod, AuthAnonymous)
		c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated identity, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AuthMethod returns how the request was authenticated.
func AuthMethod(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyAuthMethod); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AuthAnonymous
}

func setIdentity(c *gin.Context, id, method string) {
	c.Set(ctxKeyUserID, id)
	c.Set(ctxKeyAuthMethod, method)
	lg := LoggerFrom(c).With().Str("auth", method).Logger()
	c.Set(ctxKeyLogger, &lg)
	c.Request = c.Request.WithContext(lg.WithContext(c.Request.Context()))
}

// abortError writes the standard error envelope from middleware, which cannot
// depend on the handlers package.
func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":       code,
			"message":    msg,
			"request_id": requestIDFrom(c),
		},
	})
}
