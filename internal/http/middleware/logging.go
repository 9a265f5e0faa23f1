// Package middleware holds the Gin middleware shared by the API: request
// correlation, redacted access logs, panic recovery, authentication,
// idempotency, security headers and Prometheus metrics.
//
// Order matters. RequestID runs first so RedactingLogger and Recovery can
// stamp every log line and error envelope with the correlation ID.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context keys and limits shared by the logging middleware.
const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	ctxKeyLogger    = "logger"

	maxQueryLogLength  = 2048 // bytes of raw query kept in access logs
	maxRequestIDLength = 128  // longer client IDs are replaced
)

// RequestID reuses a short enough X-Request-ID from the client or mints a
// UUID, then exposes it on the response and under "requestID" in the Gin
// context. Every error envelope echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestIDFrom prefers the echoed response header and falls back to the
// context value, so it works with or without RequestID installed upstream.
func requestIDFrom(c *gin.Context) string {
	if id := c.Writer.Header().Get(requestIDHeader); id != "" {
		return id
	}
	return c.GetString(requestIDKey)
}

// Recovery turns a panic into a logged stack trace and, if the handler had
// not started writing, a 500 internal_error envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Str("request_id", requestIDFrom(c)).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortError(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger attached by RedactingLogger (enriched by
// Authenticate), or the global logger when none is attached. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(ctxKeyLogger).(*zerolog.Logger); ok && lg != nil {
		return lg
	}
	return &log.Logger
}

// attachLogger stores l for both LoggerFrom and zerolog's log.Ctx.
func attachLogger(c *gin.Context, l *zerolog.Logger) {
	c.Set(ctxKeyLogger, l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// truncate cuts s to at most n bytes plus an ellipsis; n <= 0 keeps s whole.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
