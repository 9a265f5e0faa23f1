// RedactingLogger is a structured HTTP logger that scrubs credentials and
// obvious PII from request metadata before emitting logs.
//
//   - Never logs request or response bodies.
//   - Masks credential headers (Authorization, Cookie, Set-Cookie, plus custom).
//   - Replaces API tokens, emails, phone numbers and UUIDs found in query
//     strings and other header values.
//   - Fully masks selected query parameters.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders:     []string{"X-Api-Key"},
//	    MaskQueryParams: []string{"token"},
//	}))
//
// It also attaches a request-scoped logger (request id, method, route) that
// handlers fetch with LoggerFrom and services with log.Ctx.

package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders lists extra header names whose values are replaced with
	// "[REDACTED]". Case-insensitive; merged with Authorization, Cookie and
	// Set-Cookie.
	MaskHeaders []string
	// MaskQueryParams lists query parameter names whose values are replaced
	// with "[REDACTED]". Case-insensitive.
	MaskQueryParams []string
}

var (
	apiTokenRE = regexp.MustCompile(`\bast_[0-9a-fA-F]{16,}\b`)
	uuidRE     = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone pattern, so hex from UUIDs or tokens never matches.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactPII replaces tokens, ids, emails and phone numbers in s. Order
// matters: tokens and UUIDs first, phone (the loosest pattern) last.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = apiTokenRE.ReplaceAllString(s, "[REDACTED:token]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed. Level is info, warn for 4xx, error for 5xx or
// when handlers recorded errors with c.Error.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	maskQuery := make(map[string]struct{}, len(opts.MaskQueryParams))
	for _, q := range opts.MaskQueryParams {
		if q = strings.ToLower(strings.TrimSpace(q)); q != "" {
			maskQuery[q] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redactPII(maskQueryValues(c.Request.URL.RawQuery, maskQuery))

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactPII(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		attachLogger(c, &scoped)

		c.Next()

		status := c.Writer.Status()
		if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
			reqID = rid
		}

		ev := log.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", truncate(safeQuery, maxQueryLogLength)).
			Str("auth", AuthMethod(c)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders)
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", redactPII(c.Errors.String()))
		}
		ev.Msg("http_request")
	}
}

// maskQueryValues replaces the values of masked parameters in place. Other
// pairs keep their raw encoding so redactPII still sees them as sent.
func maskQueryValues(raw string, masked map[string]struct{}) string {
	if raw == "" || len(masked) == 0 {
		return raw
	}
	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if _, ok := masked[strings.ToLower(name)]; ok {
			pairs[i] = key + "=[REDACTED]"
		}
	}
	return strings.Join(pairs, "&")
}
