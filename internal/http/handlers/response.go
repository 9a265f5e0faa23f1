// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by all endpoints. Errors are
// always written as a nested envelope with a stable code, a message that is
// safe to show to users, and the request's correlation ID:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "error": {
//	    "code": "not_found",
//	    "message": "project not found",
//	    "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	  }
//	}
//
// Success payloads are the resource itself, or {"success": true, ...} for
// operations that have no natural resource to return.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-status-backend/internal/http/middleware"
)

// ErrorBody is the inner object of ErrorResponse.
type ErrorBody struct {
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"project not found"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// SuccessResponse acknowledges operations without a resource body.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// fail aborts the request with the error envelope. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   msg,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	}})
}

// Fail is the exported variant of fail() for the router's NoRoute/NoMethod
// handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// internalError records err on the Gin context (the access logger prints
// c.Errors) and answers 500 with a generic message.
func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
