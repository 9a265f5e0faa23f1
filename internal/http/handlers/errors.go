// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and mirror HTTP status semantics. Every error
// response carries one of them inside the envelope written by fail():
//
//	{
//	  "error": {
//	    "code": "not_found",
//	    "message": "project not found",
//	    "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	  }
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
