// Package services defines the business logic for projects, status updates
// and API tokens. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"

	"github.com/tbourn/go-status-backend/internal/domain"
)

// Project-related errors.
var (
	// ErrProjectNotFound indicates that the project does not exist or is not
	// accessible to the current user. Foreign projects are reported this way
	// so their existence is not revealed.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectNotDeleted is returned when restoring a live project.
	ErrProjectNotDeleted = errors.New("project is not deleted")

	// ErrInvalidName is returned for names that are empty after normalization
	// or longer than the allowed rune count.
	ErrInvalidName = errors.New("name must be between 1 and 255 characters")

	// ErrNameTaken is returned when the owner already has a live project with
	// the same name.
	ErrNameTaken = errors.New("a project with this name already exists")

	// ErrForbiddenScope is returned when a non-admin asks for every owner's
	// projects.
	ErrForbiddenScope = errors.New("scope=all requires an admin account")
)

// Status-related errors.
var (
	// ErrInvalidStatus is returned for status values outside the closed enum.
	ErrInvalidStatus = domain.ErrInvalidStatus

	// ErrMessageTooLong is returned when a status message exceeds the limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrProjectRefRequired is returned when a status update names neither a
	// project id nor a project name.
	ErrProjectRefRequired = errors.New("project id or name is required")
)

// Token-related errors.
var (
	// ErrTokenNotFound indicates the token does not exist, belongs to someone
	// else, or is already revoked.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenNameRequired is returned when a token is created without a name.
	ErrTokenNameRequired = errors.New("token name is required")

	// ErrTokenNameTooLong is returned when a token name exceeds the limit.
	ErrTokenNameTooLong = errors.New("token name too long")
)
