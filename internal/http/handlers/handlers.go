// Package handlers exposes the REST endpoints of the status API.
//
// Handlers are transport-thin: they bind and validate input, read the caller
// identity set by the auth middleware, call application services, and map
// service errors onto the envelope defined in response.go.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/http/middleware"
	"github.com/tbourn/go-status-backend/internal/services"
)

// ProjectService defines project operations consumed by the handlers.
type ProjectService interface {
	List(ctx context.Context, q services.ListQuery) ([]domain.ProjectWithStatus, error)
	Stats(ctx context.Context, q services.ListQuery) (count, maxUpdatedAt int64, err error)
	Get(ctx context.Context, owner, id string) (*domain.ProjectWithStatus, error)
	CreateIdempotent(ctx context.Context, owner, name, key string) (*domain.ProjectWithStatus, bool, error)
	Delete(ctx context.Context, owner, id string) (*domain.ProjectWithStatus, error)
	Restore(ctx context.Context, owner, id string) (*domain.ProjectWithStatus, error)
	History(ctx context.Context, owner, id string, limit int) ([]domain.StatusHistory, int64, int, error)
}

// StatusService records status updates.
type StatusService interface {
	Update(ctx context.Context, owner string, u services.StatusUpdate) (*services.StatusResult, error)
}

// TokenService manages the caller's API tokens.
type TokenService interface {
	Create(ctx context.Context, owner, name string) (*domain.UserToken, string, error)
	List(ctx context.Context, owner string) ([]domain.UserToken, error)
	Revoke(ctx context.Context, owner, id string) error
}

// Handlers groups the HTTP endpoints. It depends on service interfaces only.
type Handlers struct {
	projects ProjectService
	statuses StatusService
	tokens   TokenService

	// DefaultHistoryLimit applies when ?limit is absent or not a number.
	DefaultHistoryLimit int
}

// New constructs Handlers bound to the given services.
func New(projects ProjectService, statuses StatusService, tokens TokenService) *Handlers {
	return &Handlers{
		projects:            projects,
		statuses:            statuses,
		tokens:              tokens,
		DefaultHistoryLimit: 20,
	}
}

// serviceError maps service sentinels onto HTTP errors. Anything unknown is
// a 500 with a generic message.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProjectNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "project not found")
	case errors.Is(err, services.ErrTokenNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "token not found")
	case errors.Is(err, services.ErrNameTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrForbiddenScope):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid status; expected one of: "+domain.StatusList())
	case errors.Is(err, services.ErrProjectNotDeleted),
		errors.Is(err, services.ErrInvalidName),
		errors.Is(err, services.ErrMessageTooLong),
		errors.Is(err, services.ErrProjectRefRequired),
		errors.Is(err, services.ErrTokenNameRequired),
		errors.Is(err, services.ErrTokenNameTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		internalError(c, err)
	}
}

// MeResponse describes the resolved caller.
type MeResponse struct {
	Authenticated bool   `json:"authenticated" example:"true"`
	UserID        string `json:"user_id,omitempty" example:"alice@example.com"`
	Method        string `json:"method" example:"session"`
}

// Me godoc
// @ID          me
// @Summary     Describe the caller
// @Description Reports whether the request is authenticated and by which method (token, session, anonymous).
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MeResponse
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	uid := middleware.UserID(c)
	ok(c, http.StatusOK, MeResponse{
		Authenticated: uid != "",
		UserID:        uid,
		Method:        middleware.AuthMethod(c),
	})
}
