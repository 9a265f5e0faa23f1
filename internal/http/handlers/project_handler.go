// Project HTTP handlers.
//
// This file exposes REST endpoints for projects:
//   - GET    /projects               (list, weak ETag support)
//   - POST   /projects               (create, Idempotency-Key aware)
//   - GET    /projects/{id}          (read one)
//   - DELETE /projects/{id}          (soft delete)
//   - PATCH  /projects/{id}          (restore)
//   - GET    /projects/{id}/history  (status timeline)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/http/middleware"
	"github.com/tbourn/go-status-backend/internal/services"
	"github.com/tbourn/go-status-backend/internal/token"
	"github.com/tbourn/go-status-backend/internal/utils"
)

//
// DTOs
//

// CreateProjectRequest is the JSON payload for creating a project.
type CreateProjectRequest struct {
	// Name is normalized server-side and must be 1-255 characters.
	Name string `json:"name" binding:"required" example:"Payments API"`
}

// ListProjectsResponse wraps the project list.
type ListProjectsResponse struct {
	Projects []domain.ProjectWithStatus `json:"projects"`
}

// HistoryResponse is one page of a project's status timeline.
type HistoryResponse struct {
	History []domain.StatusHistory `json:"history"`
	Total   int64                  `json:"total" example:"42"`
	Limit   int                    `json:"limit" example:"20"`
}

//
// Helpers
//

// listQuery builds the service query from ?include_deleted and ?scope.
func listQuery(c *gin.Context) (services.ListQuery, error) {
	q := services.ListQuery{Viewer: middleware.UserID(c)}
	if raw := c.Query("include_deleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errors.New("include_deleted must be a boolean")
		}
		q.IncludeDeleted = v
	}
	switch c.Query("scope") {
	case "", "own":
	case "all":
		q.AllOwners = true
	default:
		return q, errors.New("scope must be one of: own, all")
	}
	return q, nil
}

// listETag derives a weak validator for the list. The viewer is folded in as
// a digest so that two identities never share a validator.
func listETag(q services.ListQuery, count, maxUpdated int64) string {
	viewer := "public"
	if q.Viewer != "" {
		viewer = token.Hash(strings.ToLower(q.Viewer))[:12]
	}
	return fmt.Sprintf(`W/"projects:%s:%t:%t:%d:%d"`, viewer, q.AllOwners, q.IncludeDeleted, count, maxUpdated)
}

// etagMatches implements weak comparison against an If-None-Match value,
// which may list several validators or be "*".
func etagMatches(inm, etag string) bool {
	if inm == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, part := range strings.Split(inm, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == want {
			return true
		}
	}
	return false
}

// projectID reads :id. Values that are not UUIDs cannot name a project, so
// they are answered with 404 without a lookup.
func projectID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "project not found")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// ListProjects godoc
// @ID          listProjects
// @Summary     List projects
// @Description Anonymous callers get every live project. Authenticated callers get their own projects;
// @Description admins may pass scope=all to see everyone's. Supports weak ETag via If-None-Match.
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
//
// @Param       include_deleted  query   bool    false "Include soft-deleted projects"  default(false)
// @Param       scope            query   string  false "own (default) or all (admins)"   Enums(own, all)
// @Param       If-None-Match    header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListProjectsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "scope=all without admin rights"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /projects [get]
func (h *Handlers) ListProjects(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := listQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// ETag pre-check (best effort).
	count, maxTS, err := h.projects.Stats(ctx, q)
	switch {
	case err == nil:
		etag := listETag(q, count, maxTS)
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if etagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return
		}
	case errors.Is(err, services.ErrForbiddenScope):
		serviceError(c, err)
		return
	default:
		middleware.LoggerFrom(c).Warn().Err(err).Msg("project stats failed; serving without ETag")
	}

	items, err := h.projects.List(ctx, q)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListProjectsResponse{Projects: items})
}

// CreateProject godoc
// @ID          createProject
// @Summary     Create a project
// @Description Creates a project owned by the caller. A retry carrying the same Idempotency-Key
// @Description returns the originally created project with 200 and Idempotency-Replayed: true.
// @Tags        Projects
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateProjectRequest  true  "Project payload"
//
// @Success     201  {object}  domain.ProjectWithStatus
// @Success     200  {object}  domain.ProjectWithStatus "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse "Name already used by a live project"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /projects [post]
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	p, replayed, err := h.projects.CreateIdempotent(c.Request.Context(), middleware.UserID(c), req.Name, key)
	if err != nil {
		serviceError(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, p)
		return
	}
	ok(c, http.StatusCreated, p)
}

// GetProject godoc
// @ID          getProject
// @Summary     Get a project
// @Description Returns one of the caller's projects with its current status.
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Project ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ProjectWithStatus
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Project not found"
// @Router      /projects/{id} [get]
func (h *Handlers) GetProject(c *gin.Context) {
	id, found := projectID(c)
	if !found {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeleteProject godoc
// @ID          deleteProject
// @Summary     Soft-delete a project
// @Description Flags the project as deleted. History is kept. Deleting twice succeeds.
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Project ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ProjectWithStatus
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Project not found"
// @Router      /projects/{id} [delete]
func (h *Handlers) DeleteProject(c *gin.Context) {
	id, found := projectID(c)
	if !found {
		return
	}
	p, err := h.projects.Delete(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// RestoreProject godoc
// @ID          restoreProject
// @Summary     Restore a deleted project
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Project ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ProjectWithStatus
// @Failure     400  {object}  handlers.ErrorResponse "Project is not deleted"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Project not found"
// @Router      /projects/{id} [patch]
func (h *Handlers) RestoreProject(c *gin.Context) {
	id, found := projectID(c)
	if !found {
		return
	}
	p, err := h.projects.Restore(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ProjectHistory godoc
// @ID          projectHistory
// @Summary     Status timeline
// @Description Returns the newest status entries first.
// @Tags        Projects
// @Produce     json
// @Security    BearerAuth
// @Param       id     path      string  true   "Project ID (UUID)"  format(uuid)
// @Param       limit  query     int     false  "Max entries"  minimum(1) maximum(100) default(20)
// @Success     200    {object}  handlers.HistoryResponse
// @Failure     401    {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404    {object}  handlers.ErrorResponse "Project not found"
// @Router      /projects/{id}/history [get]
func (h *Handlers) ProjectHistory(c *gin.Context) {
	id, found := projectID(c)
	if !found {
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), h.DefaultHistoryLimit)

	items, total, limit, err := h.projects.History(c.Request.Context(), middleware.UserID(c), id, limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, HistoryResponse{History: items, Total: total, Limit: limit})
}
