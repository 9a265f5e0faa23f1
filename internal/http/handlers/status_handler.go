// Status update handlers.
//
//   - POST /projects/status        (target by id or name; a new name creates the project)
//   - POST /projects/{id}/status   (target by path id)
//
// Both accept a session or an API token, so CI jobs and probes can report
// status with a bearer token alone.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/http/middleware"
	"github.com/tbourn/go-status-backend/internal/services"
)

// StatusUpdateRequest is the JSON payload of a status update. Exactly one of
// ID or Name is needed; ID wins when both are sent.
type StatusUpdateRequest struct {
	ID      string  `json:"id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Name    string  `json:"name,omitempty" example:"Payments API"`
	Status  string  `json:"status" binding:"required" example:"degraded" enums:"operational,degraded,outage,maintenance,unknown"`
	Message *string `json:"message,omitempty" example:"elevated latency in eu-west"`
}

// StatusUpdateResponse acknowledges an accepted update.
type StatusUpdateResponse struct {
	Success   bool                  `json:"success" example:"true"`
	ProjectID string                `json:"project_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Created   bool                  `json:"created" example:"false"`
	Entry     *domain.StatusHistory `json:"entry"`
}

// PostStatus godoc
// @ID          postStatus
// @Summary     Report project status
// @Description Appends a status entry to a project identified by id or name. Updating by a name
// @Description the caller does not own yet creates that project (created=true).
// @Tags        Status
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.StatusUpdateRequest  true  "Status payload"
// @Success     200   {object}  handlers.StatusUpdateResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404   {object}  handlers.ErrorResponse "Project not found"
// @Failure     500   {object}  handlers.ErrorResponse "Internal error"
// @Router      /projects/status [post]
func (h *Handlers) PostStatus(c *gin.Context) {
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	h.updateStatus(c, services.StatusUpdate{
		ProjectID: req.ID,
		Name:      req.Name,
		Status:    req.Status,
		Message:   req.Message,
	})
}

// PostProjectStatus godoc
// @ID          postProjectStatus
// @Summary     Report status for a project id
// @Tags        Status
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                        true  "Project ID (UUID)"  format(uuid)
// @Param       body  body      handlers.StatusUpdateRequest  true  "Status payload (id and name ignored)"
// @Success     200   {object}  handlers.StatusUpdateResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404   {object}  handlers.ErrorResponse "Project not found"
// @Router      /projects/{id}/status [post]
func (h *Handlers) PostProjectStatus(c *gin.Context) {
	id, found := projectID(c)
	if !found {
		return
	}
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	h.updateStatus(c, services.StatusUpdate{
		ProjectID: id,
		Status:    req.Status,
		Message:   req.Message,
	})
}

func (h *Handlers) updateStatus(c *gin.Context, u services.StatusUpdate) {
	res, err := h.statuses.Update(c.Request.Context(), middleware.UserID(c), u)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, StatusUpdateResponse{
		Success:   true,
		ProjectID: res.ProjectID,
		Created:   res.Created,
		Entry:     res.Entry,
	})
}
