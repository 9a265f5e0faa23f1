// API token handlers.
//
//   - GET    /tokens        (list the caller's tokens, newest first)
//   - POST   /tokens        (mint a token; the secret is returned once)
//   - DELETE /tokens/{id}   (revoke)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/http/middleware"
)

// CreateTokenRequest is the JSON payload for minting a token.
type CreateTokenRequest struct {
	Name string `json:"name" binding:"required" example:"ci-deploy"`
}

// CreateTokenResponse carries the raw secret. It is never shown again.
type CreateTokenResponse struct {
	Token     string `json:"token" example:"ast_0f3c9a..."`
	ID        string `json:"id" example:"5f0c6c1e-7f0e-4f57-9a4e-0d7a4c6f8b21"`
	Name      string `json:"name" example:"ci-deploy"`
	Prefix    string `json:"prefix" example:"ast_0f3c9a"`
	CreatedAt int64  `json:"created_at" example:"1735689600"`
}

// ListTokensResponse wraps the caller's tokens. Secrets are never included.
type ListTokensResponse struct {
	Tokens []domain.UserToken `json:"tokens"`
}

// ListTokens godoc
// @ID          listTokens
// @Summary     List API tokens
// @Tags        Tokens
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListTokensResponse
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /tokens [get]
func (h *Handlers) ListTokens(c *gin.Context) {
	items, err := h.tokens.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListTokensResponse{Tokens: items})
}

// CreateToken godoc
// @ID          createToken
// @Summary     Create an API token
// @Description Returns the raw token once. Store it; only a digest is kept server-side.
// @Tags        Tokens
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateTokenRequest  true  "Token payload"
// @Success     201   {object}  handlers.CreateTokenResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /tokens [post]
func (h *Handlers) CreateToken(c *gin.Context) {
	var req CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	t, raw, err := h.tokens.Create(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, CreateTokenResponse{
		Token:     raw,
		ID:        t.ID,
		Name:      t.Name,
		Prefix:    t.Prefix,
		CreatedAt: t.CreatedAt,
	})
}

// RevokeToken godoc
// @ID          revokeToken
// @Summary     Revoke an API token
// @Description Revoked tokens stop authenticating immediately. Unknown, foreign and
// @Description already-revoked tokens all answer 404.
// @Tags        Tokens
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Token ID"
// @Success     200  {object}  handlers.SuccessResponse
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Token not found"
// @Router      /tokens/{id} [delete]
func (h *Handlers) RevokeToken(c *gin.Context) {
	if err := h.tokens.Revoke(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, SuccessResponse{Success: true})
}
