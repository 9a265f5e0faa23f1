// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, and idempotency.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-status-backend/docs" // swagger spec
	"github.com/tbourn/go-status-backend/internal/config"
	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/http/handlers"
	"github.com/tbourn/go-status-backend/internal/http/middleware"
	"github.com/tbourn/go-status-backend/internal/repo"
	"github.com/tbourn/go-status-backend/internal/services"
	"github.com/tbourn/go-status-backend/internal/session"
)

// projectRepoShim adapts the repository free functions to the
// services.ProjectRepo interface.
type projectRepoShim struct{}

func (projectRepoShim) ListProjects(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) ([]domain.ProjectWithStatus, error) {
	return repo.ListProjects(ctx, db, opts)
}

func (projectRepoShim) ProjectsStats(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) (int64, int64, error) {
	return repo.ProjectsStats(ctx, db, opts)
}

func (projectRepoShim) GetProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.ProjectWithStatus, error) {
	return repo.GetProject(ctx, db, id, ownerID)
}

func (projectRepoShim) CreateProject(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	return repo.CreateProject(ctx, db, name, ownerID)
}

func (projectRepoShim) FindProjectByName(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	return repo.FindProjectByName(ctx, db, name, ownerID)
}

func (projectRepoShim) SoftDeleteProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return repo.SoftDeleteProject(ctx, db, id, ownerID)
}

func (projectRepoShim) RestoreProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return repo.RestoreProject(ctx, db, id, ownerID)
}

func (projectRepoShim) GetHistory(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.StatusHistory, error) {
	return repo.GetHistory(ctx, db, projectID, limit)
}

func (projectRepoShim) CountHistory(ctx context.Context, db *gorm.DB, projectID string) (int64, error) {
	return repo.CountHistory(ctx, db, projectID)
}

// statusRepoShim adapts the repository free functions to services.StatusRepo.
type statusRepoShim struct{}

func (statusRepoShim) AppendStatus(ctx context.Context, db *gorm.DB, projectID string, status domain.Status, message *string, ownerID string) (*domain.StatusHistory, error) {
	return repo.AppendStatus(ctx, db, projectID, status, message, ownerID)
}

func (statusRepoShim) UpsertStatusByName(ctx context.Context, db *gorm.DB, ownerID, name string, status domain.Status, message *string) (string, bool, *domain.StatusHistory, error) {
	return repo.UpsertStatusByName(ctx, db, ownerID, name, status, message)
}

// tokenRepoShim adapts the repository free functions to services.TokenRepo.
type tokenRepoShim struct{}

func (tokenRepoShim) CreateToken(ctx context.Context, db *gorm.DB, userID, name, tokenHash, prefix string) (*domain.UserToken, error) {
	return repo.CreateToken(ctx, db, userID, name, tokenHash, prefix)
}

func (tokenRepoShim) GetTokenByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.UserToken, error) {
	return repo.GetTokenByHash(ctx, db, tokenHash)
}

func (tokenRepoShim) TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.TouchToken(ctx, db, id, at)
}

func (tokenRepoShim) ListTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserToken, error) {
	return repo.ListTokens(ctx, db, userID)
}

func (tokenRepoShim) RevokeToken(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	return repo.RevokeToken(ctx, db, id, userID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, compression and security headers
//  8. Authenticate (API group only), then RequireUser per route
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	sessions := session.NewManager(cfg.Session.Secret, cfg.Session.CookieName)

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-API-Key"},
		MaskQueryParams: []string{"token", "access_token"},
	}))
	r.Use(middleware.Recovery())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	projectSvc := services.NewProjectService(db, projectRepoShim{}, cfg.AdminEmails)
	if cfg.IdempotencyTTL > 0 {
		projectSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	if cfg.HistoryMaxLimit > 0 {
		projectSvc.MaxHistoryLimit = cfg.HistoryMaxLimit
	}
	statusSvc := services.NewStatusService(db, statusRepoShim{})
	tokenSvc := services.NewTokenService(db, tokenRepoShim{})

	h := handlers.New(projectSvc, statusSvc, tokenSvc)
	if cfg.HistoryDefaultLimit > 0 {
		h.DefaultHistoryLimit = cfg.HistoryDefaultLimit
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Authenticate(tokenSvc, sessions))
	{
		// Anonymous callers allowed.
		api.GET("/me", h.Me)
		api.GET("/projects", h.ListProjects)

		authed := api.Group("", middleware.RequireUser())

		// Projects
		authed.POST("/projects",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{
				Scope:  services.IdempotencyScopeCreateProject,
				MaxLen: 200,
			}, idempotencyLookup(db)),
			h.CreateProject)
		authed.GET("/projects/:id", h.GetProject)
		authed.DELETE("/projects/:id", h.DeleteProject)
		authed.PATCH("/projects/:id", h.RestoreProject)
		authed.GET("/projects/:id/history", h.ProjectHistory)

		// Status
		authed.POST("/projects/status", h.PostStatus)
		authed.POST("/projects/:id/status", h.PostProjectStatus)

		// Tokens
		authed.GET("/tokens", h.ListTokens)
		authed.POST("/tokens", h.CreateToken)
		authed.DELETE("/tokens/:id", h.RevokeToken)
	}
}

// idempotencyLookup reports whether a live record exists for the tuple.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// corsMiddleware allows every origin without credentials when no allowlist
// is configured. With an allowlist, listed origins are echoed and may send
// the session cookie.
func corsMiddleware(conf config.CORSConfig) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Content-Length"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(conf.AllowedOrigins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header, for health checks and curl.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(conf.AllowedOrigins))
	for _, o := range conf.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     conf.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps the request body at maxBytes. Reads past the cap fail,
// which the JSON binders surface as 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
