package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/http/middleware"
	"github.com/tbourn/go-status-backend/internal/repo"
	"github.com/tbourn/go-status-backend/internal/services"
)

// ---------- test DB + repo shim ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection: shared-cache writers would otherwise see "table is
	// locked" when the background token touch overlaps a request.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if _, err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testRepo forwards to the repo package, like the router's shims.
type testRepo struct{}

func (testRepo) ListProjects(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) ([]domain.ProjectWithStatus, error) {
	return repo.ListProjects(ctx, db, opts)
}
func (testRepo) ProjectsStats(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) (int64, int64, error) {
	return repo.ProjectsStats(ctx, db, opts)
}
func (testRepo) GetProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.ProjectWithStatus, error) {
	return repo.GetProject(ctx, db, id, ownerID)
}
func (testRepo) CreateProject(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	return repo.CreateProject(ctx, db, name, ownerID)
}
func (testRepo) FindProjectByName(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	return repo.FindProjectByName(ctx, db, name, ownerID)
}
func (testRepo) SoftDeleteProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return repo.SoftDeleteProject(ctx, db, id, ownerID)
}
func (testRepo) RestoreProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return repo.RestoreProject(ctx, db, id, ownerID)
}
func (testRepo) GetHistory(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.StatusHistory, error) {
	return repo.GetHistory(ctx, db, projectID, limit)
}
func (testRepo) CountHistory(ctx context.Context, db *gorm.DB, projectID string) (int64, error) {
	return repo.CountHistory(ctx, db, projectID)
}
func (testRepo) CreateToken(ctx context.Context, db *gorm.DB, userID, name, tokenHash, prefix string) (*domain.UserToken, error) {
	return repo.CreateToken(ctx, db, userID, name, tokenHash, prefix)
}
func (testRepo) GetTokenByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.UserToken, error) {
	return repo.GetTokenByHash(ctx, db, tokenHash)
}
func (testRepo) TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.TouchToken(ctx, db, id, at)
}
func (testRepo) ListTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserToken, error) {
	return repo.ListTokens(ctx, db, userID)
}
func (testRepo) RevokeToken(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	return repo.RevokeToken(ctx, db, id, userID)
}
func (testRepo) AppendStatus(ctx context.Context, db *gorm.DB, projectID string, status domain.Status, message *string, ownerID string) (*domain.StatusHistory, error) {
	return repo.AppendStatus(ctx, db, projectID, status, message, ownerID)
}
func (testRepo) UpsertStatusByName(ctx context.Context, db *gorm.DB, ownerID, name string, status domain.Status, message *string) (string, bool, *domain.StatusHistory, error) {
	return repo.UpsertStatusByName(ctx, db, ownerID, name, status, message)
}

// headerSession authenticates whoever X-Test-User names.
type headerSession struct{}

func (headerSession) Validate(r *http.Request) (string, error) {
	if u := r.Header.Get("X-Test-User"); u != "" {
		return u, nil
	}
	return "", errors.New("no session")
}

type testEnv struct {
	db       *gorm.DB
	r        *gin.Engine
	projects *services.ProjectService
	tokens   *services.TokenService
}

// newTestEnv wires real services over a fresh database. admin@example.com is
// an admin.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)

	ps := services.NewProjectService(db, testRepo{}, []string{"admin@example.com"})
	ps.MaxHistoryLimit = 100
	ss := services.NewStatusService(db, testRepo{})
	ts := services.NewTokenService(db, testRepo{})
	h := New(ps, ss, ts)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Authenticate(ts, headerSession{}))
	r.GET("/me", h.Me)
	r.GET("/projects", h.ListProjects)
	authed := r.Group("", middleware.RequireUser())
	authed.POST("/projects",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: services.IdempotencyScopeCreateProject}, nil),
		h.CreateProject)
	authed.POST("/projects/status", h.PostStatus)
	authed.GET("/projects/:id", h.GetProject)
	authed.DELETE("/projects/:id", h.DeleteProject)
	authed.PATCH("/projects/:id", h.RestoreProject)
	authed.GET("/projects/:id/history", h.ProjectHistory)
	authed.POST("/projects/:id/status", h.PostProjectStatus)
	authed.GET("/tokens", h.ListTokens)
	authed.POST("/tokens", h.CreateToken)
	authed.DELETE("/tokens/:id", h.RevokeToken)

	return &testEnv{db: db, r: r, projects: ps, tokens: ts}
}

type call struct {
	method  string
	path    string
	user    string
	bearer  string
	body    any
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if s, ok := c.body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("X-Test-User", c.user)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, w).Error.Code
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, want, w.Body.String())
	}
}

func (e *testEnv) createProject(t *testing.T, user, name string) domain.ProjectWithStatus {
	t.Helper()
	w := e.do(t, call{method: http.MethodPost, path: "/projects", user: user, body: gin.H{"name": name}})
	wantStatus(t, w, http.StatusCreated)
	return decode[domain.ProjectWithStatus](t, w)
}
