package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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

// dbRepo forwards to the repo package, like the router's shims.
type dbRepo struct{}

func (dbRepo) ListProjects(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) ([]domain.ProjectWithStatus, error) {
	return repo.ListProjects(ctx, db, opts)
}
func (dbRepo) ProjectsStats(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) (int64, int64, error) {
	return repo.ProjectsStats(ctx, db, opts)
}
func (dbRepo) GetProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.ProjectWithStatus, error) {
	return repo.GetProject(ctx, db, id, ownerID)
}
func (dbRepo) CreateProject(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	return repo.CreateProject(ctx, db, name, ownerID)
}
func (dbRepo) FindProjectByName(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	return repo.FindProjectByName(ctx, db, name, ownerID)
}
func (dbRepo) SoftDeleteProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return repo.SoftDeleteProject(ctx, db, id, ownerID)
}
func (dbRepo) RestoreProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return repo.RestoreProject(ctx, db, id, ownerID)
}
func (dbRepo) GetHistory(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.StatusHistory, error) {
	return repo.GetHistory(ctx, db, projectID, limit)
}
func (dbRepo) CountHistory(ctx context.Context, db *gorm.DB, projectID string) (int64, error) {
	return repo.CountHistory(ctx, db, projectID)
}
func (dbRepo) CreateToken(ctx context.Context, db *gorm.DB, userID, name, tokenHash, prefix string) (*domain.UserToken, error) {
	return repo.CreateToken(ctx, db, userID, name, tokenHash, prefix)
}
func (dbRepo) GetTokenByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.UserToken, error) {
	return repo.GetTokenByHash(ctx, db, tokenHash)
}
func (dbRepo) TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.TouchToken(ctx, db, id, at)
}
func (dbRepo) ListTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserToken, error) {
	return repo.ListTokens(ctx, db, userID)
}
func (dbRepo) RevokeToken(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	return repo.RevokeToken(ctx, db, id, userID)
}

func (dbRepo) AppendStatus(ctx context.Context, db *gorm.DB, projectID string, status domain.Status, message *string, ownerID string) (*domain.StatusHistory, error) {
	return repo.AppendStatus(ctx, db, projectID, status, message, ownerID)
}
func (dbRepo) UpsertStatusByName(ctx context.Context, db *gorm.DB, ownerID, name string, status domain.Status, message *string) (string, bool, *domain.StatusHistory, error) {
	return repo.UpsertStatusByName(ctx, db, ownerID, name, status, message)
}

func strptr(s string) *string { return &s }
