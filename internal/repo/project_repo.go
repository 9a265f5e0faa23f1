// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for projects and
// their append-only status history.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: persistence and query composition
// only, with owner scoping expressed as an optional ownerID argument ("" means
// no owner filter).
//
// Error semantics:
//   - Missing rows return ErrNotFound (alias of gorm.ErrRecordNotFound).
//   - Reads with an ownerID filter treat another owner's project as missing.
//   - Writes with an ownerID return ErrNotOwner when the project exists but
//     belongs to someone else; the service layer decides how to surface it.
//   - RestoreProject returns ErrNotDeleted for a project that is not deleted.
//   - Other DB errors are propagated unchanged.
//
// Current status is derived, not stored: it is the newest status_history row
// per project (created_at DESC, id DESC).
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
)

// DefaultHistoryLimit is used by GetHistory when limit <= 0.
const DefaultHistoryLimit = 10

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrNotOwner indicates the project exists but belongs to another owner.
	ErrNotOwner = errors.New("project belongs to another owner")
	// ErrNotDeleted is returned when restoring a project that is not deleted.
	ErrNotDeleted = errors.New("project is not deleted")
)

// latestStatusQuery selects, for each project in the IN list, the single
// newest history row.
const latestStatusQuery = `project_id IN ? AND id = (
	SELECT h2.id FROM status_history h2
	WHERE h2.project_id = status_history.project_id
	ORDER BY h2.created_at DESC, h2.id DESC
	LIMIT 1)`

// ListProjectsOptions filters ListProjects.
type ListProjectsOptions struct {
	// IncludeDeleted also returns soft-deleted projects.
	IncludeDeleted bool
	// OwnerID restricts results to one owner when non-empty.
	OwnerID string
}

// ListProjects returns projects ordered by name ascending, each annotated
// with its current status. Soft-deleted rows are excluded unless
// opts.IncludeDeleted is set. An empty result is an empty slice.
func ListProjects(ctx context.Context, db *gorm.DB, opts ListProjectsOptions) ([]domain.ProjectWithStatus, error) {
	q := db.WithContext(ctx).Model(&domain.Project{})
	if !opts.IncludeDeleted {
		q = q.Where("deleted = ?", false)
	}
	if opts.OwnerID != "" {
		q = q.Where("owner_id = ?", opts.OwnerID)
	}

	var rows []domain.Project
	if err := q.Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	latest, err := LatestStatuses(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProjectWithStatus, len(rows))
	for i, p := range rows {
		out[i] = domain.WithLatest(p, latest[p.ID])
	}
	return out, nil
}

// LatestStatuses returns the newest history row for each of the given
// projects, keyed by project ID. Projects without history are absent.
func LatestStatuses(ctx context.Context, db *gorm.DB, projectIDs []string) (map[string]*domain.StatusHistory, error) {
	out := make(map[string]*domain.StatusHistory, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}
	var rows []domain.StatusHistory
	if err := db.WithContext(ctx).Where(latestStatusQuery, projectIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ProjectID] = &rows[i]
	}
	return out, nil
}

// GetProject fetches a project with its current status. When ownerID is set
// and does not match, it returns ErrNotFound exactly as if the project did
// not exist.
func GetProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.ProjectWithStatus, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var p domain.Project
	if err := q.First(&p).Error; err != nil {
		return nil, err
	}
	latest, err := LatestStatuses(ctx, db, []string{p.ID})
	if err != nil {
		return nil, err
	}
	out := domain.WithLatest(p, latest[p.ID])
	return &out, nil
}

// CreateProject inserts a new, non-deleted project owned by ownerID. The ID
// is a random UUID and both timestamps are set to the current epoch second.
func CreateProject(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	now := time.Now().Unix()
	p := &domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Deleted:   false,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// FindProjectByName returns the owner's project with exactly this name, or
// ErrNotFound. Names are not unique, so live projects win over deleted ones
// and older projects win over newer ones.
func FindProjectByName(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error) {
	var p domain.Project
	err := db.WithContext(ctx).
		Where("name = ? AND owner_id = ?", name, ownerID).
		Order("deleted ASC").
		Order("created_at ASC").
		Order("id ASC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AppendStatus records a new status for projectID and bumps the project's
// updated_at, atomically.
//
// Errors: ErrNotFound if the project does not exist, ErrNotOwner if ownerID
// is set and differs from the project's owner, domain.ErrInvalidStatus for
// values outside the enum.
func AppendStatus(ctx context.Context, db *gorm.DB, projectID string, status domain.Status, message *string, ownerID string) (*domain.StatusHistory, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	var entry *domain.StatusHistory
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Project
		if err := tx.Where("id = ?", projectID).First(&p).Error; err != nil {
			return err
		}
		if ownerID != "" && p.OwnerID != ownerID {
			return ErrNotOwner
		}
		var err error
		entry, err = appendStatusTx(tx, &p, status, message)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpsertStatusByName appends a status to the owner's project called name,
// creating that project first when it does not exist. This is the only write
// path with implicit creation. It reports the project ID and whether the
// project was created by this call.
func UpsertStatusByName(ctx context.Context, db *gorm.DB, ownerID, name string, status domain.Status, message *string) (projectID string, created bool, entry *domain.StatusHistory, err error) {
	if !status.Valid() {
		return "", false, nil, domain.ErrInvalidStatus
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, ferr := FindProjectByName(ctx, tx, name, ownerID)
		switch {
		case errors.Is(ferr, ErrNotFound):
			p, ferr = CreateProject(ctx, tx, name, ownerID)
			if ferr != nil {
				return ferr
			}
			created = true
		case ferr != nil:
			return ferr
		}
		projectID = p.ID
		var aerr error
		entry, aerr = appendStatusTx(tx, p, status, message)
		return aerr
	})
	if err != nil {
		return "", false, nil, err
	}
	return projectID, created, entry, nil
}

// appendStatusTx inserts the history row and bumps updated_at inside tx.
// updated_at never moves backwards.
func appendStatusTx(tx *gorm.DB, p *domain.Project, status domain.Status, message *string) (*domain.StatusHistory, error) {
	now := time.Now().Unix()
	entry := &domain.StatusHistory{
		ProjectID: p.ID,
		Status:    status,
		Message:   message,
		CreatedAt: now,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	if now > p.UpdatedAt {
		if err := tx.Model(&domain.Project{}).
			Where("id = ?", p.ID).
			UpdateColumn("updated_at", now).Error; err != nil {
			return nil, err
		}
		p.UpdatedAt = now
	}
	return entry, nil
}

// GetHistory returns up to limit history rows for projectID, newest first.
// A limit <= 0 falls back to DefaultHistoryLimit.
func GetHistory(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.StatusHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	out := []domain.StatusHistory{}
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountHistory returns the total number of history rows for projectID.
func CountHistory(ctx context.Context, db *gorm.DB, projectID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.StatusHistory{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	return n, err
}

// SoftDeleteProject flags a project as deleted. Deleting an already-deleted
// project is a no-op that succeeds. History rows are untouched.
//
// Errors: ErrNotFound, ErrNotOwner (when ownerID is set and mismatches).
func SoftDeleteProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return setDeleted(ctx, db, id, ownerID, true)
}

// RestoreProject clears the deleted flag.
//
// Errors: ErrNotFound, ErrNotOwner (when ownerID is set and mismatches),
// ErrNotDeleted if the project is not currently deleted.
func RestoreProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error) {
	return setDeleted(ctx, db, id, ownerID, false)
}

func setDeleted(ctx context.Context, db *gorm.DB, id, ownerID string, deleted bool) (*domain.Project, error) {
	var p domain.Project
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		if ownerID != "" && p.OwnerID != ownerID {
			return ErrNotOwner
		}
		if p.Deleted == deleted {
			if deleted {
				return nil
			}
			return ErrNotDeleted
		}
		now := time.Now().Unix()
		if now < p.UpdatedAt {
			now = p.UpdatedAt
		}
		res := tx.Model(&domain.Project{}).
			Where("id = ? AND deleted = ?", id, !deleted).
			UpdateColumns(map[string]any{"deleted": deleted, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		p.Deleted = deleted
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
