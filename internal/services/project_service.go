// Package services – ProjectService
//
// This file implements the ProjectService, which manages the lifecycle of
// projects: listing (public, owner-scoped, or admin-wide), creation with name
// normalization and optional idempotent replay, owner-scoped reads, soft
// delete and restore, and status history.
//
// Ownership mismatches are always reported as ErrProjectNotFound so that the
// existence of other users' projects is never revealed.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/repo"
	"github.com/tbourn/go-status-backend/internal/utils"
)

// IdempotencyScopeCreateProject namespaces Idempotency-Key records for
// project creation.
const IdempotencyScopeCreateProject = "projects.create"

// ProjectRepo defines the repository contract required by ProjectService.
type ProjectRepo interface {
	// ListProjects returns projects annotated with their current status.
	ListProjects(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) ([]domain.ProjectWithStatus, error)

	// ProjectsStats returns the row count and max updated_at for opts.
	ProjectsStats(ctx context.Context, db *gorm.DB, opts repo.ListProjectsOptions) (int64, int64, error)

	// GetProject fetches a project; a foreign owner reads as not found.
	GetProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.ProjectWithStatus, error)

	// CreateProject inserts a new live project.
	CreateProject(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error)

	// FindProjectByName looks a project up by exact name within one owner.
	FindProjectByName(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Project, error)

	// SoftDeleteProject flags a project as deleted.
	SoftDeleteProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error)

	// RestoreProject clears the deleted flag.
	RestoreProject(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Project, error)

	// GetHistory returns the newest history rows first.
	GetHistory(ctx context.Context, db *gorm.DB, projectID string, limit int) ([]domain.StatusHistory, error)

	// CountHistory returns the number of history rows.
	CountHistory(ctx context.Context, db *gorm.DB, projectID string) (int64, error)
}

// ListQuery describes who is asking for the project list and how.
type ListQuery struct {
	// Viewer is the authenticated identity, or "" for anonymous callers.
	Viewer string
	// IncludeDeleted also returns soft-deleted projects. Ignored for anonymous
	// callers, who only ever see live projects.
	IncludeDeleted bool
	// AllOwners asks for every owner's projects. Admins only.
	AllOwners bool
}

// ProjectService provides project-level operations.
type ProjectService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the project repository used by this service.
	Repo ProjectRepo

	// Admins lists identities allowed to use ListQuery.AllOwners.
	Admins map[string]struct{}
	// IdempotencyTTL bounds how long an Idempotency-Key replays.
	IdempotencyTTL time.Duration
	// MaxHistoryLimit caps History page sizes.
	MaxHistoryLimit int
}

// NewProjectService constructs a ProjectService. Admin identities are
// compared case-insensitively.
func NewProjectService(db *gorm.DB, r ProjectRepo, admins []string) *ProjectService {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			set[a] = struct{}{}
		}
	}
	return &ProjectService{
		DB:              db,
		Repo:            r,
		Admins:          set,
		IdempotencyTTL:  24 * time.Hour,
		MaxHistoryLimit: 100,
	}
}

// IsAdmin reports whether identity may list every owner's projects.
func (s *ProjectService) IsAdmin(identity string) bool {
	if identity == "" {
		return false
	}
	_, ok := s.Admins[strings.ToLower(identity)]
	return ok
}

// resolve maps a ListQuery onto repository filters.
func (s *ProjectService) resolve(q ListQuery) (repo.ListProjectsOptions, error) {
	switch {
	case q.Viewer == "":
		if q.AllOwners {
			return repo.ListProjectsOptions{}, ErrForbiddenScope
		}
		return repo.ListProjectsOptions{}, nil
	case q.AllOwners:
		if !s.IsAdmin(q.Viewer) {
			return repo.ListProjectsOptions{}, ErrForbiddenScope
		}
		return repo.ListProjectsOptions{IncludeDeleted: q.IncludeDeleted}, nil
	default:
		return repo.ListProjectsOptions{OwnerID: q.Viewer, IncludeDeleted: q.IncludeDeleted}, nil
	}
}

// List returns the projects visible for q, ordered by name.
func (s *ProjectService) List(ctx context.Context, q ListQuery) ([]domain.ProjectWithStatus, error) {
	opts, err := s.resolve(q)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListProjects(ctx, s.DB, opts)
}

// Stats returns the count and max updated_at of the projects List(q) would
// return, for conditional GETs.
func (s *ProjectService) Stats(ctx context.Context, q ListQuery) (int64, int64, error) {
	opts, err := s.resolve(q)
	if err != nil {
		return 0, 0, err
	}
	return s.Repo.ProjectsStats(ctx, s.DB, opts)
}

// Get returns one of owner's projects with its current status.
func (s *ProjectService) Get(ctx context.Context, owner, id string) (*domain.ProjectWithStatus, error) {
	p, err := s.Repo.GetProject(ctx, s.DB, id, owner)
	if err != nil {
		return nil, mapProjectErr(err)
	}
	return p, nil
}

// Create inserts a project named name for owner. The name is normalized
// first. A live project with the same normalized name yields ErrNameTaken.
func (s *ProjectService) Create(ctx context.Context, owner, name string) (*domain.ProjectWithStatus, error) {
	name, err := validProjectName(name)
	if err != nil {
		return nil, err
	}
	var created *domain.Project
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, ferr := s.Repo.FindProjectByName(ctx, tx, name, owner)
		switch {
		case ferr == nil && !existing.Deleted:
			return ErrNameTaken
		case ferr != nil && !errors.Is(ferr, repo.ErrNotFound):
			return ferr
		}
		p, cerr := s.Repo.CreateProject(ctx, tx, name, owner)
		if cerr != nil {
			return cerr
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := domain.WithLatest(*created, nil)
	return &out, nil
}

// CreateIdempotent behaves like Create, but when key is non-empty a retry with
// the same key returns the originally created project with replayed=true
// instead of creating another one.
func (s *ProjectService) CreateIdempotent(ctx context.Context, owner, name, key string) (p *domain.ProjectWithStatus, replayed bool, err error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "CreateIdempotent",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.Bool("idempotent", key != ""),
		),
	)
	defer span.End()

	if key == "" {
		p, err = s.Create(ctx, owner, name)
		return p, false, err
	}

	if rec, gerr := repo.GetIdempotency(ctx, s.DB, owner, IdempotencyScopeCreateProject, key, time.Now().UTC()); gerr == nil {
		p, err = s.Get(ctx, owner, rec.ResourceID)
		return p, err == nil, err
	} else if !errors.Is(gerr, repo.ErrNotFound) {
		return nil, false, gerr
	}

	p, err = s.Create(ctx, owner, name)
	if err != nil {
		return nil, false, err
	}
	if _, ierr := repo.CreateIdempotency(ctx, s.DB, owner, IdempotencyScopeCreateProject, key, p.ID, 201, s.IdempotencyTTL); ierr != nil {
		if !errors.Is(ierr, repo.ErrDuplicate) {
			return nil, false, ierr
		}
		// A concurrent request with the same key won; hand back its project.
		if rec, gerr := repo.GetIdempotency(ctx, s.DB, owner, IdempotencyScopeCreateProject, key, time.Now().UTC()); gerr == nil {
			if winner, werr := s.Get(ctx, owner, rec.ResourceID); werr == nil {
				return winner, true, nil
			}
		}
	}
	return p, false, nil
}

// Delete soft-deletes one of owner's projects. Deleting an already-deleted
// project succeeds without changes.
func (s *ProjectService) Delete(ctx context.Context, owner, id string) (*domain.ProjectWithStatus, error) {
	if _, err := s.Repo.SoftDeleteProject(ctx, s.DB, id, owner); err != nil {
		return nil, mapProjectErr(err)
	}
	return s.Get(ctx, owner, id)
}

// Restore un-deletes one of owner's projects.
func (s *ProjectService) Restore(ctx context.Context, owner, id string) (*domain.ProjectWithStatus, error) {
	if _, err := s.Repo.RestoreProject(ctx, s.DB, id, owner); err != nil {
		return nil, mapProjectErr(err)
	}
	return s.Get(ctx, owner, id)
}

// History returns up to limit history rows for one of owner's projects,
// newest first, together with the total number of rows. limit is clamped to
// [1, MaxHistoryLimit].
func (s *ProjectService) History(ctx context.Context, owner, id string, limit int) ([]domain.StatusHistory, int64, int, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("project.id", id),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := s.Repo.GetProject(ctx, s.DB, id, owner); err != nil {
		return nil, 0, 0, mapProjectErr(err)
	}
	limit = utils.Clamp(limit, 1, s.maxHistory())
	items, err := s.Repo.GetHistory(ctx, s.DB, id, limit)
	if err != nil {
		return nil, 0, 0, err
	}
	total, err := s.Repo.CountHistory(ctx, s.DB, id)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, total, limit, nil
}

func (s *ProjectService) maxHistory() int {
	if s.MaxHistoryLimit <= 0 {
		return 100
	}
	return s.MaxHistoryLimit
}

// validProjectName normalizes name and enforces the length bounds.
func validProjectName(name string) (string, error) {
	name = normalizeName(name)
	if n := runeLen(name); n == 0 || n > MaxProjectNameRunes {
		return "", ErrInvalidName
	}
	return name, nil
}

// mapProjectErr converts repository errors to service sentinels.
func mapProjectErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrNotOwner):
		return ErrProjectNotFound
	case errors.Is(err, repo.ErrNotDeleted):
		return ErrProjectNotDeleted
	default:
		return err
	}
}
