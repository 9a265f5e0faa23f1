// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (weak ETags) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
)

// ProjectsStats returns the number of projects matching opts and the greatest
// updated_at among them. Appending a status bumps updated_at, so the pair
// changes whenever a listed project or its current status changes.
// When nothing matches, both values are 0.
//
// TODO: updated_at has second resolution, so a second status appended within
// the same second leaves the pair unchanged. Fold MAX(status_history.id) of
// the listed projects into the result and the list ETag.
func ProjectsStats(ctx context.Context, db *gorm.DB, opts ListProjectsOptions) (count int64, maxUpdatedAt int64, err error) {
	scoped := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.Project{})
		if !opts.IncludeDeleted {
			q = q.Where("deleted = ?", false)
		}
		if opts.OwnerID != "" {
			q = q.Where("owner_id = ?", opts.OwnerID)
		}
		return q
	}

	if err = scoped().Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	// updated_at is an integer column, so MAX() scans cleanly on every driver.
	if err = scoped().Select("COALESCE(MAX(updated_at), 0)").Row().Scan(&maxUpdatedAt); err != nil {
		return 0, 0, err
	}
	return count, maxUpdatedAt, nil
}
