// Package services – StatusService
//
// This file implements status updates, the single write path for project
// status history. An update targets a project either by id (which must exist
// and belong to the caller) or by name (which creates the project on first
// use). Each accepted update appends one history row and bumps the project's
// updated_at in the same transaction.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/observability"
)

// StatusUpdate is the input to StatusService.Update. When both ProjectID and
// Name are set, ProjectID wins.
type StatusUpdate struct {
	ProjectID string
	Name      string
	Status    string
	Message   *string
}

// StatusResult describes an accepted update.
type StatusResult struct {
	ProjectID string
	// Created is true when the update created the project by name.
	Created bool
	Entry   *domain.StatusHistory
}

// StatusRepo defines the repository contract required by StatusService.
type StatusRepo interface {
	AppendStatus(ctx context.Context, db *gorm.DB, projectID string, status domain.Status, message *string, ownerID string) (*domain.StatusHistory, error)
	UpsertStatusByName(ctx context.Context, db *gorm.DB, ownerID, name string, status domain.Status, message *string) (string, bool, *domain.StatusHistory, error)
}

// StatusService records status updates.
type StatusService struct {
	DB   *gorm.DB
	Repo StatusRepo
}

// NewStatusService constructs a StatusService.
func NewStatusService(db *gorm.DB, r StatusRepo) *StatusService {
	return &StatusService{DB: db, Repo: r}
}

// Update validates u and appends it to the caller's project history.
//
// Errors:
//   - ErrInvalidStatus for values outside the status enum.
//   - ErrMessageTooLong for messages above MaxMessageRunes.
//   - ErrProjectRefRequired when neither id nor name is given.
//   - ErrInvalidName for an unusable name.
//   - ErrProjectNotFound when the id is unknown or belongs to someone else.
func (s *StatusService) Update(ctx context.Context, owner string, u StatusUpdate) (*StatusResult, error) {
	tr := otel.Tracer("services/StatusService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("project.id", u.ProjectID),
		),
	)
	defer span.End()

	status, err := domain.ParseStatus(u.Status)
	if err != nil {
		return nil, ErrInvalidStatus
	}
	msg, err := normalizeMessage(u.Message)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{}
	switch id := strings.TrimSpace(u.ProjectID); {
	case id != "":
		entry, aerr := s.Repo.AppendStatus(ctx, s.DB, id, status, msg, owner)
		if aerr != nil {
			return nil, mapProjectErr(aerr)
		}
		res.ProjectID, res.Entry = id, entry

	case strings.TrimSpace(u.Name) != "":
		name, nerr := validProjectName(u.Name)
		if nerr != nil {
			return nil, nerr
		}
		pid, created, entry, uerr := s.Repo.UpsertStatusByName(ctx, s.DB, owner, name, status, msg)
		if uerr != nil {
			if errors.Is(uerr, domain.ErrInvalidStatus) {
				return nil, ErrInvalidStatus
			}
			return nil, uerr
		}
		res.ProjectID, res.Created, res.Entry = pid, created, entry

	default:
		return nil, ErrProjectRefRequired
	}

	observability.StatusUpdates.WithLabelValues(string(status)).Inc()
	span.SetAttributes(attribute.String("status", string(status)), attribute.Bool("project.created", res.Created))
	log.Ctx(ctx).Debug().
		Str("project_id", res.ProjectID).
		Str("status", string(status)).
		Bool("created", res.Created).
		Msg("status updated")
	return res, nil
}
