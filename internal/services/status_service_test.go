package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/observability"
	"github.com/tbourn/go-status-backend/internal/repo"
)

func TestStatusService_UpdateByName_CreatesOnce(t *testing.T) {
	db := newSvcDB(t)
	s := NewStatusService(db, dbRepo{})
	ctx := context.Background()

	r1, err := s.Update(ctx, "alice", StatusUpdate{Name: "API", Status: "operational"})
	if err != nil {
		t.Fatalf("first Update: %v", err)
	}
	if !r1.Created || r1.ProjectID == "" || r1.Entry == nil || r1.Entry.Status != domain.StatusOperational {
		t.Fatalf("unexpected first result %+v", r1)
	}

	r2, err := s.Update(ctx, "alice", StatusUpdate{Name: "  API ", Status: "outage", Message: strptr(" down ")})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if r2.Created || r2.ProjectID != r1.ProjectID {
		t.Fatalf("expected same project, got %+v", r2)
	}
	if r2.Entry.Message == nil || *r2.Entry.Message != "down" {
		t.Fatalf("message should be trimmed, got %v", r2.Entry.Message)
	}
}

func TestStatusService_UpdateByID(t *testing.T) {
	db := newSvcDB(t)
	projects := NewProjectService(db, dbRepo{}, nil)
	s := NewStatusService(db, dbRepo{})
	ctx := context.Background()

	p, _ := projects.Create(ctx, "alice", "API")
	before := testutil.ToFloat64(observability.StatusUpdates.WithLabelValues("maintenance"))

	r, err := s.Update(ctx, "alice", StatusUpdate{ProjectID: p.ID, Name: "ignored", Status: "maintenance"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.ProjectID != p.ID || r.Created {
		t.Fatalf("unexpected result %+v", r)
	}
	if got := testutil.ToFloat64(observability.StatusUpdates.WithLabelValues("maintenance")); got != before+1 {
		t.Fatalf("status_updates_total{maintenance} = %v, want %v", got, before+1)
	}

	got, _ := projects.Get(ctx, "alice", p.ID)
	if got.Status == nil || *got.Status != domain.StatusMaintenance {
		t.Fatalf("current status not updated: %+v", got)
	}

	if _, err := s.Update(ctx, "bob", StatusUpdate{ProjectID: p.ID, Status: "outage"}); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign update: expected ErrProjectNotFound, got %v", err)
	}
	if _, err := s.Update(ctx, "alice", StatusUpdate{ProjectID: "missing", Status: "outage"}); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("missing id: expected ErrProjectNotFound, got %v", err)
	}
}

func TestStatusService_Validation(t *testing.T) {
	db := newSvcDB(t)
	s := NewStatusService(db, dbRepo{})
	ctx := context.Background()

	cases := []struct {
		name string
		in   StatusUpdate
		want error
	}{
		{"major_outage rejected", StatusUpdate{Name: "API", Status: "major_outage"}, ErrInvalidStatus},
		{"running rejected", StatusUpdate{Name: "API", Status: "running"}, ErrInvalidStatus},
		{"failed rejected", StatusUpdate{Name: "API", Status: "failed"}, ErrInvalidStatus},
		{"empty status", StatusUpdate{Name: "API", Status: ""}, ErrInvalidStatus},
		{"no project ref", StatusUpdate{Status: "operational"}, ErrProjectRefRequired},
		{"blank name", StatusUpdate{Name: "   ", Status: "operational"}, ErrProjectRefRequired},
		{"long name", StatusUpdate{Name: strings.Repeat("n", MaxProjectNameRunes+1), Status: "operational"}, ErrInvalidName},
		{"long message", StatusUpdate{Name: "API", Status: "operational", Message: strptr(strings.Repeat("m", MaxMessageRunes+1))}, ErrMessageTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Update(ctx, "alice", tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Nothing was created by the rejected updates.
	var n int64
	db.Model(&domain.Project{}).Count(&n)
	if n != 0 {
		t.Fatalf("rejected updates must not create projects, found %d", n)
	}
}

func TestStatusService_DeletedProjectAcceptsUpdates(t *testing.T) {
	db := newSvcDB(t)
	projects := NewProjectService(db, dbRepo{}, nil)
	s := NewStatusService(db, dbRepo{})
	ctx := context.Background()

	p, _ := projects.Create(ctx, "alice", "API")
	_, _ = projects.Delete(ctx, "alice", p.ID)

	if _, err := s.Update(ctx, "alice", StatusUpdate{ProjectID: p.ID, Status: "outage"}); err != nil {
		t.Fatalf("update on deleted project: %v", err)
	}
	got, _ := projects.Get(ctx, "alice", p.ID)
	if !got.Deleted || got.Status == nil || *got.Status != domain.StatusOutage {
		t.Fatalf("expected deleted project with new status, got %+v", got)
	}
}

func TestStatusService_BlankMessageIsNil(t *testing.T) {
	db := newSvcDB(t)
	s := NewStatusService(db, dbRepo{})
	r, err := s.Update(context.Background(), "alice", StatusUpdate{Name: "API", Status: "degraded", Message: strptr("   ")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if r.Entry.Message != nil {
		t.Fatalf("blank message should be stored as NULL, got %q", *r.Entry.Message)
	}
}

// stubStatusRepo records the calls StatusService makes through its repo.
type stubStatusRepo struct {
	appendErr error
	appended  []string
	upserted  []string
}

func (r *stubStatusRepo) AppendStatus(_ context.Context, _ *gorm.DB, projectID string, status domain.Status, _ *string, ownerID string) (*domain.StatusHistory, error) {
	r.appended = append(r.appended, ownerID+"/"+projectID)
	if r.appendErr != nil {
		return nil, r.appendErr
	}
	return &domain.StatusHistory{ID: 1, ProjectID: projectID, Status: status}, nil
}

func (r *stubStatusRepo) UpsertStatusByName(_ context.Context, _ *gorm.DB, ownerID, name string, status domain.Status, _ *string) (string, bool, *domain.StatusHistory, error) {
	r.upserted = append(r.upserted, ownerID+"/"+name)
	return "p-9", true, &domain.StatusHistory{ID: 2, ProjectID: "p-9", Status: status}, nil
}

func TestStatusService_UsesInjectedRepo(t *testing.T) {
	ctx := context.Background()
	stub := &stubStatusRepo{}
	s := NewStatusService(nil, stub)

	r, err := s.Update(ctx, "alice", StatusUpdate{Name: " Billing  API ", Status: "degraded"})
	if err != nil || r.ProjectID != "p-9" || !r.Created {
		t.Fatalf("by name: %+v, %v", r, err)
	}
	if len(stub.upserted) != 1 || stub.upserted[0] != "alice/Billing API" {
		t.Fatalf("upsert calls = %v", stub.upserted)
	}

	stub.appendErr = repo.ErrNotOwner
	if _, err := s.Update(ctx, "bob", StatusUpdate{ProjectID: "p-9", Status: "outage"}); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign project should map to ErrProjectNotFound, got %v", err)
	}
	if len(stub.appended) != 1 || stub.appended[0] != "bob/p-9" {
		t.Fatalf("append calls = %v", stub.appended)
	}
}
