package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-status-backend/internal/domain"
)

func newProjectSvc(t *testing.T, admins ...string) *ProjectService {
	t.Helper()
	return NewProjectService(newSvcDB(t), dbRepo{}, admins)
}

func TestProjectService_Create_NormalizesName(t *testing.T) {
	s := newProjectSvc(t)
	ctx := context.Background()

	// "e" + combining acute (NFD) must be stored as the precomposed form.
	p, err := s.Create(ctx, "alice", "  Cafe\u0301 \t  API  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "Caf\u00e9 API" {
		t.Fatalf("name = %q, want %q", p.Name, "Caf\u00e9 API")
	}
	if p.OwnerID != "alice" || p.Deleted || p.Status != nil {
		t.Fatalf("unexpected project %+v", p)
	}
}

func TestProjectService_Create_InvalidNames(t *testing.T) {
	s := newProjectSvc(t)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\n\t", strings.Repeat("x", MaxProjectNameRunes+1)} {
		if _, err := s.Create(ctx, "alice", name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Create(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
	// Exactly at the limit, counted in runes not bytes.
	if _, err := s.Create(ctx, "alice", strings.Repeat("é", MaxProjectNameRunes)); err != nil {
		t.Fatalf("max-length name should be accepted: %v", err)
	}
}

func TestProjectService_Create_DuplicateName(t *testing.T) {
	s := newProjectSvc(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "alice", "API")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "alice", " API "); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	// Other owners are independent.
	if _, err := s.Create(ctx, "bob", "API"); err != nil {
		t.Fatalf("bob Create: %v", err)
	}
	// A deleted project frees its name.
	if _, err := s.Delete(ctx, "alice", first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Create(ctx, "alice", "API"); err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
}

func TestProjectService_CreateIdempotent_Replays(t *testing.T) {
	s := newProjectSvc(t)
	ctx := context.Background()

	p1, replayed, err := s.CreateIdempotent(ctx, "alice", "API", "key-1")
	if err != nil || replayed {
		t.Fatalf("first call: p=%+v replayed=%v err=%v", p1, replayed, err)
	}
	p2, replayed, err := s.CreateIdempotent(ctx, "alice", "API", "key-1")
	if err != nil || !replayed || p2.ID != p1.ID {
		t.Fatalf("replay: p=%+v replayed=%v err=%v (want id %s)", p2, replayed, err, p1.ID)
	}

	// Same key, other user: no replay, own project.
	p3, replayed, err := s.CreateIdempotent(ctx, "bob", "API", "key-1")
	if err != nil || replayed || p3.ID == p1.ID {
		t.Fatalf("bob: p=%+v replayed=%v err=%v", p3, replayed, err)
	}

	// No key: plain create, duplicate name rejected.
	if _, _, err := s.CreateIdempotent(ctx, "alice", "API", ""); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken without key, got %v", err)
	}
}

func TestProjectService_List_Scopes(t *testing.T) {
	s := newProjectSvc(t, "Root@Example.com")
	ctx := context.Background()

	a, _ := s.Create(ctx, "alice", "Alpha")
	gone, _ := s.Create(ctx, "alice", "Gone")
	b, _ := s.Create(ctx, "bob", "Beta")
	_, _ = s.Delete(ctx, "alice", gone.ID)

	ids := func(ps []domain.ProjectWithStatus) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}
	eq := func(got, want []string) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	cases := []struct {
		name string
		q    ListQuery
		want []string
	}{
		{"anonymous sees every live project", ListQuery{}, []string{a.ID, b.ID}},
		{"anonymous include_deleted ignored", ListQuery{IncludeDeleted: true}, []string{a.ID, b.ID}},
		{"owner sees own live", ListQuery{Viewer: "alice"}, []string{a.ID}},
		{"owner with deleted", ListQuery{Viewer: "alice", IncludeDeleted: true}, []string{a.ID, gone.ID}},
		{"admin all", ListQuery{Viewer: "root@example.com", AllOwners: true}, []string{a.ID, b.ID}},
		{"admin all with deleted", ListQuery{Viewer: "root@example.com", AllOwners: true, IncludeDeleted: true}, []string{a.ID, b.ID, gone.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.List(ctx, tc.q)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !eq(ids(got), tc.want) {
				t.Fatalf("got %v, want %v", ids(got), tc.want)
			}
			count, _, err := s.Stats(ctx, tc.q)
			if err != nil || int(count) != len(tc.want) {
				t.Fatalf("Stats count = %d, %v; want %d", count, err, len(tc.want))
			}
		})
	}

	if _, err := s.List(ctx, ListQuery{Viewer: "alice", AllOwners: true}); !errors.Is(err, ErrForbiddenScope) {
		t.Fatalf("non-admin scope=all: expected ErrForbiddenScope, got %v", err)
	}
	if _, err := s.List(ctx, ListQuery{AllOwners: true}); !errors.Is(err, ErrForbiddenScope) {
		t.Fatalf("anonymous scope=all: expected ErrForbiddenScope, got %v", err)
	}
}

func TestProjectService_Get_ForeignIsNotFound(t *testing.T) {
	s := newProjectSvc(t)
	ctx := context.Background()
	p, _ := s.Create(ctx, "alice", "API")

	if _, err := s.Get(ctx, "bob", p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if _, err := s.Delete(ctx, "bob", p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign delete: expected ErrProjectNotFound, got %v", err)
	}
	if _, err := s.Restore(ctx, "bob", p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign restore: expected ErrProjectNotFound, got %v", err)
	}
	if _, _, _, err := s.History(ctx, "bob", p.ID, 10); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign history: expected ErrProjectNotFound, got %v", err)
	}
}

func TestProjectService_DeleteRestore(t *testing.T) {
	s := newProjectSvc(t)
	ctx := context.Background()
	p, _ := s.Create(ctx, "alice", "API")

	if _, err := s.Restore(ctx, "alice", p.ID); !errors.Is(err, ErrProjectNotDeleted) {
		t.Fatalf("expected ErrProjectNotDeleted, got %v", err)
	}
	d, err := s.Delete(ctx, "alice", p.ID)
	if err != nil || !d.Deleted {
		t.Fatalf("Delete: %+v, %v", d, err)
	}
	d, err = s.Delete(ctx, "alice", p.ID)
	if err != nil || !d.Deleted {
		t.Fatalf("second Delete should succeed: %+v, %v", d, err)
	}
	r, err := s.Restore(ctx, "alice", p.ID)
	if err != nil || r.Deleted {
		t.Fatalf("Restore: %+v, %v", r, err)
	}
}

func TestProjectService_History_ClampsLimit(t *testing.T) {
	s := newProjectSvc(t)
	s.MaxHistoryLimit = 3
	ctx := context.Background()
	statuses := NewStatusService(s.DB, dbRepo{})

	p, _ := s.Create(ctx, "alice", "API")
	for _, st := range []string{"operational", "degraded", "outage", "maintenance", "operational"} {
		if _, err := statuses.Update(ctx, "alice", StatusUpdate{ProjectID: p.ID, Status: st}); err != nil {
			t.Fatalf("Update %s: %v", st, err)
		}
	}

	items, total, limit, err := s.History(ctx, "alice", p.ID, 50)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if limit != 3 || len(items) != 3 || total != 5 {
		t.Fatalf("got limit=%d len=%d total=%d, want 3/3/5", limit, len(items), total)
	}
	if items[0].Status != domain.StatusOperational || items[1].Status != domain.StatusMaintenance {
		t.Fatalf("expected newest first, got %+v", items)
	}

	items, _, limit, _ = s.History(ctx, "alice", p.ID, 0)
	if limit != 1 || len(items) != 1 {
		t.Fatalf("limit below range should clamp to 1, got limit=%d len=%d", limit, len(items))
	}
}

func TestProjectService_IsAdmin(t *testing.T) {
	s := NewProjectService(nil, dbRepo{}, []string{" Admin@Example.com ", ""})
	if !s.IsAdmin("admin@example.com") || !s.IsAdmin("ADMIN@example.com") {
		t.Fatalf("admin match should be case-insensitive")
	}
	if s.IsAdmin("") || s.IsAdmin("user@example.com") {
		t.Fatalf("unexpected admin")
	}
}
