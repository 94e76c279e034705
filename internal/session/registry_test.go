package session

import (
	"errors"
	"testing"
	"time"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/events"
)

func newTestRegistry() (*Registry, *events.Bus) {
	bus := events.NewBus()
	return NewRegistry(bus), bus
}

func mustCreate(t *testing.T, r *Registry, req CreateRequest) *Session {
	t.Helper()
	sess, err := r.Create(req)
	if err != nil {
		t.Fatalf("Create(%+v): %v", req, err)
	}
	return sess
}

func TestCreateDefaults(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "fix-auth", ProjectID: "p1", WorktreePath: "/wt/a"})

	if sess.Status != StatusCreated {
		t.Errorf("status = %s, want created", sess.Status)
	}
	if sess.CommitMode != CommitModeCheckpoint {
		t.Errorf("commit mode = %s, want checkpoint", sess.CommitMode)
	}
	if sess.ID == "" {
		t.Error("id should be generated when not supplied")
	}
}

func TestCreateValidation(t *testing.T) {
	r, _ := newTestRegistry()
	mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})

	if _, err := r.Create(CreateRequest{Name: "", ProjectID: "p1", WorktreePath: "/wt/b"}); err == nil {
		t.Error("empty name should be rejected")
	}
	if _, err := r.Create(CreateRequest{Name: "two", ProjectID: "p1", WorktreePath: ""}); err == nil {
		t.Error("empty worktree path should be rejected")
	}
	if _, err := r.Create(CreateRequest{Name: "two", ProjectID: "p1", WorktreePath: "/wt/a"}); !corralerrors.Is(err, corralerrors.KindValidation) {
		t.Errorf("duplicate worktree path: got %v, want validation error", err)
	}
	if _, err := r.Create(CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/c"}); !corralerrors.Is(err, corralerrors.KindValidation) {
		t.Errorf("duplicate name in project: got %v, want validation error", err)
	}
	// Same name in another project is fine.
	mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p2", WorktreePath: "/wt/d"})
}

func TestArchivedSessionFreesItsWorktreePath(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})

	if err := r.Archive(sess.ID); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})
}

func TestSetStatusEnforcesStateMachine(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})

	if err := r.SetStatus(sess.ID, StatusRunning); err != nil {
		t.Fatal(err)
	}
	err := r.SetStatus(sess.ID, StatusCreated)
	if !corralerrors.Is(err, corralerrors.KindConflict) {
		t.Errorf("illegal transition: got %v, want conflict error", err)
	}
	// The failed transition must not have changed anything.
	got, _ := r.Get(sess.ID)
	if got.Status != StatusRunning {
		t.Errorf("status after rejected transition = %s, want running", got.Status)
	}
}

func TestMarkViewed(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})
	r.SetStatus(sess.ID, StatusRunning)
	r.SetStatus(sess.ID, StatusCompletedUnviewed)

	if err := r.MarkViewed(sess.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(sess.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	// Viewing anything else is a no-op, not an error.
	if err := r.MarkViewed(sess.ID); err != nil {
		t.Errorf("second MarkViewed: %v", err)
	}
	got, _ = r.Get(sess.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status after no-op view = %s, want completed", got.Status)
	}
}

func TestReportAgentResult(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})
	r.SetStatus(sess.ID, StatusRunning)

	if err := r.ReportAgentResult(sess.ID, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(sess.ID)
	if got.Status != StatusCompletedUnviewed {
		t.Errorf("status = %s, want completed_unviewed", got.Status)
	}

	r.SetStatus(sess.ID, StatusRunning)
	if err := r.ReportAgentResult(sess.ID, errors.New("agent crashed")); err != nil {
		t.Fatal(err)
	}
	got, _ = r.Get(sess.ID)
	if got.Status != StatusError {
		t.Errorf("status = %s, want error", got.Status)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})

	if err := r.Archive(sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Archive(sess.ID); err != nil {
		t.Errorf("second archive: %v", err)
	}
	got, _ := r.Get(sess.ID)
	if !got.Archived {
		t.Error("session should be archived")
	}
}

func TestListOrdersByDisplayOrder(t *testing.T) {
	r, _ := newTestRegistry()
	a := mustCreate(t, r, CreateRequest{Name: "a", ProjectID: "p1", WorktreePath: "/wt/a"})
	b := mustCreate(t, r, CreateRequest{Name: "b", ProjectID: "p1", WorktreePath: "/wt/b"})
	mustCreate(t, r, CreateRequest{Name: "other", ProjectID: "p2", WorktreePath: "/wt/c"})

	if err := r.Reorder(a.ID, 10); err != nil {
		t.Fatal(err)
	}

	listed := r.List("p1")
	if len(listed) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(listed))
	}
	if listed[0].ID != b.ID || listed[1].ID != a.ID {
		t.Errorf("order = %s, %s; want %s, %s", listed[0].Name, listed[1].Name, "b", "a")
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	r, bus := newTestRegistry()
	ch, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()

	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})
	r.Rename(sess.ID, "renamed")
	r.Delete(sess.ID)

	var kinds []events.Kind
	deadline := time.After(time.Second)
	for len(kinds) < 3 {
		select {
		case event := <-ch:
			kinds = append(kinds, event.Kind)
		case <-deadline:
			t.Fatalf("only saw events %v", kinds)
		}
	}
	want := []events.Kind{events.SessionUpdated, events.SessionUpdated, events.SessionDeleted}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestDeleteUnknownSessionIsSafe(t *testing.T) {
	r, _ := newTestRegistry()
	r.Delete("does-not-exist")
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry()
	sess := mustCreate(t, r, CreateRequest{Name: "one", ProjectID: "p1", WorktreePath: "/wt/a"})

	got, _ := r.Get(sess.ID)
	got.Name = "tampered"

	again, _ := r.Get(sess.ID)
	if again.Name != "one" {
		t.Error("mutating a returned session changed the registry's record")
	}
}
