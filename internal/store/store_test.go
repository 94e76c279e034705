package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ScriptedAlchemy/corral/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "corral.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := session.Session{
		ID:           "s1",
		Name:         "fix-auth",
		ProjectID:    "/repo",
		WorktreePath: "/wt/s1",
		Branch:       "corral-s1",
		BaseBranch:   "main",
		Status:       session.StatusRunning,
		Favorite:     true,
		AutoCommit:   true,
		CommitMode:   session.CommitModeCheckpoint,
		Model:        "large",
		DisplayOrder: 2,
		CreatedAt:    time.Now().Truncate(time.Millisecond),
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d sessions, want 1", len(loaded))
	}
	got := loaded[0]
	if got.ID != sess.ID || got.Name != sess.Name || got.Status != sess.Status {
		t.Errorf("loaded session = %+v", got)
	}
	if !got.Favorite || !got.AutoCommit || got.CommitMode != session.CommitModeCheckpoint {
		t.Errorf("flags lost in round trip: %+v", got)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, sess.CreatedAt)
	}
}

func TestSaveSessionUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := session.Session{ID: "s1", Name: "before", ProjectID: "/repo",
		WorktreePath: "/wt/s1", Status: session.StatusCreated, CreatedAt: time.Now()}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	sess.Name = "after"
	sess.Status = session.StatusRunning
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	loaded, _ := s.ListSessions(ctx)
	if len(loaded) != 1 {
		t.Fatalf("loaded %d sessions, want 1", len(loaded))
	}
	if loaded[0].Name != "after" || loaded[0].Status != session.StatusRunning {
		t.Errorf("upsert did not apply: %+v", loaded[0])
	}
}

func TestDeleteSessionRemovesExecutions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := session.Session{ID: "s1", Name: "x", ProjectID: "/repo",
		WorktreePath: "/wt/s1", Status: session.StatusCreated, CreatedAt: time.Now()}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertExecution(ctx, ExecutionRow{SessionID: "s1", Seq: 1, CommitHash: "abc", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	sessions, _ := s.ListSessions(ctx)
	if len(sessions) != 0 {
		t.Error("session should be gone")
	}
	execs, _ := s.ListExecutions(ctx, "s1")
	if len(execs) != 0 {
		t.Error("executions should be gone with the session")
	}
}

func TestExecutionsKeepSequenceOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for seq, hash := range map[int]string{2: "h2", 1: "h1", 3: "h3"} {
		if err := s.InsertExecution(ctx, ExecutionRow{
			SessionID: "s1", Seq: seq, CommitHash: hash,
			Additions: seq, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	execs, err := s.ListExecutions(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 3 {
		t.Fatalf("got %d executions, want 3", len(execs))
	}
	for i, exec := range execs {
		if exec.Seq != i+1 {
			t.Errorf("position %d has seq %d", i, exec.Seq)
		}
	}
}

func TestDuplicateSequenceRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := ExecutionRow{SessionID: "s1", Seq: 1, CommitHash: "h1", CreatedAt: time.Now()}
	if err := s.InsertExecution(ctx, row); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertExecution(ctx, row); err == nil {
		t.Error("duplicate (session, seq) should violate the primary key")
	}
}

func TestJournalLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	backend := NewJournalBackend(s)

	doneToken, err := backend.Append("s1", "commit")
	if err != nil {
		t.Fatal(err)
	}
	failedToken, err := backend.Append("s1", "rebase-to-main")
	if err != nil {
		t.Fatal(err)
	}
	orphanToken, err := backend.Append("s2", "pull")
	if err != nil {
		t.Fatal(err)
	}

	backend.Complete(doneToken, nil)
	backend.Complete(failedToken, errors.New("CONFLICT"))
	// orphanToken is never completed: simulates a crash mid-operation.

	orphans, err := s.OrphanedEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 1 {
		t.Fatalf("got %d orphans, want 1", len(orphans))
	}
	if orphans[0].ID != orphanToken || orphans[0].SessionID != "s2" || orphans[0].Operation != "pull" {
		t.Errorf("orphan = %+v", orphans[0])
	}
}
