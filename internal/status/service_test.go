package status

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ScriptedAlchemy/corral/internal/events"
	"github.com/ScriptedAlchemy/corral/internal/git"
	"github.com/ScriptedAlchemy/corral/internal/session"
)

// fakeRunner replays a canned status, optionally blocking until released.
type fakeRunner struct {
	mu      sync.Mutex
	status  git.WorkingStatus
	err     error
	block   chan struct{}
	calls   int
}

func (f *fakeRunner) Status(ctx context.Context, worktree string) (git.WorkingStatus, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	status, err := f.status, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return git.WorkingStatus{}, ctx.Err()
		}
	}
	return status, err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRunner) setBlock(ch chan struct{}) {
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
}

// fakeSessions serves a fixed session list.
type fakeSessions struct {
	sessions []session.Session
}

func (f *fakeSessions) List(projectID string) []session.Session {
	var out []session.Session
	for _, sess := range f.sessions {
		if projectID == "" || sess.ProjectID == projectID {
			out = append(out, sess)
		}
	}
	return out
}

func (f *fakeSessions) Get(id string) (*session.Session, error) {
	for _, sess := range f.sessions {
		if sess.ID == id {
			copied := sess
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("session %s not found", id)
}

func projectSessions(projectID string, n int) []session.Session {
	sessions := make([]session.Session, 0, n)
	for i := 0; i < n; i++ {
		sessions = append(sessions, session.Session{
			ID:           fmt.Sprintf("%s-s%d", projectID, i),
			ProjectID:    projectID,
			WorktreePath: fmt.Sprintf("/wt/%s-s%d", projectID, i),
		})
	}
	return sessions
}

func TestRefreshCachesFreshSnapshot(t *testing.T) {
	runner := &fakeRunner{status: git.WorkingStatus{Branch: "work", Modified: 2, HasUncommitted: true}}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	bus := events.NewBus()
	service := NewService(runner, sessions, bus, Options{FreshFor: time.Hour})

	snap, err := service.Refresh(context.Background(), "p1-s0")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateFresh {
		t.Errorf("state = %s, want fresh", snap.State)
	}
	if snap.Status.Modified != 2 {
		t.Errorf("modified = %d, want 2", snap.Status.Modified)
	}

	cached, ok := service.Get("p1-s0")
	if !ok || cached.State != StateFresh {
		t.Errorf("cached snapshot = %+v, ok=%v", cached, ok)
	}
}

func TestSnapshotGoesStaleAfterWindow(t *testing.T) {
	runner := &fakeRunner{status: git.WorkingStatus{Branch: "work"}}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: 20 * time.Millisecond})

	if _, err := service.Refresh(context.Background(), "p1-s0"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	snap, ok := service.Get("p1-s0")
	if !ok {
		t.Fatal("snapshot should survive going stale")
	}
	if snap.State != StateStale {
		t.Errorf("state = %s, want stale", snap.State)
	}
	if snap.Status.Branch != "work" {
		t.Error("stale snapshot should keep its last data")
	}
}

func TestRefreshErrorIsCached(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("git status: exit 128")}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: time.Hour})

	snap, err := service.Refresh(context.Background(), "p1-s0")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateError {
		t.Errorf("state = %s, want error", snap.State)
	}
	if snap.Err == "" {
		t.Error("error snapshot should carry the message")
	}
}

func TestProjectRefreshBatchesIntoOneEvent(t *testing.T) {
	runner := &fakeRunner{status: git.WorkingStatus{Branch: "work"}}
	sessions := &fakeSessions{sessions: projectSessions("p1", 3)}
	bus := events.NewBus()
	service := NewService(runner, sessions, bus, Options{FreshFor: time.Hour, Debounce: 30 * time.Millisecond})

	ch, unsubscribe := bus.Subscribe(32)
	defer unsubscribe()

	service.RefreshProject("p1")

	var batches [][]Snapshot
	var singles int
	deadline := time.After(time.Second)
collect:
	for {
		select {
		case event := <-ch:
			switch event.Kind {
			case events.GitStatusBatch:
				batches = append(batches, event.Payload.([]Snapshot))
				// Give a spurious second batch a chance to show up.
				deadline = time.After(100 * time.Millisecond)
			case events.GitStatusUpdated:
				singles++
			}
		case <-deadline:
			break collect
		}
	}

	if len(batches) != 1 {
		t.Fatalf("got %d batch events, want exactly 1", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Errorf("batch carried %d snapshots, want 3", len(batches[0]))
	}
	if singles != 0 {
		t.Errorf("project refresh published %d per-session events, want none beside the batch", singles)
	}
}

func TestCancelProjectDiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	runner := &fakeRunner{status: git.WorkingStatus{Branch: "work"}, block: release}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	bus := events.NewBus()
	service := NewService(runner, sessions, bus, Options{FreshFor: time.Hour, Debounce: 10 * time.Millisecond})

	ch, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		service.RefreshProject("p1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	service.CancelProject("p1")
	close(release)
	<-done

	if snap, ok := service.Get("p1-s0"); ok && snap.State == StateFresh {
		t.Error("cancelled refresh should not land a fresh snapshot")
	}

	select {
	case event := <-ch:
		if event.Kind == events.GitStatusBatch {
			t.Error("cancelled project should not publish a batch")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelDoesNotResurrectForgottenSnapshot(t *testing.T) {
	runner := &fakeRunner{status: git.WorkingStatus{Branch: "work"}}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: time.Hour})

	if _, err := service.Refresh(context.Background(), "p1-s0"); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	runner.setBlock(release)

	done := make(chan struct{})
	go func() {
		service.RefreshProject("p1")
		close(done)
	}()

	// The session is forgotten while its poll hangs; the cancelled poll's
	// late result must not bring the old snapshot back.
	time.Sleep(20 * time.Millisecond)
	service.CancelProject("p1")
	service.Forget("p1-s0")
	close(release)
	<-done

	if snap, ok := service.Get("p1-s0"); ok {
		t.Errorf("forgotten snapshot came back after cancellation: %+v", snap)
	}
}

func TestCancelledFirstRefreshLeavesNoEntry(t *testing.T) {
	release := make(chan struct{})
	runner := &fakeRunner{block: release}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: time.Hour})

	done := make(chan struct{})
	go func() {
		service.RefreshProject("p1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	service.CancelProject("p1")
	close(release)
	<-done

	// No snapshot existed before the refresh; none may exist after the
	// cancelled one is discarded.
	if snap, ok := service.Get("p1-s0"); ok {
		t.Errorf("cancelled first refresh left an entry behind: %+v", snap)
	}
}

func TestMarkStaleDemotesSnapshot(t *testing.T) {
	runner := &fakeRunner{status: git.WorkingStatus{Branch: "work"}}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: time.Hour})

	if _, err := service.Refresh(context.Background(), "p1-s0"); err != nil {
		t.Fatal(err)
	}
	service.MarkStale("p1-s0")

	snap, _ := service.Get("p1-s0")
	if snap.State != StateStale {
		t.Errorf("state = %s, want stale", snap.State)
	}
}

func TestForgetDropsSnapshot(t *testing.T) {
	runner := &fakeRunner{}
	sessions := &fakeSessions{sessions: projectSessions("p1", 1)}
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: time.Hour})

	if _, err := service.Refresh(context.Background(), "p1-s0"); err != nil {
		t.Fatal(err)
	}
	service.Forget("p1-s0")
	if _, ok := service.Get("p1-s0"); ok {
		t.Error("forgotten snapshot should be gone")
	}
}

func TestArchivedSessionsAreSkipped(t *testing.T) {
	runner := &fakeRunner{}
	sessions := &fakeSessions{sessions: projectSessions("p1", 2)}
	sessions.sessions[1].Archived = true
	service := NewService(runner, sessions, events.NewBus(), Options{FreshFor: time.Hour})

	service.RefreshProject("p1")
	if got := runner.callCount(); got != 1 {
		t.Errorf("polled %d worktrees, want 1 (archived skipped)", got)
	}
}
