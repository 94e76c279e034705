// Package status polls git working-tree status for session worktrees,
// caches snapshots, and batches refresh results per project.
package status

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ScriptedAlchemy/corral/internal/events"
	"github.com/ScriptedAlchemy/corral/internal/git"
	"github.com/ScriptedAlchemy/corral/internal/logger"
	"github.com/ScriptedAlchemy/corral/internal/session"
)

// State is the lifecycle of a cached snapshot.
type State string

const (
	// StateLoading means a refresh is in flight and no result has landed yet.
	StateLoading State = "loading"
	// StateFresh means the snapshot is within the freshness window.
	StateFresh State = "fresh"
	// StateStale means the snapshot exists but its window has lapsed.
	StateStale State = "stale"
	// StateError means the last refresh failed; Err carries the message.
	StateError State = "error"
)

// Snapshot is one session's cached git status.
type Snapshot struct {
	SessionID string
	ProjectID string
	State     State
	Status    git.WorkingStatus
	Err       string
	UpdatedAt time.Time
}

// statusRunner is the slice of the git capability the service needs.
type statusRunner interface {
	Status(ctx context.Context, worktree string) (git.WorkingStatus, error)
}

// sessionSource supplies the sessions to poll.
type sessionSource interface {
	List(projectID string) []session.Session
	Get(id string) (*session.Session, error)
}

// Options tune the service. Zero values fall back to the defaults the
// config package uses.
type Options struct {
	// FreshFor is how long a snapshot counts as fresh.
	FreshFor time.Duration
	// Debounce is the window within which a project's refresh results
	// coalesce into one batch event.
	Debounce time.Duration
	// ChunkSize bounds how many worktrees are polled before yielding.
	ChunkSize int
}

func (o *Options) fill() {
	if o.FreshFor <= 0 {
		o.FreshFor = 5 * time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 150 * time.Millisecond
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 25
	}
}

type projectState struct {
	ctx     context.Context
	cancel  context.CancelFunc
	epoch   int
	pending []Snapshot
	timer   *time.Timer
}

// Service caches git status snapshots per session and coalesces refresh
// results into one git-status-batch event per project per debounce window.
type Service struct {
	mu        sync.Mutex
	git       statusRunner
	sessions  sessionSource
	bus       *events.Bus
	opts      Options
	flight    singleflight.Group
	snapshots map[string]Snapshot
	projects  map[string]*projectState
}

// NewService creates a status service.
func NewService(g statusRunner, sessions sessionSource, bus *events.Bus, opts Options) *Service {
	opts.fill()
	return &Service{
		git:       g,
		sessions:  sessions,
		bus:       bus,
		opts:      opts,
		snapshots: make(map[string]Snapshot),
		projects:  make(map[string]*projectState),
	}
}

// Get returns the cached snapshot for a session. A fresh snapshot whose
// window has lapsed is reported as stale; the data itself is kept so the
// caller has something to show while a refresh runs.
func (s *Service) Get(sessionID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	if snap.State == StateFresh && time.Since(snap.UpdatedAt) >= s.opts.FreshFor {
		snap.State = StateStale
		s.snapshots[sessionID] = snap
	}
	return snap, true
}

// Refresh polls one session's worktree now. Concurrent refreshes of the
// same session share one underlying git invocation. The loading state is
// visible in the cache before the result lands.
func (s *Service) Refresh(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.refreshSession(ctx, *sess, true), nil
}

// RefreshProject polls every non-archived session of the project. Worktrees
// are processed in chunks so a large project cannot monopolize the
// scheduler; results for the project coalesce into one batch event.
func (s *Service) RefreshProject(projectID string) {
	ctx, epoch := s.projectContext(projectID)

	sessions := s.sessions.List(projectID)
	for i, sess := range sessions {
		if sess.Archived {
			continue
		}
		if i > 0 && i%s.opts.ChunkSize == 0 {
			runtime.Gosched()
		}
		if ctx.Err() != nil {
			logger.Debug("Status: project %s refresh cancelled after %d sessions", projectID, i)
			return
		}
		snap := s.refreshSession(ctx, sess, false)
		s.addToBatch(projectID, epoch, snap)
	}
}

// CancelProject abandons any in-flight refresh work for the project.
// Results of git commands already running are discarded when they land.
func (s *Service) CancelProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.projects[projectID]
	if !ok {
		return
	}
	ps.cancel()
	ps.epoch++
	ps.ctx, ps.cancel = context.WithCancel(context.Background())
	if ps.timer != nil {
		ps.timer.Stop()
		ps.timer = nil
	}
	ps.pending = nil
	logger.Debug("Status: cancelled refreshes for project %s", projectID)
}

// MarkStale demotes a session's snapshot so the next poll re-reads it.
// Used after queue operations mutate the worktree.
func (s *Service) MarkStale(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[sessionID]
	if !ok || snap.State == StateLoading {
		return
	}
	snap.State = StateStale
	s.snapshots[sessionID] = snap
}

// Forget drops a session's snapshot. Used when a session is deleted.
func (s *Service) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
}

// Run polls all projects on the freshness interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FreshFor)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, projectID := range s.projectIDs() {
				s.RefreshProject(projectID)
			}
		}
	}
}

func (s *Service) projectIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, sess := range s.sessions.List("") {
		if sess.Archived || seen[sess.ProjectID] {
			continue
		}
		seen[sess.ProjectID] = true
		ids = append(ids, sess.ProjectID)
	}
	return ids
}

// refreshSession runs git status for one session and records the result.
// A cancelled ctx discards the result instead of caching it. When notify is
// false no per-session event is published; batched project refreshes emit
// one batch event instead.
func (s *Service) refreshSession(ctx context.Context, sess session.Session, notify bool) Snapshot {
	s.mu.Lock()
	prev, hadPrev := s.snapshots[sess.ID]
	s.snapshots[sess.ID] = Snapshot{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		State:     StateLoading,
		Status:    prev.Status,
		UpdatedAt: prev.UpdatedAt,
	}
	s.mu.Unlock()

	value, err, _ := s.flight.Do(sess.ID, func() (interface{}, error) {
		return s.git.Status(ctx, sess.WorktreePath)
	})

	if ctx.Err() != nil {
		// The project was cancelled while this was in flight; the result
		// belongs to a refresh nobody wants anymore. Only undo our own
		// loading marker: if the session was forgotten meanwhile, or a
		// live refresh already landed, the map must stay as it is.
		s.mu.Lock()
		if cur, ok := s.snapshots[sess.ID]; ok && cur.State == StateLoading {
			if hadPrev {
				s.snapshots[sess.ID] = prev
			} else {
				delete(s.snapshots, sess.ID)
			}
		}
		s.mu.Unlock()
		return prev
	}

	snap := Snapshot{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		UpdatedAt: time.Now(),
	}
	if err != nil {
		snap.State = StateError
		snap.Err = err.Error()
	} else {
		snap.State = StateFresh
		snap.Status = value.(git.WorkingStatus)
	}

	s.mu.Lock()
	s.snapshots[sess.ID] = snap
	s.mu.Unlock()

	if notify {
		s.bus.Publish(events.Event{
			Kind:      events.GitStatusUpdated,
			SessionID: sess.ID,
			ProjectID: sess.ProjectID,
			Payload:   snap,
		})
	}
	return snap
}

// projectContext returns the project's cancellation context and current
// epoch, creating state for new projects.
func (s *Service) projectContext(projectID string) (context.Context, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.projects[projectID]
	if !ok {
		ps = &projectState{}
		ps.ctx, ps.cancel = context.WithCancel(context.Background())
		s.projects[projectID] = ps
	}
	return ps.ctx, ps.epoch
}

// addToBatch collects a snapshot into the project's pending batch. The
// first result of a window arms the debounce timer; when it fires, one
// git-status-batch event carries everything collected since.
func (s *Service) addToBatch(projectID string, epoch int, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.projects[projectID]
	if !ok || ps.epoch != epoch {
		return
	}
	ps.pending = append(ps.pending, snap)
	if ps.timer == nil {
		ps.timer = time.AfterFunc(s.opts.Debounce, func() {
			s.flushBatch(projectID, epoch)
		})
	}
}

func (s *Service) flushBatch(projectID string, epoch int) {
	s.mu.Lock()
	ps, ok := s.projects[projectID]
	if !ok || ps.epoch != epoch || len(ps.pending) == 0 {
		if ok && ps.epoch == epoch {
			ps.timer = nil
		}
		s.mu.Unlock()
		return
	}
	batch := ps.pending
	ps.pending = nil
	ps.timer = nil
	s.mu.Unlock()

	logger.Debug("Status: publishing batch of %d for project %s", len(batch), projectID)
	s.bus.Publish(events.Event{
		Kind:      events.GitStatusBatch,
		ProjectID: projectID,
		Payload:   batch,
	})
}
