// Package execution tracks the commit history a session produces: one
// execution record per commit made through the operation queue, numbered
// contiguously from 1 per session.
package execution

import (
	"context"
	"sync"
	"time"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/events"
	"github.com/ScriptedAlchemy/corral/internal/git"
	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// UncommittedSeq is the synthetic sequence number for uncommitted working
// tree changes. It is never stored; listings synthesize it when the
// worktree is dirty.
const UncommittedSeq = 0

// Execution is one recorded commit for a session.
type Execution struct {
	SessionID    string
	Seq          int
	CommitHash   string
	Additions    int
	Deletions    int
	FilesChanged int
	CreatedAt    time.Time
}

// Range selects executions [From, To] inclusive by sequence number.
// From == To == UncommittedSeq selects only uncommitted changes.
type Range struct {
	From int
	To   int
}

// gitClient is the slice of the git capability the tracker needs.
type gitClient interface {
	Diff(ctx context.Context, worktree, fromRef, toRef string) (git.DiffResult, error)
	LastCommits(ctx context.Context, worktree string, count int) ([]git.Commit, error)
}

// PersistFunc writes an execution record through to durable storage.
type PersistFunc func(ctx context.Context, exec Execution) error

// Tracker owns execution records, in memory, keyed by session.
type Tracker struct {
	mu         sync.Mutex
	git        gitClient
	bus        *events.Bus
	executions map[string][]Execution
	persist    PersistFunc
}

// New returns a tracker publishing on bus and diffing through g.
func New(g gitClient, bus *events.Bus) *Tracker {
	return &Tracker{
		git:        g,
		bus:        bus,
		executions: make(map[string][]Execution),
	}
}

// SetPersist registers the write-through hook. Persistence failures are
// logged, not surfaced; the in-memory record is authoritative.
func (t *Tracker) SetPersist(fn PersistFunc) {
	t.persist = fn
}

// Record appends a new execution for the session. Sequence numbers are
// allocated here, contiguously from 1, in the order commits complete.
func (t *Tracker) Record(sessionID, commitHash string, additions, deletions, filesChanged int) Execution {
	t.mu.Lock()
	exec := Execution{
		SessionID:    sessionID,
		Seq:          len(t.executions[sessionID]) + 1,
		CommitHash:   commitHash,
		Additions:    additions,
		Deletions:    deletions,
		FilesChanged: filesChanged,
		CreatedAt:    time.Now(),
	}
	t.executions[sessionID] = append(t.executions[sessionID], exec)
	t.mu.Unlock()

	logger.Debug("Execution: recorded seq=%d hash=%s for session=%s", exec.Seq, commitHash, sessionID)
	if t.persist != nil {
		if err := t.persist(context.Background(), exec); err != nil {
			logger.Warn("Execution: persist failed for session=%s seq=%d: %v", sessionID, exec.Seq, err)
		}
	}
	t.bus.Publish(events.Event{Kind: events.ExecutionAdded, SessionID: sessionID, Payload: exec})
	return exec
}

// Load seeds a session's executions from storage. Records must already be
// in sequence order; used at startup before any Record call.
func (t *Tracker) Load(sessionID string, execs []Execution) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions[sessionID] = append([]Execution(nil), execs...)
}

// List returns the session's executions in sequence order.
func (t *Tracker) List(sessionID string) []Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Execution(nil), t.executions[sessionID]...)
}

// Forget drops a session's records. Used when a session is deleted.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.executions, sessionID)
}

// CombinedDiff returns one diff spanning the selected executions.
//
// A nil rng selects everything: all executions plus uncommitted changes.
// Range {0, 0} selects only uncommitted changes. Range {a, b} selects
// commits a through b, diffed from the commit preceding a.
func (t *Tracker) CombinedDiff(ctx context.Context, sessionID, worktree string, rng *Range) (git.DiffResult, error) {
	t.mu.Lock()
	execs := append([]Execution(nil), t.executions[sessionID]...)
	t.mu.Unlock()

	const op = corralerrors.Op("execution.CombinedDiff")

	if rng == nil {
		if len(execs) == 0 {
			// No executions yet: uncommitted changes only.
			return t.git.Diff(ctx, worktree, "HEAD", "")
		}
		return t.git.Diff(ctx, worktree, precedingRef(execs, 1), "")
	}

	if rng.From == UncommittedSeq && rng.To == UncommittedSeq {
		// Always from HEAD: commits made outside the queue since the last
		// execution are still commits, not uncommitted changes.
		return t.git.Diff(ctx, worktree, "HEAD", "")
	}

	if rng.From < 1 || rng.To < rng.From || rng.To > len(execs) {
		return git.DiffResult{}, corralerrors.E(op, corralerrors.KindValidation,
			"execution range out of bounds")
	}
	return t.git.Diff(ctx, worktree, precedingRef(execs, rng.From), execs[rng.To-1].CommitHash)
}

// precedingRef is the ref immediately before execution seq: the previous
// execution's hash, or the first execution's parent.
func precedingRef(execs []Execution, seq int) string {
	if seq == 1 {
		return execs[0].CommitHash + "^"
	}
	return execs[seq-2].CommitHash
}

// LastCommits returns up to count commits from the session's worktree,
// newest first. This reads git history directly, so commits made outside
// the queue show up too.
func (t *Tracker) LastCommits(ctx context.Context, worktree string, count int) ([]git.Commit, error) {
	return t.git.LastCommits(ctx, worktree, count)
}
