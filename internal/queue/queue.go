package queue

import (
	"context"
	"sync"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/git"
	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// CommitFunc is called after an operation produces a commit, before the
// queue slot is released. The orchestrator wires this to the execution
// tracker so every commit becomes an execution record.
type CommitFunc func(sessionID, commitHash string, additions, deletions, filesChanged int)

// Future resolves with an operation's result once it has run.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result Result, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Wait blocks until the operation completes or ctx is done. Callers that
// give up waiting must be prepared for the operation to still be running:
// queued operations are never interrupted mid-command.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, corralerrors.E(corralerrors.Op("queue.Wait"), corralerrors.KindTimeout, ctx.Err())
	}
}

type task struct {
	op       Operation
	worktree string
	future   *Future
	token    int64
}

type sessionQueue struct {
	pending []task
	running bool
	closed  bool
}

// Queue is the per-session serializer for git-mutating operations.
// FIFO per session; no ordering across sessions.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sessions map[string]*sessionQueue
	roots    map[string]*sync.Mutex
	git      git.Runner
	backend  Backend
	onCommit CommitFunc
}

// New creates a queue executing operations through the given git capability
// and journaling intents through backend.
func New(g git.Runner, backend Backend) *Queue {
	q := &Queue{
		sessions: make(map[string]*sessionQueue),
		roots:    make(map[string]*sync.Mutex),
		git:      g,
		backend:  backend,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// rootLock returns the lock guarding a project's primary checkout. Session
// queues serialize by session id only; operations that touch the shared
// main checkout hold its directory lock too, so two sessions can never
// mutate the same checkout at once.
func (q *Queue) rootLock(dir string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.roots[dir]
	if !ok {
		lock = &sync.Mutex{}
		q.roots[dir] = lock
	}
	return lock
}

// SetCommitFunc registers the commit hook. Must be called before any
// enqueue; not safe to change while operations run.
func (q *Queue) SetCommitFunc(fn CommitFunc) {
	q.onCommit = fn
}

// Enqueue accepts an operation for the session's worktree. If nothing is
// running for that session it begins immediately, otherwise it runs when
// its FIFO predecessors finish. The returned future resolves with the
// operation's result or its error.
func (q *Queue) Enqueue(sessionID, worktree string, op Operation) *Future {
	future := newFuture()

	q.mu.Lock()
	sq, ok := q.sessions[sessionID]
	if !ok {
		sq = &sessionQueue{}
		q.sessions[sessionID] = sq
	}
	if sq.closed {
		q.mu.Unlock()
		future.resolve(Result{}, corralerrors.SessionArchived(sessionID))
		return future
	}

	token, err := q.backend.Append(sessionID, op.Name())
	if err != nil {
		q.mu.Unlock()
		future.resolve(Result{}, corralerrors.E(corralerrors.Op("queue.Enqueue"), corralerrors.KindStore, err))
		return future
	}

	sq.pending = append(sq.pending, task{op: op, worktree: worktree, future: future, token: token})
	logger.Debug("Queue: enqueued %s for session=%s (depth=%d)", op.Name(), sessionID, len(sq.pending))
	if !sq.running {
		sq.running = true
		go q.run(sessionID)
	}
	q.mu.Unlock()

	return future
}

// Drain blocks until the session's queue is empty and idle. Operations
// already enqueued all finish; nothing is discarded.
func (q *Queue) Drain(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		sq, ok := q.sessions[sessionID]
		if !ok || (!sq.running && len(sq.pending) == 0) {
			return
		}
		q.cond.Wait()
	}
}

// CloseSession drains the session's queue and rejects all future enqueues.
// Used when a session is archived: queued work finishes first, then the
// queue closes.
func (q *Queue) CloseSession(sessionID string) {
	q.Drain(sessionID)

	q.mu.Lock()
	defer q.mu.Unlock()
	sq, ok := q.sessions[sessionID]
	if !ok {
		sq = &sessionQueue{}
		q.sessions[sessionID] = sq
	}
	sq.closed = true
}

// DropSession discards operations not yet started and forgets the session.
// Only valid when the session is being purged; a running operation still
// finishes (git is never interrupted) but its successors resolve with a
// not-found error.
func (q *Queue) DropSession(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sq, ok := q.sessions[sessionID]
	if !ok {
		return
	}
	for _, t := range sq.pending {
		q.backend.Complete(t.token, corralerrors.SessionNotFound(sessionID))
		t.future.resolve(Result{}, corralerrors.SessionNotFound(sessionID))
	}
	sq.pending = nil
	sq.closed = true
}

// run is the per-session worker. It exits when the FIFO empties; the next
// enqueue starts a fresh one.
func (q *Queue) run(sessionID string) {
	for {
		q.mu.Lock()
		sq := q.sessions[sessionID]
		if len(sq.pending) == 0 {
			sq.running = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		t := sq.pending[0]
		sq.pending = sq.pending[1:]
		q.mu.Unlock()

		// Operations are not cancellable once dequeued: git must not be
		// interrupted mid-command.
		result, err := q.execute(context.Background(), t.worktree, t.op)
		if err != nil {
			logger.Warn("Queue: %s failed for session=%s: %v", t.op.Name(), sessionID, err)
		}

		if err == nil && result.CommitHash != "" && q.onCommit != nil {
			q.onCommit(sessionID, result.CommitHash, result.Additions, result.Deletions, result.FilesChanged)
		}

		q.backend.Complete(t.token, err)
		t.future.resolve(result, err)
	}
}
