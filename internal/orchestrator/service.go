// Package orchestrator wires the engine together: registry, operation
// queue, execution tracker, status service and dashboard cache behind one
// facade. Callers (the CLI, an MCP server, tests) talk to the Engine;
// components talk to each other only through the constructor wiring here.
package orchestrator

import (
	"context"
	"sync"

	"github.com/ScriptedAlchemy/corral/internal/config"
	"github.com/ScriptedAlchemy/corral/internal/dashboard"
	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/events"
	pexec "github.com/ScriptedAlchemy/corral/internal/exec"
	"github.com/ScriptedAlchemy/corral/internal/execution"
	"github.com/ScriptedAlchemy/corral/internal/git"
	"github.com/ScriptedAlchemy/corral/internal/logger"
	"github.com/ScriptedAlchemy/corral/internal/queue"
	"github.com/ScriptedAlchemy/corral/internal/session"
	"github.com/ScriptedAlchemy/corral/internal/status"
	"github.com/ScriptedAlchemy/corral/internal/store"
)

// Project is a registered repository that sessions belong to. The project
// id is the repository's absolute path, which keeps ids stable across
// restarts without a separate table.
type Project struct {
	ID         string
	Path       string
	MainBranch string
}

// Options configure an Engine beyond what config carries.
type Options struct {
	// Executor overrides the command executor; tests pass a scripted fake.
	Executor pexec.CommandExecutor
	// Store enables persistence. Nil runs fully in memory. The caller
	// owns the store and closes it.
	Store *store.Store
	// Notify enables desktop notifications on agent results.
	Notify bool
}

// Engine is the facade over the whole orchestration engine.
type Engine struct {
	cfg       *config.Config
	bus       *events.Bus
	registry  *session.Registry
	queue     *queue.Queue
	tracker   *execution.Tracker
	status    *status.Service
	dashboard *dashboard.Cache
	store     *store.Store
	git       *git.Git
	notify    bool

	mu       sync.Mutex
	projects map[string]*Project

	unsubscribe func()
}

// New builds and wires an Engine. When opts.Store is set, previously
// persisted sessions and executions are loaded before New returns.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	executor := opts.Executor
	if executor == nil {
		executor = pexec.NewRealExecutor()
	}
	session.SetExecutor(executor)

	bus := events.NewBus()
	g := git.NewWithExecutor(executor)
	registry := session.NewRegistry(bus)

	var backend queue.Backend = queue.NewMemoryBackend()
	if opts.Store != nil && config.QueueBackend(cfg.Queue.Backend) == config.QueueBackendJournal {
		backend = store.NewJournalBackend(opts.Store)
	}
	operationQueue := queue.New(g, backend)

	tracker := execution.New(g, bus)
	if opts.Store != nil {
		persistStore := opts.Store
		tracker.SetPersist(func(ctx context.Context, exec execution.Execution) error {
			return persistStore.InsertExecution(ctx, store.ExecutionRow{
				SessionID:    exec.SessionID,
				Seq:          exec.Seq,
				CommitHash:   exec.CommitHash,
				Additions:    exec.Additions,
				Deletions:    exec.Deletions,
				FilesChanged: exec.FilesChanged,
				CreatedAt:    exec.CreatedAt,
			})
		})
	}

	statusService := status.NewService(g, registry, bus, status.Options{
		FreshFor:  cfg.PollInterval(),
		Debounce:  cfg.Debounce(),
		ChunkSize: cfg.Status.ChunkSize,
	})

	e := &Engine{
		cfg:       cfg,
		bus:       bus,
		registry:  registry,
		queue:     operationQueue,
		tracker:   tracker,
		status:    statusService,
		dashboard: dashboard.NewCache(),
		store:     opts.Store,
		git:       g,
		notify:    opts.Notify,
		projects:  make(map[string]*Project),
	}

	// Every commit a queue operation produces becomes an execution record,
	// and the worktree's cached status is no longer trustworthy.
	operationQueue.SetCommitFunc(func(sessionID, hash string, additions, deletions, filesChanged int) {
		e.tracker.Record(sessionID, hash, additions, deletions, filesChanged)
		e.status.MarkStale(sessionID)
	})

	if err := e.loadFromStore(); err != nil {
		return nil, err
	}

	// The bookkeeping subscriber must see every event: a dropped
	// session-updated would skip a SaveSession and leave the store behind
	// memory, so it subscribes without a bound instead of a buffer.
	eventCh, unsubscribe := bus.SubscribeUnbounded()
	e.unsubscribe = unsubscribe
	go e.watchEvents(eventCh)

	return e, nil
}

// Run starts the background status polling loop until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.status.Run(ctx)
}

// Close shuts the engine down. Queued operations for each session should
// be drained by callers that care; Close does not wait for them.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.bus.Close()
}

// Bus exposes the engine's event bus for subscribers.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Sessions exposes the registry for read-mostly callers.
func (e *Engine) Sessions() *session.Registry {
	return e.registry
}

// Status exposes the status service.
func (e *Engine) Status() *status.Service {
	return e.status
}

// RegisterProject registers a git repository as a project. Registering the
// same path twice returns the existing project.
func (e *Engine) RegisterProject(path string) (*Project, error) {
	if err := session.ValidateRepo(path); err != nil {
		return nil, corralerrors.E(corralerrors.Op("orchestrator.RegisterProject"), corralerrors.KindValidation, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.projects[path]; ok {
		return p, nil
	}
	p := &Project{
		ID:         path,
		Path:       path,
		MainBranch: session.GetDefaultBranch(path),
	}
	e.projects[path] = p
	logger.Info("Orchestrator: registered project %s (main=%s)", path, p.MainBranch)
	return p, nil
}

// Project returns a registered project.
func (e *Engine) Project(id string) (*Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[id]
	if !ok {
		return nil, corralerrors.ProjectNotFound(id)
	}
	return p, nil
}

// OrphanedOperations reports journal entries left mid-run by a crash.
// They are informational only; the engine never re-runs them.
func (e *Engine) OrphanedOperations(ctx context.Context) ([]store.JournalEntry, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.OrphanedEntries(ctx)
}

// loadFromStore rehydrates sessions and executions, and re-registers the
// projects they reference. A project whose path no longer exists is kept
// with its sessions' recorded base branch so history stays viewable.
func (e *Engine) loadFromStore() error {
	if e.store == nil {
		return nil
	}
	ctx := context.Background()

	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		e.registry.Add(sess)

		e.mu.Lock()
		if _, ok := e.projects[sess.ProjectID]; !ok {
			mainBranch := sess.BaseBranch
			if mainBranch == "" {
				mainBranch = "main"
			}
			e.projects[sess.ProjectID] = &Project{ID: sess.ProjectID, Path: sess.ProjectID, MainBranch: mainBranch}
		}
		e.mu.Unlock()

		rows, err := e.store.ListExecutions(ctx, sess.ID)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			execs := make([]execution.Execution, 0, len(rows))
			for _, row := range rows {
				execs = append(execs, execution.Execution{
					SessionID:    row.SessionID,
					Seq:          row.Seq,
					CommitHash:   row.CommitHash,
					Additions:    row.Additions,
					Deletions:    row.Deletions,
					FilesChanged: row.FilesChanged,
					CreatedAt:    row.CreatedAt,
				})
			}
			e.tracker.Load(sess.ID, execs)
		}
	}
	logger.Info("Orchestrator: loaded %d sessions from store", len(sessions))
	return nil
}

// watchEvents persists session mutations and keeps the dashboard cache
// honest: any event that changes what a dashboard shows invalidates that
// project's entry.
func (e *Engine) watchEvents(ch <-chan events.Event) {
	for event := range ch {
		switch event.Kind {
		case events.SessionUpdated:
			if event.ProjectID != "" {
				e.dashboard.Invalidate(event.ProjectID)
			}
			if e.store != nil {
				if sess, ok := event.Payload.(session.Session); ok {
					if err := e.store.SaveSession(context.Background(), sess); err != nil {
						logger.Warn("Orchestrator: persist session %s failed: %v", sess.ID, err)
					}
				}
			}
		case events.SessionDeleted, events.GitStatusUpdated, events.GitStatusBatch:
			if event.ProjectID != "" {
				e.dashboard.Invalidate(event.ProjectID)
			}
		case events.ExecutionAdded:
			if sess, err := e.registry.Get(event.SessionID); err == nil {
				e.dashboard.Invalidate(sess.ProjectID)
			}
		}
	}
}
