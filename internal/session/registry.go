package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/events"
	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// Registry is the in-memory authoritative table of session records.
// It owns Session records exclusively; every successful mutation publishes
// a session-updated event on the bus.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	bus      *events.Bus
}

// CreateRequest describes a new session. ID is optional; when empty a new
// identifier is generated. Worktree materialization supplies the ID so the
// worktree directory name and session id match.
type CreateRequest struct {
	ID           string
	Name         string
	ProjectID    string
	WorktreePath string
	Branch       string
	BaseBranch   string
	CommitMode   CommitMode
	AutoCommit   bool
	Model        string
	IsMainRepo   bool
}

// NewRegistry creates an empty registry publishing on bus.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		bus:      bus,
	}
}

// Create validates the request and materializes a session in state created.
// Worktree paths must be unique across non-archived sessions.
func (r *Registry) Create(req CreateRequest) (*Session, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, corralerrors.ConfigInvalid("session name is required")
	}
	if strings.TrimSpace(req.WorktreePath) == "" {
		return nil, corralerrors.ConfigInvalid("worktree path is required")
	}
	if req.CommitMode == "" {
		req.CommitMode = CommitModeCheckpoint
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions {
		if existing.Archived {
			continue
		}
		if existing.WorktreePath == req.WorktreePath {
			return nil, corralerrors.DuplicateWorktree(req.WorktreePath)
		}
		if existing.ProjectID == req.ProjectID && existing.Name == req.Name {
			return nil, corralerrors.E(corralerrors.Op("session.Create"), corralerrors.KindValidation,
				"session name "+req.Name+" already in use")
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	sess := &Session{
		ID:           id,
		Name:         req.Name,
		ProjectID:    req.ProjectID,
		WorktreePath: req.WorktreePath,
		Branch:       req.Branch,
		BaseBranch:   req.BaseBranch,
		Status:       StatusCreated,
		CommitMode:   req.CommitMode,
		AutoCommit:   req.AutoCommit,
		Model:        req.Model,
		DisplayOrder: r.nextDisplayOrderLocked(req.ProjectID),
		IsMainRepo:   req.IsMainRepo,
		CreatedAt:    time.Now(),
	}
	r.sessions[sess.ID] = sess

	logger.Info("Registry: session created id=%s name=%s project=%s", sess.ID, sess.Name, sess.ProjectID)
	r.publishUpdatedLocked(sess)
	copied := *sess
	return &copied, nil
}

// Add inserts a session loaded from the store, keeping its identity.
func (r *Registry) Add(sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := sess
	r.sessions[sess.ID] = &copied
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, corralerrors.SessionNotFound(id)
	}
	copied := *sess
	return &copied, nil
}

// List returns copies of all sessions for a project (all projects when
// projectID is empty), ordered by display order then creation time.
func (r *Registry) List(projectID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Session
	for _, sess := range r.sessions {
		if projectID != "" && sess.ProjectID != projectID {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SetStatus enforces the state machine; illegal transitions are rejected
// with a conflict error.
func (r *Registry) SetStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return corralerrors.SessionNotFound(id)
	}
	if !CanTransition(sess.Status, status) {
		return corralerrors.InvalidTransition(id, string(sess.Status), string(status))
	}
	if sess.Status == status {
		return nil
	}
	logger.Debug("Registry: session %s status %s -> %s", id, sess.Status, status)
	sess.Status = status
	r.publishUpdatedLocked(sess)
	return nil
}

// MarkViewed moves completed_unviewed to completed once the client has
// recorded the session as viewed. No-op for any other status.
func (r *Registry) MarkViewed(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return corralerrors.SessionNotFound(id)
	}
	if sess.Status != StatusCompletedUnviewed {
		return nil
	}
	sess.Status = StatusCompleted
	r.publishUpdatedLocked(sess)
	return nil
}

// Rename updates the display name. Pure metadata, no git side effects.
func (r *Registry) Rename(id, name string) error {
	if strings.TrimSpace(name) == "" {
		return corralerrors.ConfigInvalid("session name is required")
	}
	return r.mutate(id, func(sess *Session) {
		sess.Name = name
	})
}

// ToggleFavorite flips the favorite flag.
func (r *Registry) ToggleFavorite(id string) error {
	return r.mutate(id, func(sess *Session) {
		sess.Favorite = !sess.Favorite
	})
}

// ToggleAutoCommit flips the auto-commit flag.
func (r *Registry) ToggleAutoCommit(id string) error {
	return r.mutate(id, func(sess *Session) {
		sess.AutoCommit = !sess.AutoCommit
	})
}

// SetCommitMode switches between checkpoint and manual commit modes.
func (r *Registry) SetCommitMode(id string, mode CommitMode) error {
	if mode != CommitModeCheckpoint && mode != CommitModeManual {
		return corralerrors.ConfigInvalid("commit mode must be checkpoint or manual")
	}
	return r.mutate(id, func(sess *Session) {
		sess.CommitMode = mode
	})
}

// Reorder sets the manual display order position.
func (r *Registry) Reorder(id string, order int) error {
	return r.mutate(id, func(sess *Session) {
		sess.DisplayOrder = order
	})
}

// Archive flips the archived flag. Idempotent; archiving an archived
// session is a no-op. Callers must drain the session's operation queue
// first so queued work is never discarded (the orchestrator does this).
func (r *Registry) Archive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return corralerrors.SessionNotFound(id)
	}
	if sess.Archived {
		return nil
	}
	sess.Archived = true
	logger.Info("Registry: session %s archived", id)
	r.publishUpdatedLocked(sess)
	return nil
}

// Delete purges a session record entirely. Safe on unknown ids.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	r.bus.Publish(events.Event{
		Kind:      events.SessionDeleted,
		SessionID: id,
		ProjectID: sess.ProjectID,
	})
}

// ReportAgentResult is the seam for the external process supervisor: a nil
// err means the agent finished a unit of work, non-nil moves the session
// to error.
func (r *Registry) ReportAgentResult(id string, agentErr error) error {
	if agentErr != nil {
		logger.Warn("Registry: session %s agent error: %v", id, agentErr)
		return r.SetStatus(id, StatusError)
	}
	return r.SetStatus(id, StatusCompletedUnviewed)
}

func (r *Registry) mutate(id string, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return corralerrors.SessionNotFound(id)
	}
	fn(sess)
	r.publishUpdatedLocked(sess)
	return nil
}

// publishUpdatedLocked publishes a session-updated event with a copy of the
// record. Publish never blocks, so holding the lock is fine.
func (r *Registry) publishUpdatedLocked(sess *Session) {
	copied := *sess
	r.bus.Publish(events.Event{
		Kind:      events.SessionUpdated,
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		Payload:   copied,
	})
}

func (r *Registry) nextDisplayOrderLocked(projectID string) int {
	next := 0
	for _, sess := range r.sessions {
		if sess.ProjectID == projectID && sess.DisplayOrder >= next {
			next = sess.DisplayOrder + 1
		}
	}
	return next
}
