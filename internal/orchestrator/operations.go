package orchestrator

import (
	"context"
	"fmt"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/execution"
	"github.com/ScriptedAlchemy/corral/internal/git"
	"github.com/ScriptedAlchemy/corral/internal/logger"
	"github.com/ScriptedAlchemy/corral/internal/notification"
	"github.com/ScriptedAlchemy/corral/internal/queue"
	"github.com/ScriptedAlchemy/corral/internal/session"
	"github.com/ScriptedAlchemy/corral/internal/status"
)

// CreateSessionRequest describes a new session for CreateSession.
type CreateSessionRequest struct {
	ProjectID  string
	Name       string
	Branch     string // optional custom branch name
	Model      string
	AutoCommit bool
	CommitMode session.CommitMode
	// UseMainRepo binds the session to the project's primary checkout
	// instead of creating a worktree.
	UseMainRepo bool
}

// CreateSession materializes a worktree (unless the session uses the main
// repo) and registers the session. If registration fails the worktree is
// removed again so nothing is left behind.
func (e *Engine) CreateSession(req CreateSessionRequest) (*session.Session, error) {
	project, err := e.Project(req.ProjectID)
	if err != nil {
		return nil, err
	}

	if req.UseMainRepo {
		return e.registry.Create(session.CreateRequest{
			Name:         req.Name,
			ProjectID:    project.ID,
			WorktreePath: project.Path,
			Branch:       project.MainBranch,
			BaseBranch:   project.MainBranch,
			CommitMode:   req.CommitMode,
			AutoCommit:   req.AutoCommit,
			Model:        req.Model,
			IsMainRepo:   true,
		})
	}

	worktree, err := session.Materialize(project.Path, req.Branch, e.cfg.Git.BranchPrefix, e.cfg.Git.WorktreeDirName)
	if err != nil {
		return nil, err
	}

	sess, err := e.registry.Create(session.CreateRequest{
		ID:           worktree.ID,
		Name:         req.Name,
		ProjectID:    project.ID,
		WorktreePath: worktree.Path,
		Branch:       worktree.Branch,
		BaseBranch:   worktree.BaseBranch,
		CommitMode:   req.CommitMode,
		AutoCommit:   req.AutoCommit,
		Model:        req.Model,
	})
	if err != nil {
		if removeErr := session.Remove(project.Path, worktree.Path, worktree.Branch); removeErr != nil {
			logger.Warn("Orchestrator: cleanup of worktree %s failed: %v", worktree.Path, removeErr)
		}
		return nil, err
	}
	return sess, nil
}

// ArchiveSession drains the session's operation queue, then flips the
// archived flag. Everything already enqueued finishes; enqueues after this
// returns are rejected.
func (e *Engine) ArchiveSession(id string) error {
	if _, err := e.registry.Get(id); err != nil {
		return err
	}
	e.queue.CloseSession(id)
	return e.registry.Archive(id)
}

// DeleteSession purges a session: pending queue work is discarded, the
// worktree and branch are removed, and all record of the session goes.
func (e *Engine) DeleteSession(id string) error {
	sess, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	e.queue.DropSession(id)
	e.status.CancelProject(sess.ProjectID)

	if !sess.IsMainRepo {
		project, err := e.Project(sess.ProjectID)
		if err == nil {
			if err := session.Remove(project.Path, sess.WorktreePath, sess.Branch); err != nil {
				logger.Warn("Orchestrator: worktree removal for session %s failed: %v", id, err)
			}
		}
	}

	e.registry.Delete(id)
	e.tracker.Forget(id)
	e.status.Forget(id)
	if e.store != nil {
		if err := e.store.DeleteSession(context.Background(), id); err != nil {
			logger.Warn("Orchestrator: store delete for session %s failed: %v", id, err)
		}
	}
	return nil
}

// ReportAgentResult records the outcome of a unit of agent work. Success
// moves the session to completed_unviewed and, in checkpoint mode with
// auto-commit on, enqueues a checkpoint commit.
func (e *Engine) ReportAgentResult(id string, agentErr error) error {
	sess, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	if err := e.registry.ReportAgentResult(id, agentErr); err != nil {
		return err
	}

	if e.notify {
		if agentErr != nil {
			notification.SessionFailed(sess.Name)
		} else {
			notification.SessionCompleted(sess.Name)
		}
	}

	if agentErr == nil && sess.AutoCommit && sess.CommitMode == session.CommitModeCheckpoint {
		e.queue.Enqueue(id, sess.WorktreePath, queue.Commit{
			Message: fmt.Sprintf("checkpoint: %s", sess.Name),
		})
	}
	return nil
}

// Commit enqueues a commit of everything in the session's worktree.
func (e *Engine) Commit(id, message string) (*queue.Future, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.Commit{Message: message}), nil
}

// MergeFromMain enqueues a merge of the project's main branch into the
// session's worktree.
func (e *Engine) MergeFromMain(id string) (*queue.Future, error) {
	sess, project, err := e.sessionAndProject(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.MergeMainIntoWorktree{
		MainBranch: project.MainBranch,
	}), nil
}

// MergeToMain enqueues a merge of the session's branch into main, run from
// the project's primary checkout.
func (e *Engine) MergeToMain(id string) (*queue.Future, error) {
	sess, project, err := e.sessionAndProject(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.MergeWorktreeIntoMain{
		ProjectRoot: project.Path,
		Branch:      sess.Branch,
		MainBranch:  project.MainBranch,
	}), nil
}

// Rebase enqueues a rebase of the session's commits onto main followed by a
// fast-forward of main.
func (e *Engine) Rebase(id string) (*queue.Future, error) {
	sess, project, err := e.sessionAndProject(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.RebaseOntoMain{
		ProjectRoot: project.Path,
		Branch:      sess.Branch,
		MainBranch:  project.MainBranch,
	}), nil
}

// RebaseFromMain enqueues a rebase of the worktree onto the current main.
func (e *Engine) RebaseFromMain(id string) (*queue.Future, error) {
	sess, project, err := e.sessionAndProject(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.RebaseMainIntoWorktree{
		MainBranch: project.MainBranch,
	}), nil
}

// AbortRebase enqueues an abort of an in-progress rebase, the explicit way
// out of a conflicted rebase.
func (e *Engine) AbortRebase(id string) (*queue.Future, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.AbortRebase{}), nil
}

// SquashAndRebase enqueues collapsing the session's commits into one and
// rebasing it onto main.
func (e *Engine) SquashAndRebase(id, message string) (*queue.Future, error) {
	sess, project, err := e.sessionAndProject(id)
	if err != nil {
		return nil, err
	}
	baseRef := sess.BaseBranch
	if baseRef == "" {
		baseRef = project.MainBranch
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.SquashAndRebase{
		BaseRef:    baseRef,
		Message:    message,
		MainBranch: project.MainBranch,
	}), nil
}

// RevertCommit enqueues a revert of one commit in the session's worktree.
func (e *Engine) RevertCommit(id, commitHash string) (*queue.Future, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.Revert{CommitHash: commitHash}), nil
}

// Restore enqueues discarding all uncommitted changes in the worktree.
func (e *Engine) Restore(id string) (*queue.Future, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.Restore{}), nil
}

// Pull enqueues a pull in the session's worktree.
func (e *Engine) Pull(id string) (*queue.Future, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.Pull{}), nil
}

// Push enqueues a push of the session's branch, optionally setting the
// upstream on first push.
func (e *Engine) Push(id string, setUpstream bool) (*queue.Future, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(id, sess.WorktreePath, queue.Push{
		Branch:      sess.Branch,
		SetUpstream: setUpstream,
	}), nil
}

// DrainSession blocks until the session's queue is empty.
func (e *Engine) DrainSession(id string) {
	e.queue.Drain(id)
}

// Executions lists a session's recorded executions. When the worktree has
// uncommitted changes a synthetic record with sequence 0 is appended so
// listings show the pending work.
func (e *Engine) Executions(ctx context.Context, id string) ([]execution.Execution, error) {
	sess, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	execs := e.tracker.List(id)

	workingStatus, err := e.git.Status(ctx, sess.WorktreePath)
	if err == nil && workingStatus.HasUncommitted {
		execs = append(execs, execution.Execution{
			SessionID: id,
			Seq:       execution.UncommittedSeq,
		})
	}
	return execs, nil
}

// CombinedDiff returns one diff spanning the selected executions; see the
// tracker for range semantics.
func (e *Engine) CombinedDiff(ctx context.Context, id string, rng *execution.Range) (git.DiffResult, error) {
	sess, err := e.registry.Get(id)
	if err != nil {
		return git.DiffResult{}, err
	}
	return e.tracker.CombinedDiff(ctx, id, sess.WorktreePath, rng)
}

// LastCommits returns the newest count commits in the session's worktree.
func (e *Engine) LastCommits(ctx context.Context, id string, count int) ([]git.Commit, error) {
	sess, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return e.tracker.LastCommits(ctx, sess.WorktreePath, count)
}

// RefreshStatus polls one session's git status immediately.
func (e *Engine) RefreshStatus(ctx context.Context, id string) (status.Snapshot, error) {
	return e.status.Refresh(ctx, id)
}

// RefreshProjectStatus polls every session of a project, coalescing the
// results into one batch event.
func (e *Engine) RefreshProjectStatus(projectID string) {
	e.status.RefreshProject(projectID)
}

// PruneOrphanWorktrees removes worktree directories under the project's
// worktree dir that no session (archived included) claims. Returns the
// orphans found and how many were removed.
func (e *Engine) PruneOrphanWorktrees(projectID string) ([]session.Orphan, int, error) {
	project, err := e.Project(projectID)
	if err != nil {
		return nil, 0, err
	}

	knownIDs := make(map[string]bool)
	for _, sess := range e.registry.List(projectID) {
		knownIDs[sess.ID] = true
	}

	orphans, err := session.FindOrphans(project.Path, e.cfg.Git.WorktreeDirName, knownIDs)
	if err != nil {
		return nil, 0, err
	}
	if len(orphans) == 0 {
		return nil, 0, nil
	}
	pruned := session.PruneOrphans(orphans)
	return orphans, pruned, nil
}

// sessionAndProject resolves a non-archived session together with its
// project.
func (e *Engine) sessionAndProject(id string) (*session.Session, *Project, error) {
	sess, err := e.activeSession(id)
	if err != nil {
		return nil, nil, err
	}
	project, err := e.Project(sess.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return sess, project, nil
}

// activeSession resolves a session and rejects archived ones up front, so
// callers get the archived error before anything is enqueued.
func (e *Engine) activeSession(id string) (*session.Session, error) {
	sess, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.Archived {
		return nil, corralerrors.SessionArchived(id)
	}
	return sess, nil
}
