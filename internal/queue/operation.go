// Package queue serializes git-mutating operations per session worktree.
// At most one operation runs against a worktree at a time; unrelated
// sessions proceed fully in parallel.
package queue

// Operation is the closed set of git-mutating operations the queue accepts.
// Each variant carries its own typed parameters and is dispatched by an
// exhaustive type switch; there is no string-keyed handler table.
type Operation interface {
	isOperation()
	// Name is the operation's wire/display name.
	Name() string
}

// Commit stages everything and commits. Produced manually or as a
// checkpoint auto-commit after a unit of agent work.
type Commit struct {
	Message string
}

// MergeMainIntoWorktree merges the main branch into the session worktree.
// Fast-forwards when possible, otherwise produces a real merge commit.
// On conflict the worktree is left exactly as git left it.
type MergeMainIntoWorktree struct {
	MainBranch string
}

// MergeWorktreeIntoMain merges the session branch into main at the project
// root checkout.
type MergeWorktreeIntoMain struct {
	ProjectRoot string
	Branch      string
	MainBranch  string
}

// RebaseOntoMain rebases the session's commits onto main, then
// fast-forwards main to the rebased branch at the project root.
type RebaseOntoMain struct {
	ProjectRoot string
	Branch      string
	MainBranch  string
}

// RebaseMainIntoWorktree replays the session's commits on top of main
// inside the worktree, without touching main itself.
type RebaseMainIntoWorktree struct {
	MainBranch string
}

// AbortRebase aborts a conflicted rebase, restoring the pre-rebase state.
// This is the explicit fallback when a rebase variant conflicts; nothing
// aborts automatically.
type AbortRebase struct{}

// SquashAndRebase squashes all session executions into one commit, then
// rebases onto main.
type SquashAndRebase struct {
	// BaseRef is the commit the squash resets to, normally the commit
	// preceding the session's first execution.
	BaseRef    string
	Message    string
	MainBranch string
}

// Revert reverts one historical commit by hash. The command layer is
// responsible for user confirmation; the queue trusts its caller.
type Revert struct {
	CommitHash string
}

// Restore discards all uncommitted changes in the worktree, including
// untracked files. Confirmation is the command layer's job.
type Restore struct{}

// Pull pulls the session branch from its upstream.
type Pull struct{}

// Push pushes the session branch, setting the upstream on first push.
type Push struct {
	Branch      string
	SetUpstream bool
}

func (Commit) isOperation()                 {}
func (MergeMainIntoWorktree) isOperation()  {}
func (MergeWorktreeIntoMain) isOperation()  {}
func (RebaseOntoMain) isOperation()         {}
func (RebaseMainIntoWorktree) isOperation() {}
func (AbortRebase) isOperation()            {}
func (SquashAndRebase) isOperation()        {}
func (Revert) isOperation()                 {}
func (Restore) isOperation()                {}
func (Pull) isOperation()                   {}
func (Push) isOperation()                   {}

func (Commit) Name() string                 { return "commit" }
func (MergeMainIntoWorktree) Name() string  { return "merge-main-to-worktree" }
func (MergeWorktreeIntoMain) Name() string  { return "merge-worktree-to-main" }
func (RebaseOntoMain) Name() string         { return "rebase-to-main" }
func (RebaseMainIntoWorktree) Name() string { return "rebase-main-into-worktree" }
func (AbortRebase) Name() string            { return "abort-rebase" }
func (SquashAndRebase) Name() string        { return "squash-and-rebase" }
func (Revert) Name() string                 { return "revert" }
func (Restore) Name() string                { return "restore" }
func (Pull) Name() string                   { return "pull" }
func (Push) Name() string                   { return "push" }

// Result is the structured outcome of a completed operation.
type Result struct {
	// CommitHash is set when the operation produced a new commit.
	CommitHash string
	// Additions/Deletions/FilesChanged describe the produced commit.
	Additions    int
	Deletions    int
	FilesChanged int
	// Output is interesting stdout for display (merge summaries etc).
	Output string
}
