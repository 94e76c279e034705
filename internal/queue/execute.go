package queue

import (
	"context"
	"fmt"
	"strings"
)

// execute dispatches one operation against the worktree. Failures leave the
// worktree exactly as git left it and are never retried; the error carries
// the command line and raw stderr for display.
func (q *Queue) execute(ctx context.Context, worktree string, op Operation) (Result, error) {
	switch v := op.(type) {
	case Commit:
		return q.commit(ctx, worktree, v)
	case MergeMainIntoWorktree:
		return q.mergeMainIntoWorktree(ctx, worktree, v)
	case MergeWorktreeIntoMain:
		return q.mergeWorktreeIntoMain(ctx, v)
	case RebaseOntoMain:
		return q.rebaseOntoMain(ctx, worktree, v)
	case RebaseMainIntoWorktree:
		result, err := q.git.Run(ctx, worktree, "rebase", v.MainBranch)
		return Result{Output: result.Stdout}, err
	case AbortRebase:
		result, err := q.git.Run(ctx, worktree, "rebase", "--abort")
		return Result{Output: result.Stdout}, err
	case SquashAndRebase:
		return q.squashAndRebase(ctx, worktree, v)
	case Revert:
		return q.revert(ctx, worktree, v)
	case Restore:
		return q.restore(ctx, worktree)
	case Pull:
		result, err := q.git.Run(ctx, worktree, "pull")
		return Result{Output: result.Stdout}, err
	case Push:
		return q.push(ctx, worktree, v)
	default:
		return Result{}, fmt.Errorf("unknown operation %T", op)
	}
}

func (q *Queue) headHash(ctx context.Context, dir string) (string, error) {
	result, err := q.git.Run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// commitStats fills in the diff statistics of the commit at hash.
func (q *Queue) commitStats(ctx context.Context, worktree, hash string, result *Result) {
	diff, err := q.git.Diff(ctx, worktree, hash+"^", hash)
	if err != nil {
		// Root commits have no parent; stats stay zero.
		return
	}
	result.Additions = diff.Additions
	result.Deletions = diff.Deletions
	result.FilesChanged = len(diff.Files)
}

func (q *Queue) commit(ctx context.Context, worktree string, op Commit) (Result, error) {
	if _, err := q.git.Run(ctx, worktree, "add", "-A"); err != nil {
		return Result{}, err
	}
	commitOut, err := q.git.Run(ctx, worktree, "commit", "-m", op.Message)
	if err != nil {
		return Result{}, err
	}
	hash, err := q.headHash(ctx, worktree)
	if err != nil {
		return Result{}, err
	}
	result := Result{CommitHash: hash, Output: commitOut.Stdout}
	q.commitStats(ctx, worktree, hash, &result)
	return result, nil
}

func (q *Queue) mergeMainIntoWorktree(ctx context.Context, worktree string, op MergeMainIntoWorktree) (Result, error) {
	before, err := q.headHash(ctx, worktree)
	if err != nil {
		return Result{}, err
	}
	mainTip, err := q.headHashOf(ctx, worktree, op.MainBranch)
	if err != nil {
		return Result{}, err
	}

	// Fast-forward when possible, otherwise a real merge commit. On
	// conflict the worktree stays mid-merge; no automatic abort.
	mergeOut, err := q.git.Run(ctx, worktree, "merge", op.MainBranch, "--no-edit")
	if err != nil {
		return Result{Output: mergeOut.Stdout}, err
	}

	after, err := q.headHash(ctx, worktree)
	if err != nil {
		return Result{}, err
	}
	result := Result{Output: mergeOut.Stdout}
	if after != before && after != mainTip {
		// A new merge commit was produced (not a fast-forward).
		result.CommitHash = after
		q.commitStats(ctx, worktree, after, &result)
	}
	return result, nil
}

func (q *Queue) headHashOf(ctx context.Context, dir, ref string) (string, error) {
	result, err := q.git.Run(ctx, dir, "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (q *Queue) mergeWorktreeIntoMain(ctx context.Context, op MergeWorktreeIntoMain) (Result, error) {
	lock := q.rootLock(op.ProjectRoot)
	lock.Lock()
	defer lock.Unlock()

	if _, err := q.git.Run(ctx, op.ProjectRoot, "checkout", op.MainBranch); err != nil {
		return Result{}, err
	}
	mergeOut, err := q.git.Run(ctx, op.ProjectRoot, "merge", op.Branch, "--no-edit")
	return Result{Output: mergeOut.Stdout}, err
}

func (q *Queue) rebaseOntoMain(ctx context.Context, worktree string, op RebaseOntoMain) (Result, error) {
	// Rebase the session's commits onto main. A conflict surfaces as a
	// git error and leaves the worktree mid-rebase; abort-rebase and
	// squash-and-rebase are the explicit ways out.
	rebaseOut, err := q.git.Run(ctx, worktree, "rebase", op.MainBranch)
	if err != nil {
		return Result{Output: rebaseOut.Stdout}, err
	}

	// The fast-forward leg runs in the shared main checkout.
	lock := q.rootLock(op.ProjectRoot)
	lock.Lock()
	defer lock.Unlock()

	if _, err := q.git.Run(ctx, op.ProjectRoot, "checkout", op.MainBranch); err != nil {
		return Result{}, err
	}
	ffOut, err := q.git.Run(ctx, op.ProjectRoot, "merge", "--ff-only", op.Branch)
	return Result{Output: rebaseOut.Stdout + ffOut.Stdout}, err
}

func (q *Queue) squashAndRebase(ctx context.Context, worktree string, op SquashAndRebase) (Result, error) {
	if _, err := q.git.Run(ctx, worktree, "reset", "--soft", op.BaseRef); err != nil {
		return Result{}, err
	}
	if _, err := q.git.Run(ctx, worktree, "commit", "-m", op.Message); err != nil {
		return Result{}, err
	}
	rebaseOut, err := q.git.Run(ctx, worktree, "rebase", op.MainBranch)
	if err != nil {
		return Result{Output: rebaseOut.Stdout}, err
	}
	hash, err := q.headHash(ctx, worktree)
	if err != nil {
		return Result{}, err
	}
	result := Result{CommitHash: hash, Output: rebaseOut.Stdout}
	q.commitStats(ctx, worktree, hash, &result)
	return result, nil
}

func (q *Queue) revert(ctx context.Context, worktree string, op Revert) (Result, error) {
	revertOut, err := q.git.Run(ctx, worktree, "revert", "--no-edit", op.CommitHash)
	if err != nil {
		return Result{Output: revertOut.Stdout}, err
	}
	hash, err := q.headHash(ctx, worktree)
	if err != nil {
		return Result{}, err
	}
	result := Result{CommitHash: hash, Output: revertOut.Stdout}
	q.commitStats(ctx, worktree, hash, &result)
	return result, nil
}

func (q *Queue) restore(ctx context.Context, worktree string) (Result, error) {
	if _, err := q.git.Run(ctx, worktree, "checkout", "--", "."); err != nil {
		return Result{}, err
	}
	cleanOut, err := q.git.Run(ctx, worktree, "clean", "-fd")
	return Result{Output: cleanOut.Stdout}, err
}

func (q *Queue) push(ctx context.Context, worktree string, op Push) (Result, error) {
	args := []string{"push"}
	if op.SetUpstream {
		args = append(args, "-u", "origin", op.Branch)
	}
	pushOut, err := q.git.Run(ctx, worktree, args...)
	return Result{Output: pushOut.Stdout}, err
}
