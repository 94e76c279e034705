package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/orchestrator"
	"github.com/ScriptedAlchemy/corral/internal/queue"
)

var (
	pushSetUpstream bool
)

// runOperation waits for a queued operation and renders its result. Git
// failures print the exact command and its stderr so the user can act.
func runOperation(ctx context.Context, future *queue.Future) error {
	result, err := future.Wait(ctx)
	if err != nil {
		var gitErr *corralerrors.GitError
		if errors.As(err, &gitErr) {
			fmt.Printf("Command failed: %s (exit %d)\n", gitErr.Command, gitErr.ExitCode)
			if gitErr.Stderr != "" {
				fmt.Println(gitErr.Stderr)
			}
		}
		return err
	}
	if result.CommitHash != "" {
		fmt.Printf("Commit %s (+%d -%d, %d files)\n",
			result.CommitHash, result.Additions, result.Deletions, result.FilesChanged)
	}
	if result.Output != "" {
		fmt.Print(result.Output)
	}
	return nil
}

func operationCommand(use, short string, enqueue func(e *orchestrator.Engine, args []string) (*queue.Future, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *orchestrator.Engine) error {
				future, err := enqueue(e, args)
				if err != nil {
					return err
				}
				return runOperation(cmd.Context(), future)
			})
		},
	}
}

func init() {
	commitCmd := operationCommand("commit <session-id> <message>",
		"Commit everything in the session's worktree",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("commit requires a message")
			}
			return e.Commit(args[0], args[1])
		})
	commitCmd.Args = cobra.ExactArgs(2)

	mergeFromMainCmd := operationCommand("merge-from-main <session-id>",
		"Merge the project's main branch into the session's worktree",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.MergeFromMain(args[0])
		})

	mergeToMainCmd := operationCommand("merge-to-main <session-id>",
		"Merge the session's branch into main",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.MergeToMain(args[0])
		})

	rebaseCmd := operationCommand("rebase <session-id>",
		"Rebase the session's commits onto main and fast-forward main",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.Rebase(args[0])
		})

	rebaseFromMainCmd := operationCommand("rebase-from-main <session-id>",
		"Rebase the session's worktree onto the current main",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.RebaseFromMain(args[0])
		})

	abortRebaseCmd := operationCommand("abort-rebase <session-id>",
		"Abort an in-progress rebase in the session's worktree",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.AbortRebase(args[0])
		})

	squashCmd := operationCommand("squash <session-id> <message>",
		"Squash the session's commits into one and rebase onto main",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("squash requires a message")
			}
			return e.SquashAndRebase(args[0], args[1])
		})
	squashCmd.Args = cobra.ExactArgs(2)

	revertCmd := operationCommand("revert <session-id> <commit-hash>",
		"Revert one commit in the session's worktree",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("revert requires a commit hash")
			}
			return e.RevertCommit(args[0], args[1])
		})
	revertCmd.Args = cobra.ExactArgs(2)

	restoreCmd := operationCommand("restore <session-id>",
		"Discard all uncommitted changes in the session's worktree",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.Restore(args[0])
		})

	pullCmd := operationCommand("pull <session-id>",
		"Pull in the session's worktree",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.Pull(args[0])
		})

	pushCmd := operationCommand("push <session-id>",
		"Push the session's branch",
		func(e *orchestrator.Engine, args []string) (*queue.Future, error) {
			return e.Push(args[0], pushSetUpstream)
		})
	pushCmd.Flags().BoolVarP(&pushSetUpstream, "set-upstream", "u", false, "Set the upstream on first push")

	rootCmd.AddCommand(commitCmd, mergeFromMainCmd, mergeToMainCmd, rebaseCmd, rebaseFromMainCmd,
		abortRebaseCmd, squashCmd, revertCmd, restoreCmd, pullCmd, pushCmd)
}
