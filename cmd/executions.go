package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ScriptedAlchemy/corral/internal/execution"
	"github.com/ScriptedAlchemy/corral/internal/orchestrator"
)

var (
	diffRange string
	logCount  int
)

var executionsCmd = &cobra.Command{
	Use:   "executions <session-id>",
	Short: "List a session's executions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			execs, err := e.Executions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(execs) == 0 {
				fmt.Println("No executions.")
				return nil
			}
			for _, exec := range execs {
				if exec.Seq == execution.UncommittedSeq {
					fmt.Println("  0  (uncommitted changes)")
					continue
				}
				fmt.Printf("%3d  %s  +%d -%d (%d files)\n",
					exec.Seq, exec.CommitHash, exec.Additions, exec.Deletions, exec.FilesChanged)
			}
			return nil
		})
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <session-id>",
	Short: "Show a combined diff across executions",
	Long: `Show one diff spanning a session's executions.

Without --range the diff covers every execution plus uncommitted changes.
--range 0 selects only uncommitted changes; --range 2-4 selects executions
2 through 4.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rng, err := parseRange(diffRange)
		if err != nil {
			return err
		}
		return withEngine(func(e *orchestrator.Engine) error {
			diff, err := e.CombinedDiff(cmd.Context(), args[0], rng)
			if err != nil {
				return err
			}
			fmt.Printf("+%d -%d across %d files\n", diff.Additions, diff.Deletions, len(diff.Files))
			if diff.UnifiedDiff != "" {
				fmt.Print(diff.UnifiedDiff)
			}
			return nil
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log <session-id>",
	Short: "Show the newest commits in a session's worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			commits, err := e.LastCommits(cmd.Context(), args[0], logCount)
			if err != nil {
				return err
			}
			for _, commit := range commits {
				fmt.Printf("%s  %s\n", commit.Hash[:min(12, len(commit.Hash))], commit.Subject)
			}
			return nil
		})
	},
}

// parseRange parses "" (everything), "0" (uncommitted only) or "a-b".
func parseRange(s string) (*execution.Range, error) {
	if s == "" {
		return nil, nil
	}
	if s == "0" {
		return &execution.Range{}, nil
	}
	from, to, found := strings.Cut(s, "-")
	if !found {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", s)
		}
		return &execution.Range{From: n, To: n}, nil
	}
	a, err := strconv.Atoi(from)
	if err != nil {
		return nil, fmt.Errorf("invalid range %q", s)
	}
	b, err := strconv.Atoi(to)
	if err != nil {
		return nil, fmt.Errorf("invalid range %q", s)
	}
	return &execution.Range{From: a, To: b}, nil
}

func init() {
	diffCmd.Flags().StringVar(&diffRange, "range", "", "Execution range, e.g. 0 or 2-4")
	logCmd.Flags().IntVarP(&logCount, "count", "n", 10, "Number of commits to show")
	rootCmd.AddCommand(executionsCmd, diffCmd, logCmd)
}
