package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ScriptedAlchemy/corral/internal/orchestrator"
	"github.com/ScriptedAlchemy/corral/internal/session"
)

var (
	createBranch      string
	createModel       string
	createAutoCommit  bool
	createManualMode  bool
	createUseMainRepo bool
	listAll           bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <project-path> <name>",
	Short: "Create a session with its own worktree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(e *orchestrator.Engine) error {
			project, err := e.RegisterProject(projectPath)
			if err != nil {
				return err
			}
			mode := session.CommitModeCheckpoint
			if createManualMode {
				mode = session.CommitModeManual
			}
			sess, err := e.CreateSession(orchestrator.CreateSessionRequest{
				ProjectID:   project.ID,
				Name:        args[1],
				Branch:      createBranch,
				Model:       createModel,
				AutoCommit:  createAutoCommit,
				CommitMode:  mode,
				UseMainRepo: createUseMainRepo,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created session %s\n", sess.ID)
			fmt.Printf("  branch:   %s\n", sess.Branch)
			fmt.Printf("  worktree: %s\n", sess.WorktreePath)
			return nil
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list <project-path>",
	Short: "List a project's sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(e *orchestrator.Engine) error {
			project, err := e.RegisterProject(projectPath)
			if err != nil {
				return err
			}
			for _, sess := range e.Sessions().List(project.ID) {
				if sess.Archived && !listAll {
					continue
				}
				marker := " "
				if sess.Favorite {
					marker = "*"
				}
				archived := ""
				if sess.Archived {
					archived = " (archived)"
				}
				fmt.Printf("%s %-36s %-20s %-18s %s%s\n", marker, sess.ID, sess.Name, sess.Status, sess.Branch, archived)
			}
			return nil
		})
	},
}

var sessionArchiveCmd = &cobra.Command{
	Use:   "archive <session-id>",
	Short: "Archive a session after its queued operations finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			if err := e.ArchiveSession(args[0]); err != nil {
				return err
			}
			fmt.Printf("Archived session %s\n", args[0])
			return nil
		})
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session, its worktree and its branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			if err := e.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted session %s\n", args[0])
			return nil
		})
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <name>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			return e.Sessions().Rename(args[0], args[1])
		})
	},
}

var sessionViewCmd = &cobra.Command{
	Use:   "view <session-id>",
	Short: "Mark a completed session as viewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			return e.Sessions().MarkViewed(args[0])
		})
	},
}

var sessionFavoriteCmd = &cobra.Command{
	Use:   "favorite <session-id>",
	Short: "Toggle a session's favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			return e.Sessions().ToggleFavorite(args[0])
		})
	},
}

var sessionReorderCmd = &cobra.Command{
	Use:   "reorder <session-id> <position>",
	Short: "Set a session's display position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[1])
		}
		return withEngine(func(e *orchestrator.Engine) error {
			return e.Sessions().Reorder(args[0], position)
		})
	},
}

var sessionAutoCommitCmd = &cobra.Command{
	Use:   "auto-commit <session-id>",
	Short: "Toggle a session's auto-commit flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			return e.Sessions().ToggleAutoCommit(args[0])
		})
	},
}

var sessionCommitModeCmd = &cobra.Command{
	Use:   "commit-mode <session-id> <checkpoint|manual>",
	Short: "Set a session's commit mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			return e.Sessions().SetCommitMode(args[0], session.CommitMode(args[1]))
		})
	},
}

var sessionPruneCmd = &cobra.Command{
	Use:   "prune <project-path>",
	Short: "Remove worktrees no session claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(e *orchestrator.Engine) error {
			project, err := e.RegisterProject(projectPath)
			if err != nil {
				return err
			}
			orphans, pruned, err := e.PruneOrphanWorktrees(project.ID)
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Println("No orphaned worktrees found.")
				return nil
			}
			for _, orphan := range orphans {
				fmt.Printf("  - %s\n", orphan.Path)
			}
			fmt.Printf("Pruned %d worktree(s).\n", pruned)
			return nil
		})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Report operations left mid-run by a crash",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			entries, err := e.OrphanedOperations(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No orphaned operations.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Found %d operation(s) interrupted mid-run (not re-run):\n", len(entries))
			for _, entry := range entries {
				fmt.Fprintf(os.Stderr, "  %s: %s (started %s)\n", entry.SessionID, entry.Operation, entry.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

func init() {
	sessionCreateCmd.Flags().StringVar(&createBranch, "branch", "", "Custom branch name (default auto-generated)")
	sessionCreateCmd.Flags().StringVar(&createModel, "model", "", "Model to run in the session")
	sessionCreateCmd.Flags().BoolVar(&createAutoCommit, "auto-commit", true, "Commit automatically after each unit of work")
	sessionCreateCmd.Flags().BoolVar(&createManualMode, "manual", false, "Manual commit mode instead of checkpoint")
	sessionCreateCmd.Flags().BoolVar(&createUseMainRepo, "main-repo", false, "Bind to the project's primary checkout instead of a worktree")
	sessionListCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include archived sessions")

	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionArchiveCmd, sessionDeleteCmd,
		sessionRenameCmd, sessionViewCmd, sessionFavoriteCmd, sessionReorderCmd,
		sessionAutoCommitCmd, sessionCommitModeCmd, sessionPruneCmd)
	rootCmd.AddCommand(sessionCmd, orphansCmd)
}
