package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ScriptedAlchemy/corral/internal/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's working-tree status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *orchestrator.Engine) error {
			snap, err := e.RefreshStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if snap.Err != "" {
				fmt.Printf("status error: %s\n", snap.Err)
				return nil
			}
			fmt.Printf("branch: %s", snap.Status.Branch)
			if snap.Status.Ahead > 0 || snap.Status.Behind > 0 {
				fmt.Printf(" (ahead %d, behind %d)", snap.Status.Ahead, snap.Status.Behind)
			}
			fmt.Printf("\n%s\n", snap.Status.Summary())
			return nil
		})
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <project-path>",
	Short: "Show the project dashboard",
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
			summary, err := e.Dashboard(project.ID)
			if err != nil {
				return err
			}
			if len(summary.Sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, row := range summary.Sessions {
				if row.Archived {
					continue
				}
				marker := " "
				if row.Favorite {
					marker = "*"
				}
				gitPart := row.GitSummary
				if gitPart == "" {
					gitPart = "-"
				}
				fmt.Printf("%s %-20s %-18s %-30s %s (%d executions)\n",
					marker, row.Name, row.Status, gitPart, row.Branch, row.Executions)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, dashboardCmd)
}
