package orchestrator

import (
	"time"

	"github.com/ScriptedAlchemy/corral/internal/dashboard"
	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// Dashboard returns the project's summary, served from the cache when a
// valid entry exists. A rebuilt summary reads only in-memory state; it
// never runs git, so a cold dashboard read stays cheap.
func (e *Engine) Dashboard(projectID string) (dashboard.Summary, error) {
	if _, err := e.Project(projectID); err != nil {
		return dashboard.Summary{}, err
	}
	if summary, ok := e.dashboard.Get(projectID); ok {
		return summary, nil
	}

	summary := e.buildSummary(projectID)
	e.dashboard.Set(projectID, summary)
	logger.Debug("Dashboard: rebuilt summary for project %s (%d sessions)", projectID, len(summary.Sessions))
	return summary, nil
}

// InvalidateDashboard drops the project's cached summary.
func (e *Engine) InvalidateDashboard(projectID string) {
	e.dashboard.Invalidate(projectID)
}

func (e *Engine) buildSummary(projectID string) dashboard.Summary {
	summary := dashboard.Summary{
		ProjectID: projectID,
		BuiltAt:   time.Now(),
	}
	if project, err := e.Project(projectID); err == nil {
		summary.Main.Branch = project.MainBranch
	}

	for _, sess := range e.registry.List(projectID) {
		row := dashboard.SessionSummary{
			SessionID: sess.ID,
			Name:      sess.Name,
			Status:    sess.Status,
			Branch:    sess.Branch,
			Favorite:  sess.Favorite,
			Archived:  sess.Archived,
		}

		if snap, ok := e.status.Get(sess.ID); ok {
			row.GitSummary = snap.Status.Summary()
			row.Ahead = snap.Status.Ahead
			row.Behind = snap.Status.Behind

			// The main-repo session's snapshot is the primary checkout's
			// status; it fills the project-level aggregate.
			if sess.IsMainRepo {
				summary.Main.GitSummary = snap.Status.Summary()
				summary.Main.Ahead = snap.Status.Ahead
				summary.Main.Behind = snap.Status.Behind
			}
		}

		execs := e.tracker.List(sess.ID)
		row.Executions = len(execs)
		if len(execs) > 0 {
			row.LastCommit = execs[len(execs)-1].CommitHash
		}

		summary.Sessions = append(summary.Sessions, row)
	}
	return summary
}
