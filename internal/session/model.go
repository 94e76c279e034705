package session

import (
	"time"
)

// Status is a session's position in the lifecycle state machine.
type Status string

const (
	StatusCreated           Status = "created"
	StatusRunning           Status = "running"
	StatusWaiting           Status = "waiting"
	StatusCompleted         Status = "completed"
	StatusCompletedUnviewed Status = "completed_unviewed"
	StatusError             Status = "error"
	StatusStopped           Status = "stopped"
)

// CommitMode controls when commits are produced inside a session.
type CommitMode string

const (
	// CommitModeCheckpoint commits automatically after each unit of agent
	// work when AutoCommit is set.
	CommitModeCheckpoint CommitMode = "checkpoint"
	// CommitModeManual commits only on explicit user action.
	CommitModeManual CommitMode = "manual"
)

// Session represents one isolated unit of agent work bound to a worktree.
// A main-repo session is the project's primary checkout: its worktree path
// equals the project root and it never gets a worktree of its own.
type Session struct {
	ID           string
	Name         string
	ProjectID    string
	WorktreePath string
	Branch       string
	BaseBranch   string
	Status       Status
	Favorite     bool
	Archived     bool
	AutoCommit   bool
	CommitMode   CommitMode
	Model        string
	DisplayOrder int
	IsMainRepo   bool
	CreatedAt    time.Time
}

// transitions is the legal state machine. Error is reachable from any
// active state; archiving is a flag orthogonal to status.
var transitions = map[Status][]Status{
	StatusCreated:           {StatusRunning, StatusStopped, StatusError},
	StatusStopped:           {StatusRunning, StatusError},
	StatusRunning:           {StatusWaiting, StatusCompleted, StatusCompletedUnviewed, StatusStopped, StatusError},
	StatusWaiting:           {StatusRunning, StatusCompleted, StatusCompletedUnviewed, StatusStopped, StatusError},
	StatusCompletedUnviewed: {StatusCompleted, StatusRunning, StatusError},
	StatusCompleted:         {StatusRunning, StatusError},
	StatusError:             {StatusRunning, StatusStopped},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
