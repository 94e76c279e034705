// Package errors provides structured error types for the Corral engine.
// These errors provide context about what operation failed and where.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindGit
	KindStore
	KindArchived
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation error"
	case KindConflict:
		return "conflict"
	case KindGit:
		return "git error"
	case KindStore:
		return "store error"
	case KindArchived:
		return "archived"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for Corral.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// stderrExcerptLimit caps how much raw stderr a GitError carries. Enough
// for a conflict listing, short enough for an error dialog.
const stderrExcerptLimit = 4096

// GitError reports a failed git invocation. The original command line and
// raw stderr are preserved verbatim so the caller can present an actionable
// error; it is never retried or swallowed.
type GitError struct {
	Command  string // full command line, e.g. "git rebase main"
	ExitCode int
	Stderr   string // stderr excerpt, capped at stderrExcerptLimit
	Err      error
}

// NewGitError builds a GitError, trimming stderr to the excerpt limit.
func NewGitError(command string, exitCode int, stderr string, err error) *GitError {
	if len(stderr) > stderrExcerptLimit {
		stderr = stderr[:stderrExcerptLimit]
	}
	return &GitError{
		Command:  command,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Err:      err,
	}
}

func (e *GitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: exit %d", e.Command, e.ExitCode)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// Session errors
func SessionNotFound(id string) error {
	return E(Op("session.Get"), KindNotFound, fmt.Sprintf("session %s not found", id))
}

func SessionArchived(id string) error {
	return E(Op("queue.Enqueue"), KindArchived, fmt.Sprintf("session %s is archived", id))
}

func InvalidTransition(id, from, to string) error {
	return E(Op("session.SetStatus"), KindConflict, fmt.Sprintf("session %s cannot transition %s -> %s", id, from, to))
}

func DuplicateWorktree(path string) error {
	return E(Op("session.Create"), KindValidation, fmt.Sprintf("worktree path %s already in use", path))
}

// Project errors
func ProjectNotFound(id string) error {
	return E(Op("project.Get"), KindNotFound, fmt.Sprintf("project %s not found", id))
}

// Store errors
func StoreOpenFailed(path string, err error) error {
	return E(Op("store.Open"), KindStore, fmt.Sprintf("failed to open store at %s", path), err)
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindStore, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindValidation, reason)
}
