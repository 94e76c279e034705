// Package git is the git capability: it executes git against a worktree
// path and returns structured results. It is safe to invoke concurrently
// across distinct worktree paths; serialization per worktree is the
// operation queue's job, not this package's.
package git

import (
	"context"
	"strconv"
	"strings"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	pexec "github.com/ScriptedAlchemy/corral/internal/exec"
	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// RunResult is the structured output of one git invocation.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// FileStat is the per-file change statistics of a diff.
type FileStat struct {
	Path     string
	Added    int
	Deleted  int
	IsBinary bool
}

// DiffResult is a parsed diff with per-file stats and the raw unified text.
type DiffResult struct {
	Files       []FileStat
	Additions   int
	Deletions   int
	UnifiedDiff string
}

// Commit is one entry from the log.
type Commit struct {
	Hash    string
	Subject string
	Date    string
}

// Runner is the abstract git capability consumed by the rest of the engine.
type Runner interface {
	Run(ctx context.Context, worktree string, args ...string) (RunResult, error)
	Diff(ctx context.Context, worktree, fromRef, toRef string) (DiffResult, error)
}

// Git runs real git commands through a command executor.
type Git struct {
	executor pexec.CommandExecutor
}

// New returns a Git backed by the real command executor.
func New() *Git {
	return NewWithExecutor(pexec.NewRealExecutor())
}

// NewWithExecutor returns a Git backed by the given executor.
// Tests pass a scripted fake here.
func NewWithExecutor(e pexec.CommandExecutor) *Git {
	return &Git{executor: e}
}

// Run executes git with the given arguments in the worktree. A non-zero
// exit returns a *GitError carrying the command line and raw stderr; the
// worktree is left exactly as git left it.
func (g *Git) Run(ctx context.Context, worktree string, args ...string) (RunResult, error) {
	stdout, stderr, err := g.executor.Run(ctx, worktree, "git", args...)
	result := RunResult{
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: pexec.ExitCode(err),
	}
	if err != nil {
		command := "git " + strings.Join(args, " ")
		logger.Debug("Git: command failed: %s (exit %d)", command, result.ExitCode)
		return result, corralerrors.NewGitError(command, result.ExitCode, result.Stderr, err)
	}
	return result, nil
}

// Diff computes the diff between fromRef and toRef. An empty toRef diffs
// fromRef against the working tree, which includes uncommitted changes.
func (g *Git) Diff(ctx context.Context, worktree, fromRef, toRef string) (DiffResult, error) {
	numstatArgs := []string{"diff", "--numstat", fromRef}
	diffArgs := []string{"diff", fromRef}
	if toRef != "" {
		numstatArgs = append(numstatArgs, toRef)
		diffArgs = append(diffArgs, toRef)
	}

	numstat, err := g.Run(ctx, worktree, numstatArgs...)
	if err != nil {
		return DiffResult{}, err
	}
	unified, err := g.Run(ctx, worktree, diffArgs...)
	if err != nil {
		return DiffResult{}, err
	}

	result := parseNumstat(numstat.Stdout)
	result.UnifiedDiff = unified.Stdout
	return result, nil
}

// parseNumstat parses "added<TAB>deleted<TAB>path" lines. Binary files
// report "-" for both counts.
func parseNumstat(out string) DiffResult {
	var result DiffResult
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		stat := FileStat{Path: fields[2]}
		if fields[0] == "-" || fields[1] == "-" {
			stat.IsBinary = true
		} else {
			stat.Added, _ = strconv.Atoi(fields[0])
			stat.Deleted, _ = strconv.Atoi(fields[1])
		}
		result.Additions += stat.Added
		result.Deletions += stat.Deleted
		result.Files = append(result.Files, stat)
	}
	return result
}

// HeadHash returns the commit hash of HEAD in the worktree.
func (g *Git) HeadHash(ctx context.Context, worktree string) (string, error) {
	result, err := g.Run(ctx, worktree, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// logFieldSep separates fields in the log format; unlikely in a subject line.
const logFieldSep = "\x1f"

// LastCommits returns up to count commits from the worktree's HEAD,
// newest first.
func (g *Git) LastCommits(ctx context.Context, worktree string, count int) ([]Commit, error) {
	result, err := g.Run(ctx, worktree, "log", "-n", strconv.Itoa(count),
		"--pretty=format:%H"+logFieldSep+"%s"+logFieldSep+"%cI")
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, logFieldSep, 3)
		if len(fields) != 3 {
			continue
		}
		commits = append(commits, Commit{Hash: fields[0], Subject: fields[1], Date: fields[2]})
	}
	return commits, nil
}
