package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// WorkingStatus is the parsed working-tree status of a worktree.
type WorkingStatus struct {
	Branch         string
	Ahead          int
	Behind         int
	Modified       int
	Staged         int
	Untracked      int
	Conflicted     int
	HasUncommitted bool
}

// Summary renders a short human-readable form, e.g. "2 modified, 1 untracked".
func (s WorkingStatus) Summary() string {
	var parts []string
	if s.Conflicted > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicted", s.Conflicted))
	}
	if s.Staged > 0 {
		parts = append(parts, fmt.Sprintf("%d staged", s.Staged))
	}
	if s.Modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", s.Modified))
	}
	if s.Untracked > 0 {
		parts = append(parts, fmt.Sprintf("%d untracked", s.Untracked))
	}
	if len(parts) == 0 {
		return "clean"
	}
	return strings.Join(parts, ", ")
}

// Status runs "git status --porcelain=v1 --branch" and parses the result.
func (g *Git) Status(ctx context.Context, worktree string) (WorkingStatus, error) {
	result, err := g.Run(ctx, worktree, "status", "--porcelain=v1", "--branch")
	if err != nil {
		return WorkingStatus{}, err
	}
	return ParseStatus(result.Stdout), nil
}

// ParseStatus parses porcelain v1 output with a branch header line.
func ParseStatus(out string) WorkingStatus {
	var status WorkingStatus
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			parseBranchHeader(line, &status)
			continue
		}
		if len(line) < 2 {
			continue
		}
		index, worktreeCol := line[0], line[1]
		switch {
		case index == '?' && worktreeCol == '?':
			status.Untracked++
		case index == 'U' || worktreeCol == 'U' ||
			(index == 'A' && worktreeCol == 'A') ||
			(index == 'D' && worktreeCol == 'D'):
			status.Conflicted++
		default:
			if index != ' ' {
				status.Staged++
			}
			if worktreeCol != ' ' {
				status.Modified++
			}
		}
	}
	status.HasUncommitted = status.Modified+status.Staged+status.Untracked+status.Conflicted > 0
	return status
}

// parseBranchHeader parses "## branch...origin/branch [ahead 1, behind 2]".
func parseBranchHeader(line string, status *WorkingStatus) {
	header := strings.TrimPrefix(line, "## ")

	if idx := strings.Index(header, " ["); idx >= 0 {
		tracking := strings.TrimSuffix(header[idx+2:], "]")
		header = header[:idx]
		for _, part := range strings.Split(tracking, ", ") {
			if n, ok := strings.CutPrefix(part, "ahead "); ok {
				status.Ahead, _ = strconv.Atoi(n)
			}
			if n, ok := strings.CutPrefix(part, "behind "); ok {
				status.Behind, _ = strconv.Atoi(n)
			}
		}
	}

	if idx := strings.Index(header, "..."); idx >= 0 {
		header = header[:idx]
	}
	status.Branch = header
}
