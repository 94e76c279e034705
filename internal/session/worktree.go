package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	pexec "github.com/ScriptedAlchemy/corral/internal/exec"
	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// executor is the command executor used by this package.
// It can be swapped for testing via SetExecutor.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
// This is primarily used for testing.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// MaxBranchNameLength is the maximum length for user-provided branch names.
const MaxBranchNameLength = 100

// validBranchNameRegex matches valid git branch name characters.
// Git branch names cannot contain: space, ~, ^, :, ?, *, [, \, or control
// characters. They also cannot start with - or end with .lock.
var validBranchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// ValidateBranchName checks if a branch name is valid for git.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return nil // Empty is allowed (an auto-generated name will be used)
	}

	if len(branch) > MaxBranchNameLength {
		return fmt.Errorf("branch name too long (max %d characters)", MaxBranchNameLength)
	}

	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}

	if strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch name cannot end with '.lock'")
	}

	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}

	if !validBranchNameRegex.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters (use letters, numbers, /, _, ., -)")
	}

	return nil
}

// ValidateRepo checks if a path is a valid git repository.
func ValidateRepo(path string) error {
	if strings.HasPrefix(path, "~") {
		return fmt.Errorf("please use absolute path instead of ~")
	}

	output, err := executor.CombinedOutput(context.Background(), path, "git", "rev-parse", "--git-dir")
	if err != nil {
		return fmt.Errorf("not a git repository: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// GetDefaultBranch returns the default branch name for the repo
// (e.g., "main" or "master"). Returns "main" as a last-resort fallback.
func GetDefaultBranch(repoPath string) string {
	ctx := context.Background()

	// Prefer origin's HEAD reference when a remote exists
	output, err := executor.Output(ctx, repoPath, "git", "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		ref := strings.TrimSpace(string(output))
		if strings.HasPrefix(ref, "refs/remotes/origin/") {
			return strings.TrimPrefix(ref, "refs/remotes/origin/")
		}
	}

	if _, _, err := executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "main"); err == nil {
		return "main"
	}
	if _, _, err := executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", "master"); err == nil {
		return "master"
	}
	return "main"
}

// FetchOrigin fetches the latest changes from origin. Returns nil if there
// is no remote (local-only repo) or the fetch fails; offline usage must not
// block session creation.
func FetchOrigin(repoPath string) error {
	ctx := context.Background()

	if _, _, err := executor.Run(ctx, repoPath, "git", "remote", "get-url", "origin"); err != nil {
		logger.Debug("Worktree: no origin remote, skipping fetch")
		return nil
	}

	output, err := executor.CombinedOutput(ctx, repoPath, "git", "fetch", "origin")
	if err != nil {
		logger.Warn("Worktree: fetch from origin failed: %s", string(output))
		return nil
	}
	return nil
}

// Worktree describes a materialized worktree for a new session.
type Worktree struct {
	ID         string
	Path       string
	Branch     string
	BaseBranch string
}

// Materialize creates a git worktree for a new session. If customBranch is
// empty a branch named "<prefix>corral-<UUID>" is created. The worktree is
// placed in a sibling directory of the repo named worktreeDirName.
func Materialize(repoPath, customBranch, branchPrefix, worktreeDirName string) (*Worktree, error) {
	startTime := time.Now()

	if err := ValidateBranchName(customBranch); err != nil {
		return nil, err
	}

	id := uuid.New().String()

	var branch string
	if customBranch != "" {
		branch = branchPrefix + customBranch
	} else {
		branch = branchPrefix + fmt.Sprintf("corral-%s", id)
	}

	worktreePath := filepath.Join(filepath.Dir(repoPath), worktreeDirName, id)

	FetchOrigin(repoPath)
	baseBranch := GetDefaultBranch(repoPath)
	startPoint := fmt.Sprintf("origin/%s", baseBranch)
	if _, _, err := executor.Run(context.Background(), repoPath, "git", "rev-parse", "--verify", startPoint); err != nil {
		// Local-only repo, branch from HEAD instead
		startPoint = "HEAD"
	}

	logger.Info("Worktree: creating branch=%s path=%s from=%s", branch, worktreePath, startPoint)
	output, err := executor.CombinedOutput(context.Background(), repoPath, "git", "worktree", "add", "-b", branch, worktreePath, startPoint)
	if err != nil {
		logger.Error("Worktree: creation failed after %v: %s", time.Since(startTime), string(output))
		return nil, fmt.Errorf("failed to create worktree: %s: %w", string(output), err)
	}
	logger.Debug("Worktree: created in %v", time.Since(startTime))

	return &Worktree{
		ID:         id,
		Path:       worktreePath,
		Branch:     branch,
		BaseBranch: baseBranch,
	}, nil
}

// Remove deletes a session's worktree and branch. The worktree removal is
// forced; branch deletion is best-effort since the worktree is already gone.
func Remove(repoPath, worktreePath, branch string) error {
	ctx := context.Background()

	output, err := executor.CombinedOutput(ctx, repoPath, "git", "worktree", "remove", worktreePath, "--force")
	if err != nil {
		return fmt.Errorf("failed to remove worktree: %s: %w", string(output), err)
	}

	if output, err := executor.CombinedOutput(ctx, repoPath, "git", "worktree", "prune"); err != nil {
		logger.Warn("Worktree: prune failed (best-effort): %s - %v", string(output), err)
	}

	if branch != "" {
		if output, err := executor.CombinedOutput(ctx, repoPath, "git", "branch", "-D", branch); err != nil {
			logger.Warn("Worktree: branch delete failed (may already be gone): %s", string(output))
		}
	}
	return nil
}

// Orphan represents a worktree directory with no matching session.
type Orphan struct {
	Path     string
	RepoPath string
	ID       string
}

// FindOrphans scans a repo's worktree directory for entries whose ids are
// not in knownIDs.
func FindOrphans(repoPath, worktreeDirName string, knownIDs map[string]bool) ([]Orphan, error) {
	worktreesDir := filepath.Join(filepath.Dir(repoPath), worktreeDirName)
	entries, err := os.ReadDir(worktreesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var orphans []Orphan
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if !knownIDs[id] {
			orphans = append(orphans, Orphan{
				Path:     filepath.Join(worktreesDir, id),
				RepoPath: repoPath,
				ID:       id,
			})
		}
	}
	return orphans, nil
}

// PruneOrphans removes orphaned worktrees, falling back to direct removal
// when git refuses.
func PruneOrphans(orphans []Orphan) int {
	ctx := context.Background()
	pruned := 0
	for _, orphan := range orphans {
		logger.Info("Worktree: pruning orphan %s", orphan.Path)

		if _, _, err := executor.Run(ctx, orphan.RepoPath, "git", "worktree", "remove", orphan.Path, "--force"); err != nil {
			if err := os.RemoveAll(orphan.Path); err != nil {
				logger.Error("Worktree: failed to remove orphan %s: %v", orphan.Path, err)
				continue
			}
		}
		executor.Run(ctx, orphan.RepoPath, "git", "worktree", "prune")
		executor.Run(ctx, orphan.RepoPath, "git", "branch", "-D", fmt.Sprintf("corral-%s", orphan.ID))
		pruned++
	}
	return pruned
}
