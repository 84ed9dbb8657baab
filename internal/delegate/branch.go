package delegate

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

// branchSlugMax bounds the description-derived part of a branch name.
const branchSlugMax = 30

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// IsGitRepo reports whether dir is inside a git working tree.
func IsGitRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// CurrentBranch returns the checked-out branch name.
func CurrentBranch(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// StashChanges stashes uncommitted changes before branching. Best effort:
// a failed stash never blocks the checkout, since checking out a new branch
// from HEAD is safe with a dirty tree anyway.
func StashChanges(dir, taskID string) {
	cmd := exec.Command("git", "stash", "push", "-u", "-m", "dev-orch: before "+taskID)
	cmd.Dir = dir
	cmd.Run() // Ignore error - nothing to stash, or stash unsupported
}

// CreateBranch creates and checks out a new branch from the current HEAD.
func CreateBranch(dir, name string) error {
	cmd := exec.Command("git", "checkout", "-b", name)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout -b %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// CommitCount returns the number of commits on branch that are not on base.
func CommitCount(dir, base, branch string) int {
	cmd := exec.Command("git", "rev-list", "--count", base+".."+branch)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0
	}
	return n
}

// FilesChanged returns how many files differ between base and branch.
func FilesChanged(dir, base, branch string) int {
	cmd := exec.Command("git", "diff", "--name-only", base+".."+branch)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "\n"))
}

// BranchSlug derives the branch-name fragment from a task description:
// lower-cased, runs of non-alphanumerics collapsed to single hyphens,
// truncated to 30 characters.
func BranchSlug(description string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(description), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > branchSlugMax {
		slug = strings.Trim(slug[:branchSlugMax], "-")
	}
	if slug == "" {
		slug = "task"
	}
	return slug
}

// BranchName builds the full isolation branch name for a task.
func BranchName(aiName, description string, dispatched time.Time) string {
	return fmt.Sprintf("delegate/%s/%s-%s", aiName, BranchSlug(description), dispatched.Format(domain.TaskIDTimeFormat))
}
