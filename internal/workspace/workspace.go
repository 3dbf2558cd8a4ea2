// Package workspace manages one git worktree per job, on branch issue-<id>.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/proc"
)

// ErrGitNotFound is returned when the git executable is missing. Runs
// cannot continue without it.
var ErrGitNotFound = errors.New("git executable not found")

// DefaultRemote is the remote branches are pushed to
const DefaultRemote = "origin"

// Entry is a job worktree found on disk
type Entry struct {
	JobID  int
	Path   string
	Branch string
}

// Manager handles git worktree operations for jobs
type Manager struct {
	runner      proc.Runner
	repoDir     string
	worktreeDir string
	remote      string
}

// NewManager creates a Manager. An empty worktreeDir selects
// DefaultWorktreeDir(repoDir).
func NewManager(runner proc.Runner, repoDir, worktreeDir string) *Manager {
	if worktreeDir == "" {
		worktreeDir = DefaultWorktreeDir(repoDir)
	}
	return &Manager{
		runner:      runner,
		repoDir:     repoDir,
		worktreeDir: worktreeDir,
		remote:      DefaultRemote,
	}
}

// DefaultWorktreeDir places worktrees next to the repository, e.g.
// /src/app -> /src/app-worktrees
func DefaultWorktreeDir(repoDir string) string {
	clean := filepath.Clean(repoDir)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+"-worktrees")
}

// Path returns where the worktree for jobID lives
func (m *Manager) Path(jobID int) string {
	return filepath.Join(m.worktreeDir, domain.BranchName(jobID))
}

func (m *Manager) git(ctx context.Context, args ...string) proc.Result {
	return m.runner.Run(ctx, proc.Command{Name: "git", Args: args, Dir: m.repoDir})
}

// CheckGit verifies that git can be executed
func (m *Manager) CheckGit(ctx context.Context) error {
	res := m.git(ctx, "--version")
	if res.NotFound() {
		return ErrGitNotFound
	}
	if !res.OK() {
		return fmt.Errorf("git --version: %s", res.Detail())
	}
	return nil
}

// Create creates the worktree and branch for jobID from the remote default
// branch, falling back to HEAD when no remote exists. If the branch is left
// over from an earlier attempt it is checked out as is.
func (m *Manager) Create(ctx context.Context, jobID int) (string, error) {
	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return "", fmt.Errorf("creating worktree dir: %w", err)
	}

	wtPath := m.Path(jobID)
	branch := domain.BranchName(jobID)

	if existing, ok := m.registered(ctx, jobID); ok {
		return existing, nil
	}
	if _, err := os.Stat(wtPath); err == nil {
		// leftover directory git no longer knows about
		m.git(ctx, "worktree", "prune")
		if err := os.RemoveAll(wtPath); err != nil {
			return "", fmt.Errorf("removing stale worktree dir: %w", err)
		}
	}

	mainBranch := m.defaultBranch(ctx)
	if res := m.git(ctx, "fetch", m.remote, mainBranch); res.NotFound() {
		return "", ErrGitNotFound
	}

	base := m.remote + "/" + mainBranch
	if !m.git(ctx, "rev-parse", "--verify", "--quiet", base).OK() {
		base = "HEAD"
	}

	res := m.git(ctx, "worktree", "add", "-b", branch, wtPath, base)
	if res.NotFound() {
		return "", ErrGitNotFound
	}
	if res.OK() {
		return wtPath, nil
	}

	// branch already exists
	retry := m.git(ctx, "worktree", "add", wtPath, branch)
	if !retry.OK() {
		return "", fmt.Errorf("git worktree add: %s", retry.Detail())
	}
	return wtPath, nil
}

func (m *Manager) defaultBranch(ctx context.Context) string {
	res := m.git(ctx, "symbolic-ref", "refs/remotes/"+m.remote+"/HEAD")
	if res.OK() {
		ref := strings.TrimSpace(res.Stdout)
		if i := strings.LastIndex(ref, "/"); i >= 0 && i < len(ref)-1 {
			return ref[i+1:]
		}
	}
	return "main"
}

// DefaultBranchRef returns the remote-tracking ref of the default branch,
// e.g. origin/main
func (m *Manager) DefaultBranchRef(ctx context.Context) string {
	return m.remote + "/" + m.defaultBranch(ctx)
}

// Locate returns the worktree path for jobID if git knows about one or the
// expected directory exists
func (m *Manager) Locate(ctx context.Context, jobID int) (string, bool) {
	if p, ok := m.registered(ctx, jobID); ok {
		return p, true
	}
	if _, err := os.Stat(m.Path(jobID)); err == nil {
		return m.Path(jobID), true
	}
	return "", false
}

func (m *Manager) registered(ctx context.Context, jobID int) (string, bool) {
	entries, err := m.List(ctx)
	if err != nil {
		return "", false
	}
	branch := domain.BranchName(jobID)
	for _, e := range entries {
		if e.Branch == branch {
			return e.Path, true
		}
	}
	return "", false
}

// List returns all worktrees on an issue-<id> branch
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	res := m.git(ctx, "worktree", "list", "--porcelain")
	if res.NotFound() {
		return nil, ErrGitNotFound
	}
	if !res.OK() {
		return nil, fmt.Errorf("git worktree list: %s", res.Detail())
	}
	return parseWorktreeList(res.Stdout), nil
}

func parseWorktreeList(out string) []Entry {
	var entries []Entry
	var path string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			branch := strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			if id, ok := JobIDFromBranch(branch); ok && path != "" {
				entries = append(entries, Entry{JobID: id, Path: path, Branch: branch})
			}
		case line == "":
			path = ""
		}
	}
	return entries
}

// JobIDFromBranch parses issue-<id>, optionally prefixed with a remote
func JobIDFromBranch(branch string) (int, bool) {
	branch = strings.TrimSpace(branch)
	if i := strings.LastIndex(branch, "/"); i >= 0 {
		branch = branch[i+1:]
	}
	rest, ok := strings.CutPrefix(branch, "issue-")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Remove removes the worktree of jobID. A worktree that is already gone
// counts as removed.
func (m *Manager) Remove(ctx context.Context, jobID int, force bool) domain.CleanupOutcome {
	wtPath, ok := m.registered(ctx, jobID)
	if !ok {
		return m.removeStale(jobID, force)
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, wtPath)

	res := m.git(ctx, args...)
	if res.OK() {
		return domain.CleanupOutcome{OK: true, Detail: "removed", Forced: force}
	}
	if alreadyAbsent(res.Output(), "is not a working tree", "not found", "does not exist") {
		return domain.CleanupOutcome{OK: true, Detail: "not found", Forced: force}
	}
	return domain.CleanupOutcome{Detail: res.Detail(), Forced: force}
}

// removeStale deletes a worktree directory git does not track, which only
// a forced removal does
func (m *Manager) removeStale(jobID int, force bool) domain.CleanupOutcome {
	stale := m.Path(jobID)
	if _, err := os.Stat(stale); err != nil {
		return domain.CleanupOutcome{OK: true, Detail: "not found", Forced: force}
	}
	if !force {
		return domain.CleanupOutcome{Detail: "untracked worktree directory " + stale}
	}
	if err := os.RemoveAll(stale); err != nil {
		return domain.CleanupOutcome{Detail: err.Error(), Forced: true}
	}
	return domain.CleanupOutcome{OK: true, Detail: "removed untracked directory", Forced: true}
}

// Release removes the worktree of jobID, retrying with --force if the
// normal removal fails
func (m *Manager) Release(ctx context.Context, jobID int) domain.CleanupOutcome {
	return ReleaseWithFallback(ctx,
		func(ctx context.Context) domain.CleanupOutcome { return m.Remove(ctx, jobID, false) },
		func(ctx context.Context) domain.CleanupOutcome { return m.Remove(ctx, jobID, true) },
	)
}

// DeleteBranch deletes the local branch of jobID
func (m *Manager) DeleteBranch(ctx context.Context, jobID int) domain.CleanupOutcome {
	res := m.git(ctx, "branch", "-D", domain.BranchName(jobID))
	if res.OK() {
		return domain.CleanupOutcome{OK: true, Detail: "deleted"}
	}
	out := strings.ToLower(res.Output())
	if strings.Contains(out, "not found") && strings.Contains(out, "branch") {
		return domain.CleanupOutcome{OK: true, Detail: "not found"}
	}
	return domain.CleanupOutcome{Detail: res.Detail()}
}

// DeleteRemoteBranch deletes the pushed branch of jobID
func (m *Manager) DeleteRemoteBranch(ctx context.Context, jobID int) domain.CleanupOutcome {
	res := m.git(ctx, "push", m.remote, "--delete", domain.BranchName(jobID))
	if res.OK() {
		return domain.CleanupOutcome{OK: true, Detail: "deleted"}
	}
	if alreadyAbsent(res.Output(), "remote ref does not exist") {
		return domain.CleanupOutcome{OK: true, Detail: "not found"}
	}
	return domain.CleanupOutcome{Detail: res.Detail()}
}

// Prune drops administrative entries of worktrees that no longer exist
func (m *Manager) Prune(ctx context.Context) domain.CleanupOutcome {
	res := m.git(ctx, "worktree", "prune")
	if res.OK() {
		return domain.CleanupOutcome{OK: true, Detail: "pruned"}
	}
	return domain.CleanupOutcome{Detail: res.Detail()}
}

// LocalBranches returns job ids with a local issue-<id> branch
func (m *Manager) LocalBranches(ctx context.Context) ([]int, error) {
	res := m.git(ctx, "branch", "--format=%(refname:short)", "--list", "issue-*")
	if !res.OK() {
		return nil, fmt.Errorf("git branch --list: %s", res.Detail())
	}
	return idsFromLines(res.Stdout), nil
}

// RemoteBranches returns job ids with a remote issue-<id> branch
func (m *Manager) RemoteBranches(ctx context.Context) ([]int, error) {
	res := m.git(ctx, "branch", "-r", "--format=%(refname:short)", "--list", m.remote+"/issue-*")
	if !res.OK() {
		return nil, fmt.Errorf("git branch -r --list: %s", res.Detail())
	}
	return idsFromLines(res.Stdout), nil
}

// MergedBranches returns job ids whose local branch is merged into ref
func (m *Manager) MergedBranches(ctx context.Context, ref string) ([]int, error) {
	res := m.git(ctx, "branch", "--format=%(refname:short)", "--merged", ref)
	if !res.OK() {
		return nil, fmt.Errorf("git branch --merged %s: %s", ref, res.Detail())
	}
	return idsFromLines(res.Stdout), nil
}

func idsFromLines(out string) []int {
	var ids []int
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "* "))
		if id, ok := JobIDFromBranch(line); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func alreadyAbsent(output string, markers ...string) bool {
	out := strings.ToLower(output)
	for _, m := range markers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}
