// Package prbot finds, inspects and merges the pull requests jobs produce,
// using the gh CLI.
package prbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/proc"
)

// MergeMethod selects how gh merges a pull request
type MergeMethod string

const (
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
	MergeCommit MergeMethod = "merge"
)

// ParseMergeMethod validates a configured merge method. Empty selects squash.
func ParseMergeMethod(s string) (MergeMethod, error) {
	switch m := MergeMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MergeSquash, nil
	case MergeSquash, MergeRebase, MergeCommit:
		return m, nil
	default:
		return "", fmt.Errorf("unknown merge method %q (want squash, rebase or merge)", s)
	}
}

// PRBot handles pull request lookup and merging
type PRBot struct {
	runner  proc.Runner
	repoDir string
	repo    string // owner/name, empty for the repo of repoDir
	method  MergeMethod
}

// NewPRBot creates a new PRBot
func NewPRBot(runner proc.Runner, repoDir, repo string) *PRBot {
	return &PRBot{runner: runner, repoDir: repoDir, repo: repo, method: MergeSquash}
}

// SetMergeMethod changes how pull requests are merged
func (p *PRBot) SetMergeMethod(m MergeMethod) {
	p.method = m
}

func (p *PRBot) gh(ctx context.Context, args ...string) proc.Result {
	if p.repo != "" {
		args = append(args, "--repo", p.repo)
	}
	return p.runner.Run(ctx, proc.Command{Name: "gh", Args: args, Dir: p.repoDir})
}

// FindPR returns the number of the open pull request whose head is the
// job's branch, or 0 when there is none
func (p *PRBot) FindPR(ctx context.Context, jobID int) (int, error) {
	res := p.gh(ctx, "pr", "list", "--head", domain.BranchName(jobID), "--json", "number", "-q", ".[0].number")
	if !res.OK() {
		return 0, fmt.Errorf("gh pr list: %s", res.Detail())
	}
	return parsePRNumber(res.Stdout), nil
}

func parsePRNumber(out string) int {
	raw := strings.TrimSpace(out)
	if raw == "" || raw == "null" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// MergePR merges a pull request and deletes its branch
func (p *PRBot) MergePR(ctx context.Context, prNumber int) error {
	res := p.gh(ctx, "pr", "merge", strconv.Itoa(prNumber), "--"+string(p.method), "--delete-branch")
	if !res.OK() {
		return fmt.Errorf("gh pr merge %d: %s", prNumber, res.Detail())
	}
	return nil
}

// IssueTitle looks up the title of an issue. It returns "" when the lookup
// fails.
func (p *PRBot) IssueTitle(ctx context.Context, jobID int) string {
	res := p.gh(ctx, "issue", "view", strconv.Itoa(jobID), "--json", "title", "-q", ".title")
	if !res.OK() {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

// IsMerged reports whether a merged pull request exists for the job's
// branch. known is false when gh could not answer.
func (p *PRBot) IsMerged(ctx context.Context, jobID int) (merged, known bool, detail string) {
	res := p.gh(ctx, "pr", "list", "--head", domain.BranchName(jobID), "--state", "merged", "--json", "number", "-q", ".[0].number")
	if !res.OK() {
		return false, false, res.Detail()
	}
	return parsePRNumber(res.Stdout) > 0, true, ""
}

// GetDiff gets the diff for a PR
func (p *PRBot) GetDiff(ctx context.Context, prNumber int) (string, error) {
	res := p.gh(ctx, "pr", "diff", strconv.Itoa(prNumber))
	if !res.OK() {
		return "", fmt.Errorf("gh pr diff %d: %s", prNumber, res.Detail())
	}
	return res.Stdout, nil
}
