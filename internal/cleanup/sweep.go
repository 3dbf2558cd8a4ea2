// Package cleanup removes the git resources jobs leave behind: worktrees,
// local branches and pushed branches.
package cleanup

import (
	"context"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
)

// Resources removes per-job git resources. workspace.Manager implements it.
type Resources interface {
	Remove(ctx context.Context, jobID int, force bool) domain.CleanupOutcome
	Release(ctx context.Context, jobID int) domain.CleanupOutcome
	DeleteBranch(ctx context.Context, jobID int) domain.CleanupOutcome
	DeleteRemoteBranch(ctx context.Context, jobID int) domain.CleanupOutcome
	Prune(ctx context.Context) domain.CleanupOutcome
}

// Report collects the outcome of a sweep
type Report struct {
	Tracked        []int
	Worktrees      map[int]domain.CleanupOutcome
	LocalBranches  map[int]domain.CleanupOutcome
	RemoteBranches map[int]domain.CleanupOutcome
	Forced         []int
	Prune          domain.CleanupOutcome
	// Leftover lists jobs whose last workspace was never released by its
	// attempt
	Leftover       []int
}

// Failure is one resource that could not be removed
type Failure struct {
	JobID  int
	Detail string
}

func newReport(ids []int) *Report {
	return &Report{
		Tracked:        ids,
		Worktrees:      make(map[int]domain.CleanupOutcome),
		LocalBranches:  make(map[int]domain.CleanupOutcome),
		RemoteBranches: make(map[int]domain.CleanupOutcome),
		Prune:          domain.CleanupOutcome{OK: true},
	}
}

// Sweep removes the resources of every job tracked in state, whether or
// not its workspace was already released. It runs on a context that is
// not cancelled by the interrupt.
func Sweep(ctx context.Context, state *runstate.State, res Resources, con *console.Console) *Report {
	if con == nil {
		con = console.Discard()
	}
	leftover := state.Active()
	for _, id := range leftover {
		path, _ := state.WorkspacePath(id)
		con.Debugf("cleanup", "#%d workspace still present: %s", id, path)
	}

	report := Clean(context.WithoutCancel(ctx), state.Tracked(), res, con)
	report.Leftover = leftover
	return report
}

// Clean removes the worktree, local branch and remote branch of each id,
// then prunes stale worktree entries once
func Clean(ctx context.Context, ids []int, res Resources, con *console.Console) *Report {
	if con == nil {
		con = console.Discard()
	}
	report := newReport(ids)
	if len(ids) == 0 {
		return report
	}

	for _, id := range ids {
		wt := res.Release(ctx, id)
		report.Worktrees[id] = wt
		if wt.Forced {
			report.Forced = append(report.Forced, id)
		}
		con.Debugf("cleanup", "#%d worktree: %s", id, wt.Detail)

		report.LocalBranches[id] = res.DeleteBranch(ctx, id)
		report.RemoteBranches[id] = res.DeleteRemoteBranch(ctx, id)
	}

	report.Prune = res.Prune(ctx)
	return report
}

// WorktreeFailures returns failed worktree removals, ascending by id
func (r *Report) WorktreeFailures() []Failure { return failures(r.Tracked, r.Worktrees) }

// LocalBranchFailures returns failed local branch deletions
func (r *Report) LocalBranchFailures() []Failure { return failures(r.Tracked, r.LocalBranches) }

// RemoteBranchFailures returns failed remote branch deletions
func (r *Report) RemoteBranchFailures() []Failure { return failures(r.Tracked, r.RemoteBranches) }

// FailureCount counts every failed step, prune included
func (r *Report) FailureCount() int {
	n := len(r.WorktreeFailures()) + len(r.LocalBranchFailures()) + len(r.RemoteBranchFailures())
	if !r.Prune.OK {
		n++
	}
	return n
}

func failures(ids []int, outcomes map[int]domain.CleanupOutcome) []Failure {
	var out []Failure
	for _, id := range ids {
		if o, ok := outcomes[id]; ok && !o.OK {
			out = append(out, Failure{JobID: id, Detail: o.Detail})
		}
	}
	return out
}

func countOK(outcomes map[int]domain.CleanupOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK {
			n++
		}
	}
	return n
}
