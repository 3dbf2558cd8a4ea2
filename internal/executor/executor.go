// Package executor runs a single job through its attempts: workspace,
// agent, pull request review and merge, with retries and cleanup.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
)

// Workspaces creates and removes per-job working copies
type Workspaces interface {
	Create(ctx context.Context, jobID int) (string, error)
	Locate(ctx context.Context, jobID int) (string, bool)
	Remove(ctx context.Context, jobID int, force bool) domain.CleanupOutcome
	// Release removes the workspace, retrying with force on failure
	Release(ctx context.Context, jobID int) domain.CleanupOutcome
	DeleteRemoteBranch(ctx context.Context, jobID int) domain.CleanupOutcome
}

// Worker does the actual implementation work for a job
type Worker interface {
	Implement(ctx context.Context, job *domain.Job, dir string) WorkResult
}

// Artifacts finds, reviews and integrates what a worker produced. Find
// returns 0 when the job produced nothing.
type Artifacts interface {
	Find(ctx context.Context, jobID int) (int, error)
	Review(ctx context.Context, jobID, artifact int, dir string) WorkResult
	Integrate(ctx context.Context, artifact int) error
}

// TitleLookup fetches a missing job title; "" means unknown
type TitleLookup func(ctx context.Context, jobID int) string

// Options tune the attempt loop
type Options struct {
	MaxRetries   int
	ForceCleanup bool
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeDone
	outcomeInterrupted
)

// Executor runs jobs. One Executor is shared by all workers of a run; each
// Execute call owns its job's workspace exclusively.
type Executor struct {
	ws        Workspaces
	worker    Worker
	artifacts Artifacts
	state     *runstate.State
	con       *console.Console
	opts      Options
	titles    TitleLookup
}

// New creates an Executor
func New(ws Workspaces, worker Worker, artifacts Artifacts, state *runstate.State, con *console.Console, opts Options) *Executor {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if con == nil {
		con = console.Discard()
	}
	return &Executor{
		ws:        ws,
		worker:    worker,
		artifacts: artifacts,
		state:     state,
		con:       con,
		opts:      opts,
	}
}

// SetTitleLookup sets how missing titles are resolved
func (e *Executor) SetTitleLookup(fn TitleLookup) {
	e.titles = fn
}

// MaxAttempts returns 1 + the retry budget
func (e *Executor) MaxAttempts() int {
	return 1 + e.opts.MaxRetries
}

// Execute runs job to a terminal result. idx and total only feed the
// progress line.
func (e *Executor) Execute(job *domain.Job, idx, total int) domain.JobResult {
	ctx := e.state.Context()
	start := time.Now()

	work := *job
	if work.Title == "" && e.titles != nil && !e.state.Interrupted() {
		work.Title = e.titles(ctx, job.ID)
	}
	title := work.Title
	if work.Title == "" {
		work.Title = "(title unavailable)"
	}

	e.con.Printf("[%d/%d] Processing #%d: %s (%s)", idx, total, job.ID, work.Title, job.Priority.Label())

	res := domain.JobResult{
		ID:       job.ID,
		Priority: job.Priority,
		Title:    title,
		Status:   domain.StatusFailed,
	}

	maxAttempts := e.MaxAttempts()
	var trail []string
	var lastErr string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if e.state.Interrupted() {
			res.Status = domain.StatusInterrupted
			break
		}
		res.Attempts = attempt
		e.state.SetAttempt(job.ID, attempt)

		if attempt > 1 {
			e.con.Printf("Retrying #%d (%d/%d)...", job.ID, attempt-1, e.opts.MaxRetries)
			e.prepareRetry(job.ID)
		}

		result, detail := e.attempt(&work, &res)
		if result == outcomeDone {
			res.Status = domain.StatusCompleted
			break
		}
		if result == outcomeInterrupted {
			res.Status = domain.StatusInterrupted
			break
		}
		lastErr = detail
		trail = append(trail, fmt.Sprintf("attempt %d: %s", attempt, detail))
	}

	res.Elapsed = time.Since(start)
	res.Detail = strings.TrimSpace(strings.Join(trail, "\n"))

	switch res.Status {
	case domain.StatusCompleted:
		merged := ""
		if res.PRNumber > 0 {
			merged = fmt.Sprintf(", PR #%d merged", res.PRNumber)
		}
		e.con.Printf("#%d completed%s (%s)", job.ID, merged, domain.FormatDuration(res.Elapsed))
	case domain.StatusFailed:
		if lastErr == "" {
			lastErr = "-"
		}
		e.con.Printf("#%d failed (attempt %d/%d): %s", job.ID, res.Attempts, maxAttempts, lastErr)
	case domain.StatusInterrupted:
		e.con.Printf("#%d interrupted", job.ID)
	}
	return res
}

// attempt runs one pass of the state machine. The workspace is released on
// every exit path.
func (e *Executor) attempt(job *domain.Job, res *domain.JobResult) (outcome, string) {
	ctx := e.state.Context()

	e.state.Track(job.ID, "")
	path, err := e.ws.Create(ctx, job.ID)
	if err != nil {
		e.state.Release(job.ID)
		if e.state.Interrupted() {
			return outcomeInterrupted, ""
		}
		return outcomeFailed, fmt.Sprintf("workspace: %v", err)
	}
	e.state.Track(job.ID, path)
	defer e.releaseAfterAttempt(job.ID)

	work := e.worker.Implement(ctx, job, path)
	if work.SessionID != "" {
		res.SessionID = work.SessionID
	}
	if e.state.Interrupted() {
		return outcomeInterrupted, ""
	}
	if !work.OK() {
		return outcomeFailed, work.Describe("worker")
	}

	artifact, err := e.artifacts.Find(ctx, job.ID)
	if err != nil {
		if e.state.Interrupted() {
			return outcomeInterrupted, ""
		}
		return outcomeFailed, fmt.Sprintf("artifact lookup: %v", err)
	}
	if artifact == 0 {
		res.PRNumber = 0
		return outcomeDone, ""
	}
	res.PRNumber = artifact

	review := e.artifacts.Review(ctx, job.ID, artifact, path)
	if e.state.Interrupted() {
		return outcomeInterrupted, ""
	}
	if !review.OK() {
		return outcomeFailed, review.Describe("review")
	}

	if err := e.artifacts.Integrate(ctx, artifact); err != nil {
		if e.state.Interrupted() {
			return outcomeInterrupted, ""
		}
		return outcomeFailed, err.Error()
	}
	return outcomeDone, ""
}

// releaseAfterAttempt removes the attempt's workspace. Forced removal is
// only used with ForceCleanup or after an interrupt; otherwise a failure is
// left to the final sweep.
func (e *Executor) releaseAfterAttempt(jobID int) {
	ctx := context.WithoutCancel(e.state.Context())

	var out domain.CleanupOutcome
	if e.opts.ForceCleanup || e.state.Interrupted() {
		out = e.ws.Release(ctx, jobID)
	} else {
		out = e.ws.Remove(ctx, jobID, false)
	}

	if out.OK {
		e.state.Release(jobID)
		return
	}
	e.con.Warnf("workspace cleanup failed: #%d: %s", jobID, out.Detail)
}

// prepareRetry removes whatever the previous attempt left behind. Failures
// are warnings and never block the retry.
func (e *Executor) prepareRetry(jobID int) {
	ctx := context.WithoutCancel(e.state.Context())

	if _, ok := e.ws.Locate(ctx, jobID); ok {
		if out := e.ws.Release(ctx, jobID); out.OK {
			e.state.Release(jobID)
		} else {
			e.con.Warnf("workspace cleanup failed: #%d: %s", jobID, out.Detail)
		}
	}

	if out := e.ws.DeleteRemoteBranch(ctx, jobID); !out.OK {
		e.con.Warnf("remote branch cleanup failed: #%d: %s", jobID, out.Detail)
	}
}
