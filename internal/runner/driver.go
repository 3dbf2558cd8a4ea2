// Package runner drives batches through a bounded worker pool, one batch
// at a time.
package runner

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/scheduler"
)

const (
	// DefaultPollInterval bounds how long the driver sleeps between
	// scheduling passes
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultGrace is how long in-flight jobs get after an interrupt
	DefaultGrace = 10 * time.Second
)

// JobExecutor runs one job to a terminal result
type JobExecutor interface {
	Execute(job *domain.Job, idx, total int) domain.JobResult
}

// Options configure the driver
type Options struct {
	// Workers overrides the computed pool size when > 0
	Workers      int
	PollInterval time.Duration
	Grace        time.Duration
}

// BatchSummary describes how a batch went
type BatchSummary struct {
	Priority       domain.Priority
	Total          int
	Workers        int
	Completed      int
	PeakInProgress int
	Interrupted    bool
}

// Driver runs the jobs of one batch concurrently, never starting a job
// before its in-batch dependencies completed
type Driver struct {
	exec  JobExecutor
	state *runstate.State
	con   *console.Console
	opts  Options

	started atomic.Int64 // jobs started across all batches, for [n/total]
	total   int
}

// NewDriver creates a Driver. total is the number of jobs in the whole run.
func NewDriver(exec JobExecutor, state *runstate.State, con *console.Console, total int, opts Options) *Driver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if con == nil {
		con = console.Discard()
	}
	return &Driver{exec: exec, state: state, con: con, opts: opts, total: total}
}

// RunBatch executes batch and records every terminal result in the run
// state. It returns once the batch is done, or after an interrupt once
// in-flight jobs finished or the grace period ran out.
func (d *Driver) RunBatch(batch domain.Batch, jobs map[int]*domain.Job) BatchSummary {
	sched := scheduler.New(batch, jobs)
	workers := scheduler.BatchWorkerCount(batch, jobs, d.opts.Workers)
	summary := BatchSummary{Priority: batch.Priority, Total: len(batch.JobIDs), Workers: workers}

	d.con.Printf("%s batch (%d jobs, workers=%d)", batch.Priority.Label(), len(batch.JobIDs), workers)

	sem := semaphore.NewWeighted(int64(workers))
	var g errgroup.Group
	done := make(chan domain.JobResult, len(batch.JobIDs))
	outstanding := 0

	handle := func(res domain.JobResult) {
		outstanding--
		if res.Status == domain.StatusCompleted {
			summary.Completed++
		}
		d.state.Record(res)
	}

	start := func(id int) bool {
		if !sem.TryAcquire(1) {
			return false
		}
		if !sched.MarkStarted(id) {
			sem.Release(1)
			return true
		}
		if n := sched.Counts().InProgress; n > summary.PeakInProgress {
			summary.PeakInProgress = n
		}
		outstanding++
		job := lookupJob(jobs, id, batch.Priority)
		idx := int(d.started.Add(1))
		g.Go(func() error {
			res := d.exec.Execute(job, idx, d.total)
			// settle the scheduler before freeing the slot so in-progress
			// never exceeds the pool size
			if res.Status == domain.StatusCompleted {
				sched.MarkCompleted(id)
			} else {
				sched.MarkFailed(id)
			}
			sem.Release(1)
			done <- res
			return nil
		})
		return true
	}

	timer := time.NewTimer(d.opts.PollInterval)
	defer timer.Stop()

	for !d.state.Interrupted() {
		drain(done, handle)
		if sched.IsDone() {
			break
		}

		for _, id := range sched.Ready() {
			if !start(id) {
				break
			}
		}

		if blocked := sched.Blocked(); len(blocked) > 0 {
			d.skipBlocked(sched, blocked, jobs, batch.Priority)
			continue
		}

		if outstanding == 0 && len(sched.Ready()) == 0 {
			if id, ok := sched.CycleBreaker(); ok {
				d.con.Warnf("no job of the %s batch is ready (dependency cycle), starting #%d", batch.Priority.Label(), id)
				start(id)
				continue
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.opts.PollInterval)
		select {
		case res := <-done:
			handle(res)
		case <-timer.C:
		case <-d.state.Context().Done():
		}
	}

	if !d.state.Interrupted() {
		g.Wait()
		drain(done, handle)
		d.con.Printf("%s batch done (%d/%d)", batch.Priority.Label(), summary.Completed, summary.Total)
		return summary
	}

	summary.Interrupted = true
	d.awaitInFlight(sched, done, handle, jobs, batch.Priority, &outstanding)
	return summary
}

// awaitInFlight gives running jobs the grace period to observe the
// interrupt. Jobs still running afterwards are recorded as interrupted.
func (d *Driver) awaitInFlight(sched *scheduler.Scheduler, done <-chan domain.JobResult, handle func(domain.JobResult), jobs map[int]*domain.Job, prio domain.Priority, outstanding *int) {
	if *outstanding > 0 {
		d.con.Printf("Waiting up to %s for %d running job(s)...", d.opts.Grace, *outstanding)
	}

	deadline := time.NewTimer(d.opts.Grace)
	defer deadline.Stop()

wait:
	for *outstanding > 0 {
		select {
		case res := <-done:
			handle(res)
		case <-deadline.C:
			break wait
		}
	}

	for _, id := range sched.InProgress() {
		if d.state.HasResult(id) {
			continue
		}
		job := lookupJob(jobs, id, prio)
		d.state.Record(domain.JobResult{
			ID:       id,
			Priority: job.Priority,
			Title:    job.Title,
			Status:   domain.StatusInterrupted,
			Attempts: d.state.Attempts(id),
			Detail:   "abandoned after grace timeout",
		})
		d.con.Warnf("#%d still running after %s, abandoned", id, d.opts.Grace)
	}
}

// skipBlocked resolves jobs whose dependencies failed
func (d *Driver) skipBlocked(sched *scheduler.Scheduler, blocked []scheduler.Blocked, jobs map[int]*domain.Job, prio domain.Priority) {
	for _, b := range blocked {
		if !sched.MarkSkipped(b.ID) {
			continue
		}
		job := lookupJob(jobs, b.ID, prio)
		d.state.Record(domain.JobResult{
			ID:       b.ID,
			Priority: job.Priority,
			Title:    job.Title,
			Status:   domain.StatusSkipped,
			Detail:   fmt.Sprintf("dependency failed: #%d", b.Cause),
		})
		d.con.Printf("Skipping #%d: dependency #%d did not complete", b.ID, b.Cause)
	}
}

func drain(done <-chan domain.JobResult, handle func(domain.JobResult)) {
	for {
		select {
		case res := <-done:
			handle(res)
		default:
			return
		}
	}
}

func lookupJob(jobs map[int]*domain.Job, id int, prio domain.Priority) *domain.Job {
	if job, ok := jobs[id]; ok {
		return job
	}
	return &domain.Job{ID: id, Priority: prio}
}
