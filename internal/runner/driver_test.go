package runner

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
)

// fakeExecutor runs jobs through fn and records start/finish order
type fakeExecutor struct {
	fn func(job *domain.Job) domain.JobStatus

	mu       sync.Mutex
	events   []string
	running  int
	peak     int
	finished map[int]bool
}

func (f *fakeExecutor) Execute(job *domain.Job, idx, total int) domain.JobResult {
	f.mu.Lock()
	f.events = append(f.events, "start "+strconv.Itoa(job.ID))
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.mu.Unlock()

	status := domain.StatusCompleted
	if f.fn != nil {
		status = f.fn(job)
	}

	f.mu.Lock()
	f.running--
	f.events = append(f.events, "end "+strconv.Itoa(job.ID))
	if f.finished == nil {
		f.finished = make(map[int]bool)
	}
	f.finished[job.ID] = true
	f.mu.Unlock()

	return domain.JobResult{ID: job.ID, Priority: job.Priority, Title: job.Title, Status: status, Attempts: 1}
}

func (f *fakeExecutor) index(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e == event {
			return i
		}
	}
	return -1
}

func makeJobs(prio domain.Priority, deps map[int][]int, ids ...int) (domain.Batch, map[int]*domain.Job) {
	jobs := make(map[int]*domain.Job)
	for _, id := range ids {
		jobs[id] = &domain.Job{ID: id, Priority: prio, Title: "job", Dependencies: deps[id]}
	}
	return domain.Batch{Priority: prio, JobIDs: ids}, jobs
}

func fastOptions() Options {
	return Options{PollInterval: 5 * time.Millisecond, Grace: 200 * time.Millisecond}
}

func resultsByID(state *runstate.State) map[int]domain.JobResult {
	out := make(map[int]domain.JobResult)
	for _, r := range state.Results() {
		out[r.ID] = r
	}
	return out
}

func TestRunBatch_DependencyOrder(t *testing.T) {
	batch, jobs := makeJobs(domain.PriorityP1, map[int][]int{2: {1}}, 1, 2, 3)
	exec := &fakeExecutor{fn: func(job *domain.Job) domain.JobStatus {
		time.Sleep(10 * time.Millisecond)
		return domain.StatusCompleted
	}}
	state := runstate.New(context.Background())
	defer state.Close()

	summary := NewDriver(exec, state, nil, 3, fastOptions()).RunBatch(batch, jobs)

	if summary.Completed != 3 || summary.Interrupted {
		t.Fatalf("summary = %+v", summary)
	}
	if exec.index("start 2") < exec.index("end 1") {
		t.Errorf("#2 started before #1 finished: %v", exec.events)
	}
	if len(state.Results()) != 3 {
		t.Errorf("results = %d, want 3", len(state.Results()))
	}
}

func TestRunBatch_SkipsTransitivelyBlocked(t *testing.T) {
	// 4 depends on 5 which depends on 6; 6 fails
	batch, jobs := makeJobs(domain.PriorityP2, map[int][]int{4: {5}, 5: {6}}, 4, 5, 6, 7)
	exec := &fakeExecutor{fn: func(job *domain.Job) domain.JobStatus {
		if job.ID == 6 {
			return domain.StatusFailed
		}
		return domain.StatusCompleted
	}}
	state := runstate.New(context.Background())
	defer state.Close()

	summary := NewDriver(exec, state, nil, 4, fastOptions()).RunBatch(batch, jobs)

	results := resultsByID(state)
	if results[6].Status != domain.StatusFailed {
		t.Errorf("#6 = %s, want failed", results[6].Status)
	}
	if results[5].Status != domain.StatusSkipped || results[5].Detail != "dependency failed: #6" {
		t.Errorf("#5 = %+v", results[5])
	}
	if results[4].Status != domain.StatusSkipped || results[4].Detail != "dependency failed: #5" {
		t.Errorf("#4 = %+v", results[4])
	}
	if results[7].Status != domain.StatusCompleted {
		t.Errorf("#7 = %s, want completed", results[7].Status)
	}
	if exec.finished[4] || exec.finished[5] {
		t.Error("skipped jobs must never run")
	}
	if summary.Completed != 1 {
		t.Errorf("Completed = %d, want 1", summary.Completed)
	}
}

func TestRunBatch_RespectsPoolSize(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6, 7, 8}
	batch, jobs := makeJobs(domain.PriorityP0, nil, ids...)
	exec := &fakeExecutor{fn: func(job *domain.Job) domain.JobStatus {
		time.Sleep(15 * time.Millisecond)
		return domain.StatusCompleted
	}}
	state := runstate.New(context.Background())
	defer state.Close()

	summary := NewDriver(exec, state, nil, len(ids), fastOptions()).RunBatch(batch, jobs)

	if summary.Workers != 4 {
		t.Errorf("Workers = %d, want 4", summary.Workers)
	}
	if exec.peak > summary.Workers || summary.PeakInProgress > summary.Workers {
		t.Errorf("peak = %d / %d, exceeds %d workers", exec.peak, summary.PeakInProgress, summary.Workers)
	}
	if summary.Completed != len(ids) {
		t.Errorf("Completed = %d", summary.Completed)
	}
}

func TestRunBatch_WorkerOverride(t *testing.T) {
	batch, jobs := makeJobs(domain.PriorityP0, nil, 1, 2, 3, 4)
	exec := &fakeExecutor{fn: func(job *domain.Job) domain.JobStatus {
		time.Sleep(5 * time.Millisecond)
		return domain.StatusCompleted
	}}
	state := runstate.New(context.Background())
	defer state.Close()

	opts := fastOptions()
	opts.Workers = 1
	summary := NewDriver(exec, state, nil, 4, opts).RunBatch(batch, jobs)

	if summary.Workers != 1 || exec.peak != 1 {
		t.Errorf("Workers = %d, peak = %d, want 1", summary.Workers, exec.peak)
	}
}

func TestRunBatch_CycleStillRuns(t *testing.T) {
	batch, jobs := makeJobs(domain.PriorityP1, map[int][]int{1: {2}, 2: {1}}, 1, 2)
	batch.Cyclic = true
	exec := &fakeExecutor{}
	state := runstate.New(context.Background())
	defer state.Close()

	done := make(chan BatchSummary, 1)
	go func() { done <- NewDriver(exec, state, nil, 2, fastOptions()).RunBatch(batch, jobs) }()

	select {
	case summary := <-done:
		if summary.Completed != 2 {
			t.Errorf("Completed = %d, want 2", summary.Completed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic batch never finished")
	}
	if exec.index("start 1") > exec.index("start 2") {
		t.Errorf("lowest id should start first: %v", exec.events)
	}
}

func TestRunBatch_CycleBreakerSkipsDownstreamJob(t *testing.T) {
	// 1 waits on the 2 <-> 3 cycle but is not part of it
	batch, jobs := makeJobs(domain.PriorityP1, map[int][]int{1: {2}, 2: {3}, 3: {2}}, 1, 2, 3)
	batch.Cyclic = true
	exec := &fakeExecutor{}
	state := runstate.New(context.Background())
	defer state.Close()

	done := make(chan BatchSummary, 1)
	go func() { done <- NewDriver(exec, state, nil, 3, fastOptions()).RunBatch(batch, jobs) }()

	select {
	case summary := <-done:
		if summary.Completed != 3 {
			t.Errorf("Completed = %d, want 3", summary.Completed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic batch never finished")
	}
	if exec.index("start 2") != 0 {
		t.Errorf("cycle member #2 should start first: %v", exec.events)
	}
	if exec.index("start 1") < exec.index("end 2") {
		t.Errorf("#1 started before its dependency #2 finished: %v", exec.events)
	}
}

func TestRunBatch_InterruptAbandonsAfterGrace(t *testing.T) {
	batch, jobs := makeJobs(domain.PriorityP0, nil, 1, 2)
	release := make(chan struct{})
	defer close(release)

	state := runstate.New(context.Background())
	defer state.Close()

	exec := &fakeExecutor{fn: func(job *domain.Job) domain.JobStatus {
		if job.ID == 1 {
			<-state.Context().Done()
			return domain.StatusInterrupted
		}
		state.SetAttempt(job.ID, 2)
		<-release // ignores the interrupt
		return domain.StatusCompleted
	}}

	go func() {
		time.Sleep(30 * time.Millisecond)
		state.Interrupt()
	}()

	summary := NewDriver(exec, state, nil, 2, fastOptions()).RunBatch(batch, jobs)

	if !summary.Interrupted {
		t.Error("summary should be interrupted")
	}
	results := resultsByID(state)
	if results[1].Status != domain.StatusInterrupted {
		t.Errorf("#1 = %+v", results[1])
	}
	if results[2].Status != domain.StatusInterrupted || results[2].Detail != "abandoned after grace timeout" {
		t.Errorf("#2 = %+v", results[2])
	}
	if results[2].Attempts != 2 {
		t.Errorf("#2 Attempts = %d, want the attempt it was abandoned in (2)", results[2].Attempts)
	}
}

func TestRun_StopsAfterInterruptedBatch(t *testing.T) {
	b1, jobs := makeJobs(domain.PriorityP0, nil, 1)
	b2, more := makeJobs(domain.PriorityP1, nil, 2)
	for id, j := range more {
		jobs[id] = j
	}

	state := runstate.New(context.Background())
	defer state.Close()
	exec := &fakeExecutor{fn: func(job *domain.Job) domain.JobStatus {
		state.Interrupt()
		return domain.StatusInterrupted
	}}

	summaries := NewDriver(exec, state, nil, 2, fastOptions()).Run([]domain.Batch{b1, b2}, jobs)

	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	if exec.finished[2] {
		t.Error("#2 should never start after the interrupt")
	}
	if state.HasResult(2) {
		t.Error("never-started jobs have no result")
	}
}

func TestRun_BatchesInPriorityOrder(t *testing.T) {
	b0, jobs := makeJobs(domain.PriorityP0, nil, 3)
	b3, more := makeJobs(domain.PriorityP3, nil, 1)
	for id, j := range more {
		jobs[id] = j
	}
	exec := &fakeExecutor{}
	state := runstate.New(context.Background())
	defer state.Close()

	summaries := NewDriver(exec, state, nil, 2, fastOptions()).Run([]domain.Batch{b0, {Priority: domain.PriorityP2}, b3}, jobs)

	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2 (empty batch skipped)", len(summaries))
	}
	if exec.index("end 3") > exec.index("start 1") {
		t.Errorf("P3 job started before P0 batch finished: %v", exec.events)
	}
}
