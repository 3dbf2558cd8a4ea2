package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/workspace"
)

// fakeWorkspaces records every call in order
type fakeWorkspaces struct {
	mu        sync.Mutex
	events    []string
	live      map[int]bool
	createErr error
	// failGraceful makes non-forced removal fail
	failGraceful bool
}

func newFakeWorkspaces() *fakeWorkspaces {
	return &fakeWorkspaces{live: make(map[int]bool)}
}

func (f *fakeWorkspaces) record(format string, args ...any) {
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

func (f *fakeWorkspaces) Create(_ context.Context, id int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %d", id)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.live[id] = true
	return fmt.Sprintf("/wt/issue-%d", id), nil
}

func (f *fakeWorkspaces) Locate(_ context.Context, id int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live[id] {
		return fmt.Sprintf("/wt/issue-%d", id), true
	}
	return "", false
}

func (f *fakeWorkspaces) Remove(_ context.Context, id int, force bool) domain.CleanupOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.record("force-remove %d", id)
	} else {
		f.record("remove %d", id)
		if f.failGraceful {
			return domain.CleanupOutcome{Detail: "busy"}
		}
	}
	delete(f.live, id)
	return domain.CleanupOutcome{OK: true, Forced: force}
}

func (f *fakeWorkspaces) Release(ctx context.Context, id int) domain.CleanupOutcome {
	return workspace.ReleaseWithFallback(ctx,
		func(ctx context.Context) domain.CleanupOutcome { return f.Remove(ctx, id, false) },
		func(ctx context.Context) domain.CleanupOutcome { return f.Remove(ctx, id, true) },
	)
}

func (f *fakeWorkspaces) DeleteRemoteBranch(_ context.Context, id int) domain.CleanupOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete-remote %d", id)
	return domain.CleanupOutcome{OK: true}
}

func (f *fakeWorkspaces) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// fakeWorker returns exit codes from a script; the last entry repeats
type fakeWorker struct {
	mu      sync.Mutex
	codes   []int
	calls   int
	session string
	onRun   func()
	lastJob domain.Job
}

func (w *fakeWorker) Implement(_ context.Context, job *domain.Job, _ string) WorkResult {
	w.mu.Lock()
	i := w.calls
	w.calls++
	w.lastJob = *job
	onRun := w.onRun
	w.mu.Unlock()

	if onRun != nil {
		onRun()
	}
	code := 0
	if len(w.codes) > 0 {
		if i >= len(w.codes) {
			i = len(w.codes) - 1
		}
		code = w.codes[i]
	}
	return WorkResult{ExitCode: code, SessionID: w.session}
}

type fakeArtifacts struct {
	pr           int
	findErr      error
	reviewCodes  []int
	reviews      int
	integrateErr []error
	integrations int
}

func (a *fakeArtifacts) Find(context.Context, int) (int, error) {
	return a.pr, a.findErr
}

func (a *fakeArtifacts) Review(context.Context, int, int, string) WorkResult {
	i := a.reviews
	a.reviews++
	if i < len(a.reviewCodes) {
		return WorkResult{ExitCode: a.reviewCodes[i]}
	}
	return WorkResult{}
}

func (a *fakeArtifacts) Integrate(context.Context, int) error {
	i := a.integrations
	a.integrations++
	if i < len(a.integrateErr) {
		return a.integrateErr[i]
	}
	return nil
}

func newTestExecutor(t *testing.T, ws *fakeWorkspaces, w *fakeWorker, a *fakeArtifacts, opts Options) (*Executor, *runstate.State) {
	t.Helper()
	state := runstate.New(context.Background())
	t.Cleanup(state.Close)
	if a == nil {
		a = &fakeArtifacts{}
	}
	return New(ws, w, a, state, nil, opts), state
}

func TestExecutor_CompletesWithoutArtifact(t *testing.T) {
	ws := newFakeWorkspaces()
	exec, state := newTestExecutor(t, ws, &fakeWorker{codes: []int{0}}, nil, Options{MaxRetries: 3})

	res := exec.Execute(&domain.Job{ID: 1, Priority: domain.PriorityP0, Title: "first"}, 1, 1)

	if res.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want completed", res.Status)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if res.PRNumber != 0 {
		t.Errorf("PRNumber = %d, want 0", res.PRNumber)
	}
	if want := []string{"create 1", "remove 1"}; !reflect.DeepEqual(ws.Events(), want) {
		t.Errorf("events = %v, want %v", ws.Events(), want)
	}
	if got := state.Tracked(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Tracked() = %v, want [1]", got)
	}
	if len(state.Active()) != 0 {
		t.Errorf("Active() = %v, want none after release", state.Active())
	}
}

func TestExecutor_RetryAfterWorkerFailure(t *testing.T) {
	ws := newFakeWorkspaces()
	exec, _ := newTestExecutor(t, ws, &fakeWorker{codes: []int{1, 0}}, nil, Options{MaxRetries: 1})

	res := exec.Execute(&domain.Job{ID: 3, Title: "retry me"}, 1, 1)

	if res.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want completed", res.Status)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if res.Retries() != 1 {
		t.Errorf("Retries() = %d, want 1", res.Retries())
	}

	// the first workspace is gone before the second is created
	want := []string{"create 3", "remove 3", "delete-remote 3", "create 3", "remove 3"}
	if got := ws.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if !strings.Contains(res.Detail, "attempt 1: worker exit=1") {
		t.Errorf("Detail = %q, want first attempt failure", res.Detail)
	}
}

func TestExecutor_PrepareRetryForcesLeftoverWorkspace(t *testing.T) {
	ws := newFakeWorkspaces()
	ws.failGraceful = true
	exec, _ := newTestExecutor(t, ws, &fakeWorker{codes: []int{1, 0}}, nil, Options{MaxRetries: 1})

	res := exec.Execute(&domain.Job{ID: 4, Title: "stuck"}, 1, 1)

	if res.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s, want completed", res.Status)
	}
	events := ws.Events()
	// graceful release after attempt 1 fails, the retry forces it
	want := []string{"create 4", "remove 4", "remove 4", "force-remove 4", "delete-remote 4", "create 4", "remove 4"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestExecutor_ExhaustsRetries(t *testing.T) {
	ws := newFakeWorkspaces()
	worker := &fakeWorker{codes: []int{2}}
	exec, _ := newTestExecutor(t, ws, worker, nil, Options{MaxRetries: 2})

	res := exec.Execute(&domain.Job{ID: 5}, 1, 1)

	if res.Status != domain.StatusFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
	if res.Attempts != 3 || res.Attempts > 1+2 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if worker.calls != 3 {
		t.Errorf("worker calls = %d, want 3", worker.calls)
	}
	lines := strings.Split(res.Detail, "\n")
	if len(lines) != 3 {
		t.Errorf("Detail has %d lines, want 3: %q", len(lines), res.Detail)
	}
}

func TestExecutor_ZeroRetries(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeWorkspaces(), &fakeWorker{codes: []int{1}}, nil, Options{MaxRetries: 0})

	res := exec.Execute(&domain.Job{ID: 6}, 1, 1)
	if res.Status != domain.StatusFailed || res.Attempts != 1 {
		t.Errorf("result = %+v, want failed after 1 attempt", res)
	}
}

func TestExecutor_ReviewGate(t *testing.T) {
	tests := []struct {
		name         string
		artifacts    *fakeArtifacts
		maxRetries   int
		wantStatus   domain.JobStatus
		wantAttempts int
		wantDetail   string
	}{
		{
			name:         "review and merge",
			artifacts:    &fakeArtifacts{pr: 42},
			wantStatus:   domain.StatusCompleted,
			wantAttempts: 1,
		},
		{
			name:         "review failure is retried",
			artifacts:    &fakeArtifacts{pr: 42, reviewCodes: []int{1, 0}},
			maxRetries:   1,
			wantStatus:   domain.StatusCompleted,
			wantAttempts: 2,
			wantDetail:   "attempt 1: review exit=1",
		},
		{
			name:         "review failure without retries",
			artifacts:    &fakeArtifacts{pr: 42, reviewCodes: []int{3}},
			wantStatus:   domain.StatusFailed,
			wantAttempts: 1,
			wantDetail:   "review exit=3",
		},
		{
			name:         "merge failure is retried",
			artifacts:    &fakeArtifacts{pr: 42, integrateErr: []error{errors.New("merge conflict")}},
			maxRetries:   1,
			wantStatus:   domain.StatusCompleted,
			wantAttempts: 2,
			wantDetail:   "attempt 1: merge conflict",
		},
		{
			name:         "lookup failure",
			artifacts:    &fakeArtifacts{findErr: errors.New("gh down")},
			wantStatus:   domain.StatusFailed,
			wantAttempts: 1,
			wantDetail:   "artifact lookup: gh down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _ := newTestExecutor(t, newFakeWorkspaces(), &fakeWorker{}, tt.artifacts, Options{MaxRetries: tt.maxRetries})

			res := exec.Execute(&domain.Job{ID: 7, Title: "gated"}, 1, 1)

			if res.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", res.Status, tt.wantStatus)
			}
			if res.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", res.Attempts, tt.wantAttempts)
			}
			if res.PRNumber != tt.artifacts.pr {
				t.Errorf("PRNumber = %d, want %d", res.PRNumber, tt.artifacts.pr)
			}
			if tt.wantDetail != "" && !strings.Contains(res.Detail, tt.wantDetail) {
				t.Errorf("Detail = %q, want %q", res.Detail, tt.wantDetail)
			}
		})
	}
}

func TestExecutor_WorkspaceCreateFailure(t *testing.T) {
	ws := newFakeWorkspaces()
	ws.createErr = errors.New("disk full")
	worker := &fakeWorker{}
	exec, state := newTestExecutor(t, ws, worker, nil, Options{MaxRetries: 1})

	res := exec.Execute(&domain.Job{ID: 8}, 1, 1)

	if res.Status != domain.StatusFailed || res.Attempts != 2 {
		t.Errorf("result = %+v, want failed after 2 attempts", res)
	}
	if worker.calls != 0 {
		t.Errorf("worker ran %d times without a workspace", worker.calls)
	}
	if !strings.Contains(res.Detail, "workspace: disk full") {
		t.Errorf("Detail = %q", res.Detail)
	}
	// still tracked so the final sweep looks for leftovers
	if got := state.Tracked(); !reflect.DeepEqual(got, []int{8}) {
		t.Errorf("Tracked() = %v, want [8]", got)
	}
}

func TestExecutor_Interrupted(t *testing.T) {
	ws := newFakeWorkspaces()
	ws.failGraceful = true
	worker := &fakeWorker{codes: []int{130}}
	exec, state := newTestExecutor(t, ws, worker, nil, Options{MaxRetries: 3})
	worker.onRun = state.Interrupt

	res := exec.Execute(&domain.Job{ID: 6, Title: "long job"}, 1, 1)

	if res.Status != domain.StatusInterrupted {
		t.Errorf("Status = %s, want interrupted", res.Status)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	// release is forced after an interrupt
	want := []string{"create 6", "remove 6", "force-remove 6"}
	if got := ws.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := state.Tracked(); !reflect.DeepEqual(got, []int{6}) {
		t.Errorf("Tracked() = %v, want [6]", got)
	}
}

func TestExecutor_InterruptedBeforeStart(t *testing.T) {
	ws := newFakeWorkspaces()
	exec, state := newTestExecutor(t, ws, &fakeWorker{}, nil, Options{})
	state.Interrupt()

	res := exec.Execute(&domain.Job{ID: 9}, 1, 1)

	if res.Status != domain.StatusInterrupted || res.Attempts != 0 {
		t.Errorf("result = %+v, want interrupted with no attempts", res)
	}
	if len(ws.Events()) != 0 {
		t.Errorf("events = %v, want none", ws.Events())
	}
}

func TestExecutor_ForceCleanup(t *testing.T) {
	ws := newFakeWorkspaces()
	ws.failGraceful = true
	exec, state := newTestExecutor(t, ws, &fakeWorker{}, nil, Options{ForceCleanup: true})

	res := exec.Execute(&domain.Job{ID: 2}, 1, 1)

	if res.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}
	if got := ws.Events(); got[len(got)-1] != "force-remove 2" {
		t.Errorf("events = %v, want forced release", got)
	}
	if len(state.Active()) != 0 {
		t.Errorf("Active() = %v, want none", state.Active())
	}
}

func TestExecutor_GracefulFailureLeftForSweep(t *testing.T) {
	ws := newFakeWorkspaces()
	ws.failGraceful = true
	exec, state := newTestExecutor(t, ws, &fakeWorker{}, nil, Options{})

	exec.Execute(&domain.Job{ID: 2}, 1, 1)

	if got := state.Active(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("Active() = %v, want [2]", got)
	}
}

func TestExecutor_TitleLookupAndSession(t *testing.T) {
	worker := &fakeWorker{session: "abc-123"}
	exec, _ := newTestExecutor(t, newFakeWorkspaces(), worker, nil, Options{})
	exec.SetTitleLookup(func(_ context.Context, id int) string {
		return fmt.Sprintf("looked up %d", id)
	})

	res := exec.Execute(&domain.Job{ID: 11}, 1, 1)

	if res.Title != "looked up 11" {
		t.Errorf("Title = %q", res.Title)
	}
	if worker.lastJob.Title != "looked up 11" {
		t.Errorf("worker saw title %q", worker.lastJob.Title)
	}
	if res.SessionID != "abc-123" {
		t.Errorf("SessionID = %q", res.SessionID)
	}
}

func TestExecutor_MissingTitle(t *testing.T) {
	worker := &fakeWorker{}
	exec, _ := newTestExecutor(t, newFakeWorkspaces(), worker, nil, Options{})

	res := exec.Execute(&domain.Job{ID: 12}, 1, 1)

	if res.Title != "" {
		t.Errorf("Title = %q, want empty", res.Title)
	}
	if worker.lastJob.Title != "(title unavailable)" {
		t.Errorf("worker saw title %q", worker.lastJob.Title)
	}
}
