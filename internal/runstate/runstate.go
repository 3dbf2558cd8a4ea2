// Package runstate holds the state shared by every component of one run:
// the interrupt flag, the set of jobs that ever received a workspace, and
// the collected job results.
package runstate

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// State is passed by reference to the driver, executors and cleanup. Each
// map is guarded by its own lock.
type State struct {
	ID string

	interrupted atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc

	trackMu  sync.Mutex
	tracked  map[int]string // job id -> last workspace path
	active   map[int]string
	attempts map[int]int

	resultMu sync.Mutex
	results  []domain.JobResult
	recorded map[int]bool
}

// New creates the state for a run. The returned state's Context is
// cancelled by Interrupt or when parent is done.
func New(parent context.Context) *State {
	ctx, cancel := context.WithCancel(parent)
	return &State{
		ID:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		tracked:  make(map[int]string),
		active:   make(map[int]string),
		attempts: make(map[int]int),
		recorded: make(map[int]bool),
	}
}

// Context is cancelled once the run is interrupted
func (s *State) Context() context.Context {
	return s.ctx
}

// Interrupt sets the interrupt flag and cancels the run context. Safe to
// call more than once.
func (s *State) Interrupt() {
	s.interrupted.Store(true)
	s.cancel()
}

// Interrupted reports whether the run was interrupted
func (s *State) Interrupted() bool {
	if s.interrupted.Load() {
		return true
	}
	// a cancelled parent counts too
	if s.ctx.Err() != nil {
		s.interrupted.Store(true)
		return true
	}
	return false
}

// Close releases the run context
func (s *State) Close() {
	s.cancel()
}

// Track records that job id owns a workspace at path. Jobs stay tracked for
// the rest of the run, even after the workspace is released.
func (s *State) Track(id int, path string) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	s.tracked[id] = path
	s.active[id] = path
}

// Release marks the workspace of id as removed. The id stays tracked.
func (s *State) Release(id int) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	delete(s.active, id)
}

// Tracked returns every job id that ever got a workspace, ascending
func (s *State) Tracked() []int {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	return sortedKeys(s.tracked)
}

// Active returns job ids whose workspace has not been released
func (s *State) Active() []int {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	return sortedKeys(s.active)
}

// WorkspacePath returns the last workspace path recorded for id
func (s *State) WorkspacePath(id int) (string, bool) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	p, ok := s.tracked[id]
	return p, ok
}

// SetAttempt records that job id entered attempt n
func (s *State) SetAttempt(id, n int) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	s.attempts[id] = n
}

// Attempts returns the last attempt number recorded for id, 0 if none
func (s *State) Attempts(id int) int {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	return s.attempts[id]
}

// Record stores the terminal result of a job. A second result for the same
// job is ignored and Record returns false.
func (s *State) Record(r domain.JobResult) bool {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	if s.recorded[r.ID] {
		return false
	}
	s.recorded[r.ID] = true
	s.results = append(s.results, r)
	return true
}

// HasResult reports whether id already has a terminal result
func (s *State) HasResult(id int) bool {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return s.recorded[id]
}

// Results returns the recorded results in recording order
func (s *State) Results() []domain.JobResult {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return append([]domain.JobResult(nil), s.results...)
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
