// Package scheduler tracks which jobs of a batch are ready to run.
package scheduler

import (
	"sort"
	"sync"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// Blocked is a pending job that can never become ready because one of its
// in-batch dependencies ended without completing
type Blocked struct {
	ID    int
	Cause int
}

// Counts is a snapshot of the scheduler sets
type Counts struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// Scheduler holds the live execution state of one batch. The pending,
// in-progress, completed, failed and skipped sets always partition the
// batch's job ids. Safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	deps map[int][]int // in-batch dependencies only

	pending    map[int]bool
	inProgress map[int]bool
	completed  map[int]bool
	failed     map[int]bool
	skipped    map[int]bool
}

// New creates a Scheduler for batch. Dependencies on jobs outside the batch
// are dropped here, so they count as satisfied.
func New(batch domain.Batch, jobs map[int]*domain.Job) *Scheduler {
	s := &Scheduler{
		deps:       make(map[int][]int, len(batch.JobIDs)),
		pending:    make(map[int]bool, len(batch.JobIDs)),
		inProgress: make(map[int]bool),
		completed:  make(map[int]bool),
		failed:     make(map[int]bool),
		skipped:    make(map[int]bool),
	}

	for _, id := range batch.JobIDs {
		s.pending[id] = true
	}
	for _, id := range batch.JobIDs {
		job, ok := jobs[id]
		if !ok {
			continue
		}
		for _, dep := range job.Dependencies {
			if !s.pending[dep] || dep == id {
				continue
			}
			s.deps[id] = append(s.deps[id], dep)
		}
	}

	return s
}

// Ready returns pending jobs whose in-batch dependencies have all completed,
// in ascending id order. It does not change state.
func (s *Scheduler) Ready() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []int
	for id := range s.pending {
		if s.isReady(id) {
			ready = append(ready, id)
		}
	}
	sort.Ints(ready)
	return ready
}

func (s *Scheduler) isReady(id int) bool {
	for _, dep := range s.deps[id] {
		if !s.completed[dep] {
			return false
		}
	}
	return true
}

// MarkStarted moves id from pending to in-progress. It returns false and
// changes nothing if id was not pending.
func (s *Scheduler) MarkStarted(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending[id] {
		return false
	}
	delete(s.pending, id)
	s.inProgress[id] = true
	return true
}

// MarkCompleted moves id from in-progress to completed
func (s *Scheduler) MarkCompleted(id int) bool {
	return s.finish(id, s.completed)
}

// MarkFailed moves id from in-progress to failed
func (s *Scheduler) MarkFailed(id int) bool {
	return s.finish(id, s.failed)
}

func (s *Scheduler) finish(id int, into map[int]bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inProgress[id] {
		return false
	}
	delete(s.inProgress, id)
	into[id] = true
	return true
}

// MarkSkipped resolves a pending job that will never run
func (s *Scheduler) MarkSkipped(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending[id] {
		return false
	}
	delete(s.pending, id)
	s.skipped[id] = true
	return true
}

// IsDone reports whether nothing is pending or in progress
func (s *Scheduler) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && len(s.inProgress) == 0
}

// Blocked returns pending jobs with at least one in-batch dependency that
// failed or was skipped, in ascending id order. Cause is the lowest such
// dependency.
func (s *Scheduler) Blocked() []Blocked {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocked []Blocked
	for id := range s.pending {
		deps := append([]int(nil), s.deps[id]...)
		sort.Ints(deps)
		for _, dep := range deps {
			if s.failed[dep] || s.skipped[dep] {
				blocked = append(blocked, Blocked{ID: id, Cause: dep})
				break
			}
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].ID < blocked[j].ID })
	return blocked
}

// InProgress returns the in-progress ids in ascending order
func (s *Scheduler) InProgress() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.inProgress)
}

// CycleBreaker returns the lowest pending id that lies on a dependency
// cycle among pending jobs. Jobs that merely wait on a cycle are never
// returned.
func (s *Scheduler) CycleBreaker() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range sortedKeys(s.pending) {
		if s.reaches(id, id, make(map[int]bool)) {
			return id, true
		}
	}
	return 0, false
}

// reaches follows pending dependencies from id and reports whether target
// is among them
func (s *Scheduler) reaches(id, target int, visited map[int]bool) bool {
	for _, dep := range s.deps[id] {
		if !s.pending[dep] {
			continue
		}
		if dep == target {
			return true
		}
		if visited[dep] {
			continue
		}
		visited[dep] = true
		if s.reaches(dep, target, visited) {
			return true
		}
	}
	return false
}

// Counts returns the size of every set
func (s *Scheduler) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Pending:    len(s.pending),
		InProgress: len(s.inProgress),
		Completed:  len(s.completed),
		Failed:     len(s.failed),
		Skipped:    len(s.skipped),
	}
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
