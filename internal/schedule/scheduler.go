package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
)

// RunFunc executes one scheduled entry. ctx carries the entry's MaxDuration.
type RunFunc func(ctx context.Context, e Entry) error

// Scheduler decides when entries are due and runs them
type Scheduler struct {
	entries   map[string]Entry
	schedules map[string]cron.Schedule
	lastRun   map[string]time.Time
	running   map[string]bool
	mu        sync.RWMutex

	tick time.Duration
	now  func() time.Time
	con  *console.Console
}

// NewScheduler validates entries and builds a scheduler
func NewScheduler(entries []Entry, con *console.Console) (*Scheduler, error) {
	s := &Scheduler{
		entries:   make(map[string]Entry),
		schedules: make(map[string]cron.Schedule),
		lastRun:   make(map[string]time.Time),
		running:   make(map[string]bool),
		tick:      time.Minute,
		now:       time.Now,
		con:       con,
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		sched, _ := ParseCron(e.Cron)
		s.entries[e.Name] = e
		s.schedules[e.Name] = sched
	}

	return s, nil
}

// SetTick changes how often due entries are checked
func (s *Scheduler) SetTick(d time.Duration) {
	s.tick = d
}

// NextRun returns the next scheduled run time of an entry
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}
	}
	return sched.Next(s.now())
}

// ShouldRun reports whether an entry is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok || s.running[name] {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = s.now().Add(-24 * time.Hour)
	}
	return !s.now().Before(sched.Next(lastRun))
}

// MarkRunning marks an entry as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks an entry as finished now
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// Get returns the entry called name
func (s *Scheduler) Get(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Names returns all entry names, sorted
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start checks for due entries every tick until ctx is cancelled, then
// waits for the runs it started
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range s.Names() {
				if !s.ShouldRun(name) {
					continue
				}
				e, _ := s.Get(name)
				s.MarkRunning(name)
				s.con.Debugf("schedule", "starting %s (%s)", e.Name, e.Input)

				wg.Add(1)
				go func(e Entry) {
					defer wg.Done()
					defer s.MarkComplete(e.Name)

					runCtx, cancel := context.WithTimeout(ctx, e.MaxDuration)
					defer cancel()
					if err := run(runCtx, e); err != nil {
						s.con.Warnf("scheduled run %s failed: %v", e.Name, err)
					}
				}(e)
			}
		}
	}
}
