package domain

import "time"

// Batch is all jobs of one priority in execution order
type Batch struct {
	Priority Priority
	JobIDs   []int
	// Cyclic is set when the batch contains a dependency cycle and JobIDs
	// fell back to ascending id order
	Cyclic bool
}

// JobResult records the terminal outcome of one job
type JobResult struct {
	ID        int
	Priority  Priority
	Title     string
	Status    JobStatus
	PRNumber  int // 0 when no pull request was observed
	Elapsed   time.Duration
	Attempts  int
	Detail    string
	SessionID string
}

// Retries returns how many attempts beyond the first were made
func (r JobResult) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// CleanupOutcome is the result of removing one resource
type CleanupOutcome struct {
	OK     bool
	Detail string
	Forced bool
}

// FormatDuration renders d rounded to whole seconds, e.g. "1m5s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}
