package domain

import "strings"

// Priority represents job urgency, p0 being the most urgent
type Priority string

const (
	PriorityP0 Priority = "p0"
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
	PriorityP3 Priority = "p3"

	// DefaultPriority is used when a job carries no usable priority
	DefaultPriority = PriorityP2
)

// PriorityOrder lists priorities from most to least urgent
var PriorityOrder = []Priority{PriorityP0, PriorityP1, PriorityP2, PriorityP3}

// ParsePriority normalizes a raw priority string. ok is false when the
// value is not one of p0..p3.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p, true
	}
	return DefaultPriority, false
}

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// Rank returns 0 for p0 up to 3 for p3. Unknown priorities rank as p2.
func (p Priority) Rank() int {
	for i, known := range PriorityOrder {
		if p == known {
			return i
		}
	}
	return DefaultPriority.Rank()
}

// MoreUrgent reports whether p should run before other
func (p Priority) MoreUrgent(other Priority) bool {
	return p.Rank() < other.Rank()
}

// Label returns the upper-case display form, e.g. "P1"
func (p Priority) Label() string {
	if p == "" {
		return strings.ToUpper(string(DefaultPriority))
	}
	return strings.ToUpper(string(p))
}

// JobStatus represents the terminal state of a job in a run
type JobStatus string

const (
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusSkipped     JobStatus = "skipped"
	StatusInterrupted JobStatus = "interrupted"
)
