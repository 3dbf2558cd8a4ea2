package domain

import (
	"fmt"
	"sort"
)

// Job is a unit of work: one tracked issue to implement
type Job struct {
	ID           int
	Priority     Priority
	Title        string
	Body         string
	Dependencies []int
}

// BranchName returns the branch a job's work lives on
func BranchName(jobID int) string {
	return fmt.Sprintf("issue-%d", jobID)
}

// Branch returns the branch name for this job
func (j *Job) Branch() string {
	return BranchName(j.ID)
}

// HasDependencies reports whether the job declares any dependency
func (j *Job) HasDependencies() bool {
	return len(j.Dependencies) > 0
}

// MergeDependencies adds deps to the job, keeping the list sorted and unique
func (j *Job) MergeDependencies(deps ...int) {
	set := make(map[int]bool, len(j.Dependencies)+len(deps))
	for _, d := range j.Dependencies {
		set[d] = true
	}
	for _, d := range deps {
		if d > 0 && d != j.ID {
			set[d] = true
		}
	}
	j.Dependencies = j.Dependencies[:0]
	for d := range set {
		j.Dependencies = append(j.Dependencies, d)
	}
	sort.Ints(j.Dependencies)
}
