package scheduler

import "github.com/wscffaa/claude-gh-skills-sub000/internal/domain"

var baseWorkers = map[domain.Priority]int{
	domain.PriorityP0: 4,
	domain.PriorityP1: 3,
	domain.PriorityP2: 2,
	domain.PriorityP3: 1,
}

// WorkerCount returns the pool size for a batch: a per-priority base, one
// less when any job has a dependency, capped at the batch size and never
// below 1.
func WorkerCount(prio domain.Priority, batchSize int, hasDependencies bool) int {
	n, ok := baseWorkers[prio]
	if !ok {
		n = 2
	}
	if hasDependencies {
		n--
	}
	if batchSize < n {
		n = batchSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

// BatchWorkerCount applies WorkerCount to a batch. An override > 0 replaces
// the computed value but is still capped at the batch size.
func BatchWorkerCount(batch domain.Batch, jobs map[int]*domain.Job, override int) int {
	size := len(batch.JobIDs)
	if override > 0 {
		if size > 0 && override > size {
			return size
		}
		return override
	}

	hasDeps := false
	for _, id := range batch.JobIDs {
		if job, ok := jobs[id]; ok && job.HasDependencies() {
			hasDeps = true
			break
		}
	}
	return WorkerCount(batch.Priority, size, hasDeps)
}
