// Package batcher groups jobs into priority batches and orders each batch so
// that dependencies run first.
package batcher

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// maxCycleIDs bounds how many ids a cycle warning names
const maxCycleIDs = 10

// Entry is a job as supplied by the job source, before normalization
type Entry struct {
	ID           int
	Priority     any // string, nil, or anything else the source produced
	Title        string
	Body         string
	Dependencies []int
}

// Result is the output of Plan
type Result struct {
	Batches  []domain.Batch
	Jobs     map[int]*domain.Job
	Warnings []string
}

// JobCount returns the number of jobs across all batches
func (r *Result) JobCount() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.JobIDs)
	}
	return n
}

// NormalizePriority maps a raw priority value to p0..p3. Missing or empty
// values default to p2 silently, anything unrecognised defaults to p2 with a
// warning.
func NormalizePriority(raw any, jobID int) (domain.Priority, string) {
	switch v := raw.(type) {
	case nil:
		return domain.DefaultPriority, ""
	case string:
		if v == "" {
			return domain.DefaultPriority, ""
		}
		if p, ok := domain.ParsePriority(v); ok {
			return p, ""
		}
		return domain.DefaultPriority, fmt.Sprintf("invalid priority: #%d has priority %q, treated as p2", jobID, v)
	case domain.Priority:
		return NormalizePriority(string(v), jobID)
	default:
		return domain.DefaultPriority, fmt.Sprintf("invalid priority: #%d has a non-string priority (%v), treated as p2", jobID, v)
	}
}

// Plan assigns every job to exactly one priority bucket and computes a
// dependency-respecting order inside each bucket. extract may be nil, in
// which case only structured dependencies are used.
func Plan(entries []Entry, extract Extractor) Result {
	if extract == nil {
		extract = NoExtraction
	}

	res := Result{Jobs: make(map[int]*domain.Job)}

	for _, e := range entries {
		if e.ID <= 0 {
			continue
		}
		prio, warning := NormalizePriority(e.Priority, e.ID)
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}

		job, exists := res.Jobs[e.ID]
		if !exists {
			job = &domain.Job{ID: e.ID, Priority: prio, Title: e.Title, Body: e.Body}
			res.Jobs[e.ID] = job
		} else {
			if prio != job.Priority {
				chosen := job.Priority
				if prio.MoreUrgent(job.Priority) {
					chosen = prio
				}
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"duplicate job: #%d marked both %s and %s, using %s",
					e.ID, job.Priority.Label(), prio.Label(), chosen.Label()))
				job.Priority = chosen
			}
			if job.Title == "" {
				job.Title = e.Title
			}
			if e.Body != "" && !strings.Contains(job.Body, e.Body) {
				job.Body = strings.TrimSpace(job.Body + "\n" + e.Body)
			}
		}
		job.MergeDependencies(e.Dependencies...)
	}

	ids := sortedIDs(res.Jobs)
	for _, id := range ids {
		job := res.Jobs[id]
		job.MergeDependencies(extract(id, job.Body)...)
	}

	res.Warnings = append(res.Warnings, crossBatchWarnings(ids, res.Jobs)...)

	for _, prio := range domain.PriorityOrder {
		var nodes []int
		for _, id := range ids {
			if res.Jobs[id].Priority == prio {
				nodes = append(nodes, id)
			}
		}
		if len(nodes) == 0 {
			continue
		}
		ordered, cycle := topoSort(nodes, res.Jobs)
		batch := domain.Batch{Priority: prio, JobIDs: ordered}
		if len(cycle) > 0 {
			batch.Cyclic = true
			res.Warnings = append(res.Warnings, cycleWarning(prio, cycle))
		}
		res.Batches = append(res.Batches, batch)
	}

	return res
}

// crossBatchWarnings reports jobs that depend on a less urgent job. Such
// dependencies are not enforced since batches run in priority order.
func crossBatchWarnings(ids []int, jobs map[int]*domain.Job) []string {
	var warnings []string
	for _, id := range ids {
		job := jobs[id]
		for _, dep := range job.Dependencies {
			depJob, ok := jobs[dep]
			if !ok {
				continue
			}
			if job.Priority.MoreUrgent(depJob.Priority) {
				warnings = append(warnings, fmt.Sprintf(
					"cross-batch dependency: #%d (%s) depends on #%d (%s)",
					id, job.Priority.Label(), dep, depJob.Priority.Label()))
			}
		}
	}
	return warnings
}

// topoSort orders nodes with Kahn's algorithm, always emitting the lowest
// ready id first. On a cycle it returns ascending id order plus the ids that
// could not be ordered.
func topoSort(nodes []int, jobs map[int]*domain.Job) ([]int, []int) {
	if len(nodes) <= 1 {
		return append([]int(nil), nodes...), nil
	}

	inBatch := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		inBatch[n] = true
	}

	inDegree := make(map[int]int, len(nodes))
	dependents := make(map[int][]int, len(nodes))
	for _, n := range nodes {
		for _, dep := range jobs[n].Dependencies {
			if !inBatch[dep] {
				continue
			}
			dependents[dep] = append(dependents[dep], n)
			inDegree[n]++
		}
	}

	ready := &idHeap{}
	for _, n := range nodes {
		if inDegree[n] == 0 {
			*ready = append(*ready, n)
		}
	}
	heap.Init(ready)

	ordered := make([]int, 0, len(nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		ordered = append(ordered, n)
		for _, d := range dependents[n] {
			inDegree[d]--
			if inDegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(ordered) == len(nodes) {
		return ordered, nil
	}

	emitted := make(map[int]bool, len(ordered))
	for _, n := range ordered {
		emitted[n] = true
	}
	var cycle []int
	for _, n := range nodes {
		if !emitted[n] {
			cycle = append(cycle, n)
		}
	}
	sort.Ints(cycle)

	fallback := append([]int(nil), nodes...)
	sort.Ints(fallback)
	return fallback, cycle
}

func cycleWarning(prio domain.Priority, cycle []int) string {
	shown := cycle
	if len(shown) > maxCycleIDs {
		shown = shown[:maxCycleIDs]
	}
	refs := make([]string, len(shown))
	for i, id := range shown {
		refs[i] = fmt.Sprintf("#%d", id)
	}
	list := strings.Join(refs, " ")
	if len(cycle) > maxCycleIDs {
		list += " ..."
	}
	return fmt.Sprintf("dependency cycle: %s batch has a cycle (%s), falling back to id order", prio.Label(), list)
}

func sortedIDs(jobs map[int]*domain.Job) []int {
	ids := make([]int, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// idHeap is a min-heap of job ids
type idHeap []int

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
