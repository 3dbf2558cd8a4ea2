package runner

import (
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// Run executes batches in order, most urgent first. A batch starts only
// after the previous one finished; an interrupt stops the run after the
// current batch wound down.
func (d *Driver) Run(batches []domain.Batch, jobs map[int]*domain.Job) []BatchSummary {
	var summaries []BatchSummary
	for _, batch := range batches {
		if d.state.Interrupted() {
			break
		}
		if len(batch.JobIDs) == 0 {
			continue
		}
		summary := d.RunBatch(batch, jobs)
		summaries = append(summaries, summary)
		if summary.Interrupted {
			break
		}
	}
	return summaries
}
