// Package report summarizes job results and prints the final run report.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// MaxTitleWidth is the widest title shown in the results table
const MaxTitleWidth = 60

// Summary aggregates the results of a run
type Summary struct {
	Results []domain.JobResult

	Completed   []int
	Failed      []int
	Skipped     []int
	Interrupted []int

	TotalAttempts      int
	TotalRetries       int
	Retried            []int
	RetriedOK          []int
	RetriedFailed      []int
	RetriedInterrupted []int
	TotalElapsed       time.Duration
}

// Total is the number of results
func (s Summary) Total() int {
	return len(s.Results)
}

// AllCompleted reports whether every job completed
func (s Summary) AllCompleted() bool {
	return len(s.Results) > 0 && len(s.Completed) == len(s.Results)
}

// Summarize builds a Summary, keeping results in the given order
func Summarize(results []domain.JobResult) Summary {
	s := Summary{Results: results}
	for _, r := range results {
		switch r.Status {
		case domain.StatusCompleted:
			s.Completed = append(s.Completed, r.ID)
		case domain.StatusFailed:
			s.Failed = append(s.Failed, r.ID)
		case domain.StatusSkipped:
			s.Skipped = append(s.Skipped, r.ID)
		case domain.StatusInterrupted:
			s.Interrupted = append(s.Interrupted, r.ID)
		}

		s.TotalAttempts += r.Attempts
		s.TotalRetries += r.Retries()
		s.TotalElapsed += r.Elapsed
		if r.Attempts > 1 {
			s.Retried = append(s.Retried, r.ID)
			switch r.Status {
			case domain.StatusCompleted:
				s.RetriedOK = append(s.RetriedOK, r.ID)
			case domain.StatusFailed:
				s.RetriedFailed = append(s.RetriedFailed, r.ID)
			case domain.StatusInterrupted:
				s.RetriedInterrupted = append(s.RetriedInterrupted, r.ID)
			}
		}
	}
	return s
}

// Print writes the results table followed by the aggregates
func Print(w io.Writer, s Summary, interrupted bool) {
	fmt.Fprintln(w, "\nCompletion report:")

	if len(s.Results) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "issue\ttitle\tPR\tstatus\ttime")
		fmt.Fprintln(tw, "-----\t-----\t--\t------\t----")
		for _, r := range s.Results {
			pr := "-"
			if r.PRNumber > 0 {
				pr = fmt.Sprintf("#%d", r.PRNumber)
			}
			fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\n",
				r.ID, TruncateTitle(r.Title), pr, r.Status, domain.FormatDuration(r.Elapsed))
		}
		tw.Flush()

		fmt.Fprintf(w, "\n- Total time: %s\n", domain.FormatDuration(s.TotalElapsed))
	}

	fmt.Fprintf(w, "- Total: %d\n", s.Total())
	fmt.Fprintf(w, "- Completed: %d\n", len(s.Completed))
	fmt.Fprintf(w, "- Failed: %d\n", len(s.Failed))
	fmt.Fprintf(w, "- Skipped: %d\n", len(s.Skipped))
	fmt.Fprintf(w, "- Interrupted: %d\n", len(s.Interrupted))
	fmt.Fprintf(w, "- Total attempts: %d\n", s.TotalAttempts)
	fmt.Fprintf(w, "- Total retries: %d\n", s.TotalRetries)
	fmt.Fprintf(w, "- Jobs retried: %d\n", len(s.Retried))
	if len(s.Retried) > 0 {
		fmt.Fprintf(w, "  - completed after retry: %d\n", len(s.RetriedOK))
		fmt.Fprintf(w, "  - failed after retry: %d\n", len(s.RetriedFailed))
		fmt.Fprintf(w, "  - interrupted after retry: %d\n", len(s.RetriedInterrupted))
	}
	if interrupted {
		fmt.Fprintln(w, "- Run interrupted: yes")
	}

	if len(s.Completed) > 0 {
		fmt.Fprintf(w, "- Completed jobs: %s\n", joinIDs(s.Completed))
	}
	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "- Failed jobs: %s\n", joinIDs(s.Failed))
	}
	if len(s.Interrupted) > 0 {
		fmt.Fprintf(w, "- Interrupted jobs: %s\n", joinIDs(s.Interrupted))
	}
}

// TruncateTitle trims a title to MaxTitleWidth runes, marking the cut
// with an ellipsis. Empty titles render as "-".
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "-"
	}
	runes := []rune(title)
	if len(runes) <= MaxTitleWidth {
		return title
	}
	return string(runes[:MaxTitleWidth-1]) + "…"
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, " ")
}
