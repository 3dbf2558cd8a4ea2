package cleanup

import (
	"fmt"
	"io"
	"strings"
)

// maxListed caps how many ids or failures a report line lists
const maxListed = 20

// PrintReport writes the cleanup section of the final report
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintln(w, "\n===== Cleanup Report =====")

	total := len(r.Tracked)
	fmt.Fprintf(w, "- Tracked jobs: %d\n", total)
	if total == 0 {
		fmt.Fprintln(w, "- Nothing to clean up")
		return
	}

	if len(r.Leftover) > 0 {
		fmt.Fprintf(w, "- Left by attempts: %d (%s)\n", len(r.Leftover), JoinIDs(r.Leftover))
	}
	fmt.Fprintf(w, "- Worktrees removed: %d/%d\n", countOK(r.Worktrees), total)
	if len(r.Forced) > 0 {
		if len(r.Forced) <= maxListed {
			fmt.Fprintf(w, "- Worktrees forced: %d (%s)\n", len(r.Forced), JoinIDs(r.Forced))
		} else {
			fmt.Fprintf(w, "- Worktrees forced: %d\n", len(r.Forced))
		}
	}
	fmt.Fprintf(w, "- Local branches deleted: %d/%d\n", countOK(r.LocalBranches), total)
	fmt.Fprintf(w, "- Remote branches deleted: %d/%d\n", countOK(r.RemoteBranches), total)

	if r.Prune.OK {
		fmt.Fprintln(w, "- git worktree prune: OK")
	} else {
		fmt.Fprintln(w, "- git worktree prune: FAILED")
		if r.Prune.Detail != "" {
			fmt.Fprintf(w, "  - %s\n", r.Prune.Detail)
		}
	}

	printFailures(w, "Worktree removal", r.WorktreeFailures())
	printFailures(w, "Local branch deletion", r.LocalBranchFailures())
	printFailures(w, "Remote branch deletion", r.RemoteBranchFailures())
}

func printFailures(w io.Writer, title string, items []Failure) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "- %s failed: %d\n", title, len(items))
	for i, f := range items {
		if i == maxListed {
			fmt.Fprintf(w, "  - ... and %d more\n", len(items)-maxListed)
			break
		}
		if f.Detail != "" {
			fmt.Fprintf(w, "  - #%d: %s\n", f.JobID, f.Detail)
		} else {
			fmt.Fprintf(w, "  - #%d\n", f.JobID)
		}
	}
}

// JoinIDs renders ids as "#1 #2 #3"
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, " ")
}
