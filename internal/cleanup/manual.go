package cleanup

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/workspace"
)

// Inventory finds issue-* resources in the repository. workspace.Manager
// implements it.
type Inventory interface {
	Resources
	LocalBranches(ctx context.Context) ([]int, error)
	RemoteBranches(ctx context.Context) ([]int, error)
	List(ctx context.Context) ([]workspace.Entry, error)
	MergedBranches(ctx context.Context, ref string) ([]int, error)
	DefaultBranchRef(ctx context.Context) string
}

// MergeChecker asks the hosting platform whether a job's branch was
// merged. known is false when it could not tell.
type MergeChecker interface {
	IsMerged(ctx context.Context, jobID int) (merged, known bool, detail string)
}

// ManualOptions select what a manual cleanup removes
type ManualOptions struct {
	// IDs limits the cleanup to these jobs; empty means every issue-*
	// resource found in the repository
	IDs []int
	// Force cleans candidates without checking whether they were merged
	Force bool
}

// ManualResult is the outcome of a manual cleanup
type ManualResult struct {
	Candidates []int
	NotMerged  []int
	Unknown    map[int]string
	Report     *Report
}

// Manual cleans issue-* resources outside of a run. By default only
// merged jobs are cleaned; merge state comes from mc and falls back to
// git branch --merged when mc cannot answer.
func Manual(ctx context.Context, inv Inventory, mc MergeChecker, opts ManualOptions, con *console.Console) (*ManualResult, error) {
	if con == nil {
		con = console.Discard()
	}

	candidates := dedupe(opts.IDs)
	if len(candidates) == 0 {
		found, err := collect(ctx, inv)
		if err != nil {
			return nil, err
		}
		candidates = found
	}

	result := &ManualResult{Candidates: candidates, Unknown: make(map[int]string)}

	var toClean []int
	var gitMerged map[int]bool
	var gitErr error
	for _, id := range candidates {
		if opts.Force {
			toClean = append(toClean, id)
			continue
		}

		merged, known, detail := false, false, "merge state unavailable"
		if mc != nil {
			merged, known, detail = mc.IsMerged(ctx, id)
		}
		if !known {
			if gitMerged == nil && gitErr == nil {
				gitMerged, gitErr = mergedSet(ctx, inv)
			}
			if gitErr == nil {
				merged, known = gitMerged[id], true
			} else {
				detail = gitErr.Error()
			}
		}

		switch {
		case !known:
			if detail == "" {
				detail = "merge state unavailable"
			}
			result.Unknown[id] = detail
		case merged:
			toClean = append(toClean, id)
		default:
			result.NotMerged = append(result.NotMerged, id)
		}
	}

	con.Debugf("cleanup", "candidates=%d clean=%d not-merged=%d unknown=%d",
		len(candidates), len(toClean), len(result.NotMerged), len(result.Unknown))

	result.Report = Clean(ctx, toClean, inv, con)
	return result, nil
}

func collect(ctx context.Context, inv Inventory) ([]int, error) {
	seen := make(map[int]bool)

	local, err := inv.LocalBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing local branches: %w", err)
	}
	remote, err := inv.RemoteBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote branches: %w", err)
	}
	entries, err := inv.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}

	for _, id := range local {
		seen[id] = true
	}
	for _, id := range remote {
		seen[id] = true
	}
	for _, e := range entries {
		seen[e.JobID] = true
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func mergedSet(ctx context.Context, inv Inventory) (map[int]bool, error) {
	ids, err := inv.MergedBranches(ctx, inv.DefaultBranchRef(ctx))
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ParseIDs parses a comma separated list of positive job ids, e.g. "1,2,3".
// Duplicates are dropped, order is kept.
func ParseIDs(s string) ([]int, error) {
	var ids []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(item), "#"))
		if item == "" {
			continue
		}
		id, err := strconv.Atoi(item)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id: %q", item)
		}
		ids = append(ids, id)
	}
	return dedupe(ids), nil
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	var out []int
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// PrintManual writes the manual cleanup summary followed by the cleanup
// report
func PrintManual(w io.Writer, repoDir string, opts ManualOptions, r *ManualResult) {
	mode := "merged-only"
	if opts.Force {
		mode = "force"
	}
	if len(opts.IDs) > 0 {
		mode += " (selected jobs)"
	}
	fmt.Fprintln(w, "Manual cleanup")
	fmt.Fprintf(w, "- Mode: %s\n", mode)
	fmt.Fprintf(w, "- Repository: %s\n", repoDir)
	fmt.Fprintf(w, "- Candidates: %d\n", len(r.Candidates))

	if len(r.NotMerged) > 0 {
		fmt.Fprintf(w, "- Skipped, not merged: %d (%s)\n", len(r.NotMerged), listCapped(r.NotMerged, 50))
	}
	if len(r.Unknown) > 0 {
		ids := make([]int, 0, len(r.Unknown))
		for id := range r.Unknown {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		fmt.Fprintf(w, "- Skipped, merge state unknown: %d (%s)\n", len(ids), listCapped(ids, maxListed))
		fmt.Fprintf(w, "  - e.g. #%d: %s\n", ids[0], r.Unknown[ids[0]])
	}

	fmt.Fprintf(w, "- To clean: %d\n", len(r.Report.Tracked))
	if len(r.Report.Tracked) == 0 {
		fmt.Fprintln(w, "- Nothing to clean up")
		return
	}
	PrintReport(w, r.Report)
}

func listCapped(ids []int, limit int) string {
	if len(ids) <= limit {
		return JoinIDs(ids)
	}
	return fmt.Sprintf("%s ...(+%d)", JoinIDs(ids[:limit]), len(ids)-limit)
}
