package cleanup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/workspace"
)

type fakeRepo struct {
	mu    sync.Mutex
	calls []string

	// worktrees that refuse a graceful removal
	dirty map[int]bool
	// worktrees that cannot be removed at all
	stuck     map[int]bool
	pruneFail bool

	local, remote []int
	worktrees     []workspace.Entry
	merged        []int
	mergedErr     error
}

func (f *fakeRepo) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRepo) Remove(_ context.Context, id int, force bool) domain.CleanupOutcome {
	f.record("remove %d force=%v", id, force)
	if f.stuck[id] {
		return domain.CleanupOutcome{Detail: "locked", Forced: force}
	}
	if f.dirty[id] && !force {
		return domain.CleanupOutcome{Detail: "contains modified files"}
	}
	return domain.CleanupOutcome{OK: true, Forced: force}
}

func (f *fakeRepo) Release(ctx context.Context, id int) domain.CleanupOutcome {
	return workspace.ReleaseWithFallback(ctx,
		func(ctx context.Context) domain.CleanupOutcome { return f.Remove(ctx, id, false) },
		func(ctx context.Context) domain.CleanupOutcome { return f.Remove(ctx, id, true) },
	)
}

func (f *fakeRepo) DeleteBranch(_ context.Context, id int) domain.CleanupOutcome {
	f.record("branch -D %d", id)
	return domain.CleanupOutcome{OK: true}
}

func (f *fakeRepo) DeleteRemoteBranch(_ context.Context, id int) domain.CleanupOutcome {
	f.record("push --delete %d", id)
	return domain.CleanupOutcome{OK: true}
}

func (f *fakeRepo) Prune(context.Context) domain.CleanupOutcome {
	f.record("prune")
	if f.pruneFail {
		return domain.CleanupOutcome{Detail: "prune failed"}
	}
	return domain.CleanupOutcome{OK: true}
}

func (f *fakeRepo) LocalBranches(context.Context) ([]int, error)  { return f.local, nil }
func (f *fakeRepo) RemoteBranches(context.Context) ([]int, error) { return f.remote, nil }
func (f *fakeRepo) List(context.Context) ([]workspace.Entry, error) {
	return f.worktrees, nil
}
func (f *fakeRepo) MergedBranches(_ context.Context, ref string) ([]int, error) {
	f.record("merged %s", ref)
	return f.merged, f.mergedErr
}
func (f *fakeRepo) DefaultBranchRef(context.Context) string { return "origin/main" }

type fakeMerges struct {
	merged map[int]bool
	known  bool
}

func (m fakeMerges) IsMerged(_ context.Context, id int) (bool, bool, string) {
	if !m.known {
		return false, false, "gh: not logged in"
	}
	return m.merged[id], true, ""
}

func TestSweep_AllTrackedJobs(t *testing.T) {
	state := runstate.New(context.Background())
	state.Track(3, "/wt/issue-3")
	state.Track(1, "/wt/issue-1")
	state.Release(1)
	state.Interrupt()

	repo := &fakeRepo{dirty: map[int]bool{3: true}}
	report := Sweep(state.Context(), state, repo, nil)

	want := []string{
		"remove 1 force=false", "branch -D 1", "push --delete 1",
		"remove 3 force=false", "remove 3 force=true", "branch -D 3", "push --delete 3",
		"prune",
	}
	if strings.Join(repo.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls =\n%v\nwant\n%v", repo.calls, want)
	}
	if len(report.Forced) != 1 || report.Forced[0] != 3 {
		t.Errorf("Forced = %v, want [3]", report.Forced)
	}
	if report.FailureCount() != 0 {
		t.Errorf("FailureCount() = %d, want 0", report.FailureCount())
	}
	if len(report.Leftover) != 1 || report.Leftover[0] != 3 {
		t.Errorf("Leftover = %v, want [3]", report.Leftover)
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)
	if !strings.Contains(buf.String(), "- Left by attempts: 1 (#3)") {
		t.Errorf("report = %q", buf.String())
	}
}

func TestSweep_NothingTracked(t *testing.T) {
	state := runstate.New(context.Background())
	defer state.Close()
	repo := &fakeRepo{}

	report := Sweep(context.Background(), state, repo, nil)

	if len(repo.calls) != 0 {
		t.Errorf("calls = %v, want none", repo.calls)
	}
	var buf bytes.Buffer
	PrintReport(&buf, report)
	if !strings.Contains(buf.String(), "Nothing to clean up") {
		t.Errorf("report = %q", buf.String())
	}
}

func TestPrintReport_Failures(t *testing.T) {
	var ids []int
	stuck := make(map[int]bool)
	for i := 1; i <= 25; i++ {
		ids = append(ids, i)
		stuck[i] = true
	}
	repo := &fakeRepo{stuck: stuck, pruneFail: true}

	report := Clean(context.Background(), ids, repo, nil)

	if got := len(report.WorktreeFailures()); got != 25 {
		t.Fatalf("worktree failures = %d, want 25", got)
	}
	if report.FailureCount() != 26 {
		t.Errorf("FailureCount() = %d, want 26", report.FailureCount())
	}
	if d := report.Worktrees[1].Detail; d != "locked; forced: locked" {
		t.Errorf("detail = %q", d)
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"- Tracked jobs: 25",
		"- Worktrees removed: 0/25",
		"- Worktrees forced: 25\n",
		"- Local branches deleted: 25/25",
		"- git worktree prune: FAILED",
		"- Worktree removal failed: 25",
		"  - #20: locked; forced: locked",
		"  - ... and 5 more",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "#21:") {
		t.Error("at most 20 failures should be listed")
	}
}

func TestManual_MergedOnly(t *testing.T) {
	repo := &fakeRepo{
		local:     []int{1, 2},
		remote:    []int{2, 3},
		worktrees: []workspace.Entry{{JobID: 4, Path: "/wt/issue-4", Branch: "issue-4"}},
	}
	mc := fakeMerges{known: true, merged: map[int]bool{2: true, 4: true}}

	res, err := Manual(context.Background(), repo, mc, ManualOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(res.Candidates) != "[1 2 3 4]" {
		t.Errorf("Candidates = %v", res.Candidates)
	}
	if fmt.Sprint(res.Report.Tracked) != "[2 4]" {
		t.Errorf("cleaned = %v, want [2 4]", res.Report.Tracked)
	}
	if fmt.Sprint(res.NotMerged) != "[1 3]" {
		t.Errorf("NotMerged = %v", res.NotMerged)
	}
}

func TestManual_FallsBackToGit(t *testing.T) {
	repo := &fakeRepo{local: []int{5, 6}, merged: []int{6}}

	res, err := Manual(context.Background(), repo, fakeMerges{}, ManualOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(res.Report.Tracked) != "[6]" {
		t.Errorf("cleaned = %v, want [6]", res.Report.Tracked)
	}
	// the merged list is fetched once for all candidates
	n := 0
	for _, c := range repo.calls {
		if c == "merged origin/main" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("git branch --merged calls = %d, want 1", n)
	}
}

func TestManual_UnknownMergeState(t *testing.T) {
	repo := &fakeRepo{local: []int{7}, mergedErr: errors.New("bad ref")}

	res, err := Manual(context.Background(), repo, fakeMerges{}, ManualOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.Unknown[7] != "bad ref" {
		t.Errorf("Unknown = %v", res.Unknown)
	}
	if len(res.Report.Tracked) != 0 {
		t.Errorf("cleaned = %v, want none", res.Report.Tracked)
	}

	var buf bytes.Buffer
	PrintManual(&buf, "/repo", ManualOptions{}, res)
	if !strings.Contains(buf.String(), "merge state unknown: 1 (#7)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestManual_ForceSelectedIDs(t *testing.T) {
	repo := &fakeRepo{local: []int{1, 2, 3}}

	res, err := Manual(context.Background(), repo, nil, ManualOptions{IDs: []int{9, 8, 9}, Force: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(res.Report.Tracked) != "[9 8]" {
		t.Errorf("cleaned = %v, want [9 8]", res.Report.Tracked)
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1,2,3", "[1 2 3]", false},
		{" #4, 5 ,4,", "[4 5]", false},
		{"", "[]", false},
		{"1,x", "", true},
		{"0", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIDs(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIDs(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && fmt.Sprint(got) != tt.want {
			t.Errorf("ParseIDs(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}
