package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/batcher"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/cleanup"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/config"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/history"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/input"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/prbot"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/proc"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/report"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/schedule"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/workspace"
)

var (
	planInput string
	planJSON  bool

	cleanupIssues  string
	cleanupForce   bool
	cleanupRepo    string
	cleanupRepoDir string

	historyLimit int
	historyRun   string
	historyIssue int
)

func init() {
	// plan command
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the batches a run would execute",
		Args:  noArgs,
		RunE:  runPlan,
	}
	planCmd.Flags().StringVar(&planInput, "input", "", `job document path, "-" for stdin`)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as a batches document")
	rootCmd.AddCommand(planCmd)

	// cleanup command
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove issue-* worktrees and branches",
		Long: `Cleanup removes the worktree, local branch and remote branch of finished
issues. Without --force only issues whose pull request was merged are
cleaned.`,
		Args: noArgs,
		RunE: runCleanup,
	}
	cleanupCmd.Flags().StringVar(&cleanupIssues, "issues", "", "comma separated issue numbers (default: all issue-* resources)")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "clean without checking merge state")
	cleanupCmd.Flags().StringVar(&cleanupRepo, "repo", "", "owner/name passed to gh")
	cleanupCmd.Flags().StringVar(&cleanupRepoDir, "repo-dir", "", "repository to clean (default: current directory)")
	rootCmd.AddCommand(cleanupCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  noArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list, 0 for all")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the job results of one run")
	historyCmd.Flags().IntVar(&historyIssue, "issue", 0, "show every recorded result of one issue")
	rootCmd.AddCommand(historyCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured [[schedule]] entries on their cron expressions",
		Args:  noArgs,
		RunE:  runSchedule,
	}
	rootCmd.AddCommand(scheduleCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	con := console.Std()

	doc, err := input.Load(planInput, os.Stdin)
	if doc != nil {
		for _, w := range doc.Warnings {
			if w = strings.TrimSpace(w); w != "" {
				con.Warnf("%s", w)
			}
		}
	}
	if err != nil && !errors.Is(err, input.ErrNoJobs) {
		return err
	}

	var entries []batcher.Entry
	if doc != nil {
		entries = doc.Entries
	}
	extract := batcher.MarkerExtractor(cfg.Dependencies.Markers...)
	if cfg.Dependencies.Disabled {
		extract = batcher.NoExtraction
	}
	plan := batcher.Plan(entries, extract)

	if planJSON {
		return writePlanJSON(os.Stdout, plan)
	}
	for _, w := range plan.Warnings {
		con.Warnf("%s", w)
	}
	printPlan(con, plan)
	return nil
}

type planDocument struct {
	Batches  []planBatch `json:"batches"`
	Warnings []string    `json:"warnings"`
}

type planBatch struct {
	Priority string      `json:"priority"`
	Cyclic   bool        `json:"cyclic,omitempty"`
	Issues   []planIssue `json:"issues"`
}

type planIssue struct {
	Number       int    `json:"number"`
	Title        string `json:"title,omitempty"`
	Dependencies []int  `json:"dependencies"`
}

// writePlanJSON prints the plan in the batches form that run accepts
func writePlanJSON(w io.Writer, plan batcher.Result) error {
	doc := planDocument{Batches: []planBatch{}, Warnings: plan.Warnings}
	if doc.Warnings == nil {
		doc.Warnings = []string{}
	}
	for _, b := range plan.Batches {
		pb := planBatch{Priority: string(b.Priority), Cyclic: b.Cyclic, Issues: []planIssue{}}
		for _, id := range b.JobIDs {
			job := plan.Jobs[id]
			deps := append([]int{}, job.Dependencies...)
			pb.Issues = append(pb.Issues, planIssue{Number: id, Title: job.Title, Dependencies: deps})
		}
		doc.Batches = append(doc.Batches, pb)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func printPlan(w io.Writer, plan batcher.Result) {
	if len(plan.Batches) == 0 {
		fmt.Fprintln(w, "No jobs to run")
		return
	}
	for _, b := range plan.Batches {
		suffix := ""
		if b.Cyclic {
			suffix = ", dependency cycle"
		}
		fmt.Fprintf(w, "%s batch (%d jobs%s)\n", b.Priority.Label(), len(b.JobIDs), suffix)
		for _, id := range b.JobIDs {
			job := plan.Jobs[id]
			line := fmt.Sprintf("  #%d %s", id, report.TruncateTitle(job.Title))
			if len(job.Dependencies) > 0 {
				line += "  (after " + cleanup.JoinIDs(job.Dependencies) + ")"
			}
			fmt.Fprintln(w, line)
		}
	}
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ids, err := cleanup.ParseIDs(cleanupIssues)
	if err != nil {
		return usageError(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cleanupRepo != "" {
		cfg.General.Repo = cleanupRepo
	}
	if cleanupRepoDir != "" {
		cfg.General.RepoDir = config.ExpandPath(cleanupRepoDir)
	}
	repoDir, err := filepath.Abs(orDefault(cfg.General.RepoDir, "."))
	if err != nil {
		return err
	}

	con := console.Std()
	con.SetVerbose(verbose)
	runner := proc.NewExecRunner()
	ws := workspace.NewManager(runner, repoDir, cfg.General.WorktreeDir)
	if err := ws.CheckGit(cmd.Context()); err != nil {
		return err
	}
	prs := prbot.NewPRBot(runner, repoDir, cfg.General.Repo)

	opts := cleanup.ManualOptions{IDs: ids, Force: cleanupForce}
	res, err := cleanup.Manual(cmd.Context(), ws, prs, opts, con)
	if err != nil {
		return err
	}

	cleanup.PrintManual(con, repoDir, opts, res)
	cleanup.PrintReport(con, res.Report)
	if res.Report.FailureCount() > 0 {
		return withCode(ExitFailure, nil)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch {
	case historyRun != "":
		results, err := store.JobResults(historyRun)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ISSUE\tTITLE\tSTATUS\tPR\tATTEMPTS\tTIME")
		for _, r := range results {
			fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%d\t%s\n",
				r.ID, report.TruncateTitle(r.Title), r.Status, prLabel(r.PRNumber), r.Attempts, domain.FormatDuration(r.Elapsed))
		}
	case historyIssue > 0:
		results, err := store.JobHistory(historyIssue)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "STATUS\tPR\tATTEMPTS\tTIME\tDETAIL")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.Status, prLabel(r.PRNumber), r.Attempts, domain.FormatDuration(r.Elapsed), firstLine(r.Detail))
		}
	default:
		runs, err := store.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RUN\tTRIGGER\tSTARTED\tDURATION\tCOMPLETED\tFAILED\tSKIPPED\tINTERRUPTED")
		for _, r := range runs {
			interrupted := "-"
			if r.Interrupted {
				interrupted = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
				r.ID, r.Trigger, r.StartedAt.Local().Format("2006-01-02 15:04"), domain.FormatDuration(r.Duration()),
				r.Completed, r.Total, r.Failed, r.Skipped, interrupted)
		}
	}
	return nil
}

func prLabel(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("#%d", n)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no [[schedule]] entries in %s", orDefault(configPath, config.DefaultConfigPath()))
	}

	con := console.Std()
	con.SetVerbose(verbose)
	sched, err := schedule.NewScheduler(schedule.FromConfig(cfg.Schedules), con)
	if err != nil {
		return usageError(err)
	}
	for _, name := range sched.Names() {
		e, _ := sched.Get(name)
		con.Printf("%s: %s (next %s)", name, e.Input, sched.NextRun(name).Local().Format("2006-01-02 15:04"))
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	sched.Start(ctx, func(ctx context.Context, e schedule.Entry) error {
		env := runEnv{
			cfg:     cfg,
			con:     con,
			runner:  &proc.ExecRunner{Grace: cfg.General.GracePeriod.Duration},
			trigger: e.Name,
		}
		code := executeRun(ctx, env, e.Input)
		if code != ExitOK {
			return fmt.Errorf("exit code %d", code)
		}
		return nil
	})
	return nil
}
