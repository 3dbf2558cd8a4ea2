package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/batcher"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/cleanup"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/config"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/executor"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/history"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/input"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/metrics"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/notify"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/prbot"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/proc"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/prompts"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/report"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runner"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/runstate"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/workspace"
)

var (
	runInput        string
	runMaxRetries   int
	runForceCleanup bool
	runMaxWorkers   int
	runRepo         string
	runRepoDir      string
	runMetricsFile  string
	runDryRun       bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Implement the issues of an input document",
		Long: `Run reads a job document (a file, or stdin when --input is empty or "-"),
groups its issues into priority batches and implements them, honouring
dependencies inside each batch.`,
		Args: noArgs,
		RunE: runRun,
	}
	runCmd.Flags().StringVar(&runInput, "input", "", `job document path, "-" for stdin`)
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 3, "extra attempts per failed issue")
	runCmd.Flags().BoolVar(&runForceCleanup, "force-cleanup", false, "fall back to git worktree remove --force")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "override the per-batch worker count")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "owner/name passed to gh")
	runCmd.Flags().StringVar(&runRepoDir, "repo-dir", "", "repository to work in (default: current directory)")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print external commands instead of running them")
	rootCmd.AddCommand(runCmd)
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError(fmt.Errorf("%s takes no arguments, got %q", cmd.CommandPath(), args[0]))
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	if runMaxRetries < 0 {
		return usageError(fmt.Errorf("--max-retries must be >= 0"))
	}
	if runMaxWorkers < 0 {
		return usageError(fmt.Errorf("--max-workers must be >= 0"))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("max-retries") {
		cfg.General.MaxRetries = runMaxRetries
	}
	if flags.Changed("max-workers") {
		cfg.General.MaxWorkers = runMaxWorkers
	}
	if runForceCleanup {
		cfg.General.ForceCleanup = true
	}
	if runRepo != "" {
		cfg.General.Repo = runRepo
	}
	if runRepoDir != "" {
		cfg.General.RepoDir = config.ExpandPath(runRepoDir)
	}
	if runMetricsFile != "" {
		cfg.Metrics.Textfile = config.ExpandPath(runMetricsFile)
	}

	con := console.Std()
	con.SetVerbose(verbose)

	env := runEnv{
		cfg:     cfg,
		con:     con,
		runner:  &proc.ExecRunner{Grace: cfg.General.GracePeriod.Duration},
		stdin:   os.Stdin,
		trigger: "manual",
		signals: true,
	}
	if runDryRun {
		env.runner = dryRunner(con)
		env.notifier = notify.NoopNotifier{}
	}

	return withCode(executeRun(cmd.Context(), env, runInput), nil)
}

// runEnv is everything one run needs besides its input
type runEnv struct {
	cfg      *config.Config
	con      *console.Console
	runner   proc.Runner
	stdin    io.Reader
	trigger  string
	signals  bool
	notifier notify.Notifier // nil builds one from the config
}

// dryRunner answers every command successfully with empty output and
// prints what would have run
func dryRunner(con *console.Console) proc.Runner {
	return &proc.FakeRunner{Handler: func(ctx context.Context, cmd proc.Command) proc.Result {
		con.Printf("[dry-run] %s", cmd.String())
		return proc.Result{}
	}}
}

// executeRun performs one complete run and returns the process exit code
func executeRun(ctx context.Context, env runEnv, inputPath string) int {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, con := env.cfg, env.con

	doc, err := input.Load(inputPath, env.stdin)
	if doc != nil {
		for _, w := range doc.Warnings {
			if w = strings.TrimSpace(w); w != "" {
				con.Warnf("%s", w)
			}
		}
	}
	switch {
	case errors.Is(err, input.ErrNoJobs):
		report.Print(con, report.Summarize(nil), false)
		return ExitOK
	case err != nil:
		con.Errorf("reading input: %v", err)
		return ExitFailure
	}

	extract := batcher.MarkerExtractor(cfg.Dependencies.Markers...)
	if cfg.Dependencies.Disabled {
		extract = batcher.NoExtraction
	}
	plan := batcher.Plan(doc.Entries, extract)
	for _, w := range plan.Warnings {
		con.Warnf("%s", w)
	}

	repoDir, err := filepath.Abs(orDefault(cfg.General.RepoDir, "."))
	if err != nil {
		con.Errorf("resolving repo dir: %v", err)
		return ExitFailure
	}
	method, err := prbot.ParseMergeMethod(cfg.Integration.MergeMethod)
	if err != nil {
		con.Errorf("%v", err)
		return ExitFailure
	}

	ws := workspace.NewManager(env.runner, repoDir, cfg.General.WorktreeDir)
	if err := ws.CheckGit(ctx); err != nil {
		con.Errorf("%v", err)
		return ExitFailure
	}

	prs := prbot.NewPRBot(env.runner, repoDir, cfg.General.Repo)
	prs.SetMergeMethod(method)

	worker := executor.NewAgent(env.runner, cfg.Worker.Command, con)
	reviewer := executor.NewAgent(env.runner, cfg.Review.Command, con)
	templates := prompts.DefaultLoader(repoDir)
	worker.SetPrompts(templates)
	reviewer.SetPrompts(templates)
	if cfg.General.LogDir != "" {
		worker.SetLogDir(cfg.General.LogDir)
		reviewer.SetLogDir(cfg.General.LogDir)
	}
	gate := executor.NewReviewGate(prs, reviewer)
	gate.SetSkipReview(cfg.Review.Skip)

	grace := inFlightGrace(env.runner, cfg.General.GracePeriod.Duration)
	state := runstate.New(ctx)
	defer state.Close()
	if env.signals {
		stop := watchSignals(state, con, grace)
		defer stop()
	}

	exec := executor.New(ws, worker, gate, state, con, executor.Options{
		MaxRetries:   cfg.General.MaxRetries,
		ForceCleanup: cfg.General.ForceCleanup,
	})
	exec.SetTitleLookup(prs.IssueTitle)

	started := time.Now()
	con.Printf("Starting run %s (%d jobs, %d batches)", state.ID, plan.JobCount(), len(plan.Batches))
	driver := runner.NewDriver(exec, state, con, plan.JobCount(), runner.Options{
		Workers:      cfg.General.MaxWorkers,
		PollInterval: cfg.General.PollInterval.Duration,
		Grace:        grace,
	})
	driver.Run(plan.Batches, plan.Jobs)

	sweep := cleanup.Sweep(ctx, state, ws, con)
	interrupted := state.Interrupted()
	results := state.Results()
	summary := report.Summarize(results)
	finished := time.Now()

	cleanup.PrintReport(con, sweep)
	report.Print(con, summary, interrupted)

	outcome := runOutcome(summary, interrupted)
	recordHistory(env, state.ID, inputPath, started, finished, interrupted, results, sweep.FailureCount())
	writeMetrics(env, results, sweep.FailureCount(), outcome, finished)
	sendNotification(env, notify.RunFinished(state.ID, summary, interrupted))

	switch outcome {
	case "interrupted":
		return ExitInterrupted
	case "completed":
		return ExitOK
	default:
		return ExitFailure
	}
}

func runOutcome(s report.Summary, interrupted bool) string {
	switch {
	case interrupted:
		return "interrupted"
	case s.AllCompleted():
		return "completed"
	default:
		return "failed"
	}
}

// inFlightGrace is how long the driver waits for running jobs after an
// interrupt. It never ends before the runner has escalated to SIGKILL, so
// no agent outlives the run.
func inFlightGrace(r proc.Runner, grace time.Duration) time.Duration {
	if grace <= 0 {
		grace = runner.DefaultGrace
	}
	if sw, ok := r.(interface{ StopWindow() time.Duration }); ok && sw.StopWindow() > grace {
		return sw.StopWindow()
	}
	return grace
}

// watchSignals interrupts the run on the first SIGINT or SIGTERM
func watchSignals(state *runstate.State, con *console.Console, grace time.Duration) func() {
	if grace <= 0 {
		grace = runner.DefaultGrace
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			con.Warnf("received %s, no new jobs will start; waiting up to %s for running jobs", sig, grace)
			state.Interrupt()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func recordHistory(env runEnv, runID, inputPath string, started, finished time.Time, interrupted bool, results []domain.JobResult, cleanupFailures int) {
	cfg := env.cfg
	if !cfg.History.Enabled || cfg.History.DatabasePath == "" {
		return
	}
	store, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		env.con.Warnf("opening history: %v", err)
		return
	}
	defer store.Close()

	run := history.NewRun(runID, env.trigger, orDefault(inputPath, "-"), started, finished, interrupted, results)
	run.CleanupFailures = cleanupFailures
	if err := store.RecordRun(run, results); err != nil {
		env.con.Warnf("recording history: %v", err)
		return
	}
	env.con.Debugf("history", "recorded run %s in %s", runID, cfg.History.DatabasePath)
}

func writeMetrics(env runEnv, results []domain.JobResult, cleanupFailures int, outcome string, finished time.Time) {
	path := env.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	rec := metrics.NewRecorder()
	rec.ObserveResults(results)
	rec.ObserveCleanup(cleanupFailures)
	rec.ObserveRun(outcome, finished)
	if err := rec.WriteTextfile(path); err != nil {
		env.con.Warnf("%v", err)
		return
	}
	env.con.Debugf("metrics", "wrote %s", path)
}

func sendNotification(env runEnv, n notify.Notification) {
	notifier := env.notifier
	if notifier == nil {
		cfg := env.cfg.Notifications
		notifier = notify.NewMultiNotifier(
			notify.NewDesktopNotifier(cfg.Desktop, env.runner),
			notify.NewSlackNotifier(cfg.SlackWebhook),
		)
	}
	if err := notifier.Send(n); err != nil {
		env.con.Warnf("sending notification: %v", err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
