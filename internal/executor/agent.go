package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/proc"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/prompts"
)

// DefaultAgentCommand reads its task from stdin ("-")
var DefaultAgentCommand = []string{"codeagent-wrapper", "--backend", "codex", "-"}

var sessionIDPattern = regexp.MustCompile(`\bSESSION_ID\s*[:=]\s*([A-Za-z0-9._-]+)`)

// WorkResult is the outcome of one agent invocation
type WorkResult struct {
	ExitCode  int
	SessionID string
	Err       error
}

// OK reports a clean zero exit
func (r WorkResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Describe renders a failed invocation for the attempt trail
func (r WorkResult) Describe(what string) string {
	if r.Err != nil {
		return fmt.Sprintf("%s exit=%d: %v", what, r.ExitCode, r.Err)
	}
	return fmt.Sprintf("%s exit=%d", what, r.ExitCode)
}

// Agent runs the external coding agent in a job's worktree. The task text
// is passed over stdin so titles never reach a shell.
type Agent struct {
	runner  proc.Runner
	command []string
	con     *console.Console
	logDir  string
	prompts *prompts.Loader
}

// NewAgent creates an Agent. An empty command selects DefaultAgentCommand.
func NewAgent(runner proc.Runner, command []string, con *console.Console) *Agent {
	if len(command) == 0 {
		command = DefaultAgentCommand
	}
	if con == nil {
		con = console.Discard()
	}
	return &Agent{
		runner:  runner,
		command: command,
		con:     con,
		prompts: prompts.NewLoader(),
	}
}

// SetLogDir makes the agent append each job's output to <dir>/issue-<id>.log
func (a *Agent) SetLogDir(dir string) {
	a.logDir = dir
}

// SetPrompts replaces the built-in prompt templates
func (a *Agent) SetPrompts(l *prompts.Loader) {
	a.prompts = l
}

// Implement asks the agent to implement job inside dir
func (a *Agent) Implement(ctx context.Context, job *domain.Job, dir string) WorkResult {
	prompt, err := a.prompts.BuildTaskPrompt(taskData(job))
	if err != nil {
		return WorkResult{ExitCode: -1, Err: err}
	}
	return a.run(ctx, job.ID, dir, prompt)
}

// Review asks the agent to review pull request pr from inside dir
func (a *Agent) Review(ctx context.Context, jobID, pr int, dir, focus string) WorkResult {
	prompt, err := a.prompts.BuildReviewPrompt(prompts.ReviewData{PR: pr, Focus: focus})
	if err != nil {
		return WorkResult{ExitCode: -1, Err: err}
	}
	return a.run(ctx, jobID, dir, prompt)
}

func (a *Agent) run(ctx context.Context, jobID int, dir, prompt string) WorkResult {
	logFile := a.openLog(jobID)
	if logFile != nil {
		defer logFile.Close()
	}

	component := fmt.Sprintf("#%d", jobID)
	res := a.runner.Run(ctx, proc.Command{
		Name:  a.command[0],
		Args:  a.command[1:],
		Dir:   dir,
		Stdin: prompt,
		OnLine: func(line string) {
			a.con.Debugf(component, "%s", line)
			if logFile != nil {
				logFile.WriteString(line + "\n")
			}
		},
	})

	out := WorkResult{ExitCode: res.ExitCode, Err: res.Err}
	if id := ParseSessionID(res.Stdout); id != "" {
		out.SessionID = id
	} else {
		out.SessionID = ParseSessionID(res.Stderr)
	}
	if !res.OK() && res.Err == nil {
		if line := lastNonEmptyLine(res.Stderr); line != "" {
			out.Err = fmt.Errorf("%s", line)
		}
	}
	return out
}

func (a *Agent) openLog(jobID int) *os.File {
	if a.logDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.logDir, 0755); err != nil {
		a.con.Warnf("creating agent log dir: %v", err)
		return nil
	}
	path := filepath.Join(a.logDir, domain.BranchName(jobID)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		a.con.Warnf("opening agent log: %v", err)
		return nil
	}
	return f
}

// ParseSessionID extracts a "SESSION_ID: <id>" marker from agent output
func ParseSessionID(text string) string {
	m := sessionIDPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func lastNonEmptyLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
