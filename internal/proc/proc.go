// Package proc runs external commands with stdin input, captured output and
// staged shutdown on cancellation.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ExitNotFound is reported when the executable cannot be located
const ExitNotFound = 127

// DefaultGrace is how long a process gets to react to each stop signal
const DefaultGrace = 5 * time.Second

// killSettle covers reaping after SIGKILL
const killSettle = 250 * time.Millisecond

// Command describes one subprocess invocation
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // appended to the current environment
	Stdin string   // delivered over standard input, never through a shell

	// OnLine, if set, receives every stdout and stderr line as it is read.
	// Calls are serialized.
	OnLine func(line string)
}

// String renders the command for log output
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Err is set when the process could not be started or was stopped
	// through cancellation
	Err error
}

// OK reports a clean zero exit
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// NotFound reports whether the executable was missing
func (r Result) NotFound() bool {
	return errors.Is(r.Err, exec.ErrNotFound)
}

// Detail returns the most useful failure text: stderr, then stdout, then
// the error itself
func (r Result) Detail() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// Output returns stdout and stderr combined
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// Runner executes commands. Implementations block until the process exits
// or ctx is cancelled and the process has been stopped.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands as real child processes. On cancellation the
// child receives SIGINT, then SIGTERM, then SIGKILL, each stage waiting up
// to Grace for it to exit.
type ExecRunner struct {
	Grace time.Duration
}

// NewExecRunner returns an ExecRunner with the default grace period
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Grace: DefaultGrace}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, c Command) Result {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	// stray grandchildren holding the output pipes must not block Wait
	cmd.WaitDelay = r.grace()
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	var outLines, errLines *lineWriter
	if c.OnLine != nil {
		var mu sync.Mutex
		emit := func(line string) {
			mu.Lock()
			defer mu.Unlock()
			c.OnLine(line)
		}
		outLines = &lineWriter{buf: &stdout, emit: emit}
		errLines = &lineWriter{buf: &stderr, emit: emit}
		cmd.Stdout = outLines
		cmd.Stderr = errLines
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return Result{ExitCode: ExitNotFound, Err: fmt.Errorf("starting %s: %w", c.Name, exec.ErrNotFound)}
		}
		return Result{ExitCode: -1, Err: fmt.Errorf("starting %s: %w", c.Name, err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	stopped := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		stopped = true
		waitErr = r.stop(cmd.Process, done)
	}

	if outLines != nil {
		outLines.Flush()
		errLines.Flush()
	}

	res := Result{
		ExitCode: exitCode(waitErr),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if stopped {
		res.Err = fmt.Errorf("%s stopped: %w", c.Name, ctx.Err())
	} else if waitErr != nil && res.ExitCode < 0 {
		res.Err = waitErr
	}
	return res
}

// stop escalates SIGINT, SIGTERM and SIGKILL until the process exits
func (r *ExecRunner) stop(p *os.Process, done <-chan error) error {
	grace := r.grace()
	for _, sig := range []os.Signal{os.Interrupt, syscall.SIGTERM} {
		if err := p.Signal(sig); err != nil {
			break
		}
		select {
		case err := <-done:
			return err
		case <-time.After(grace):
		}
	}

	_ = p.Kill()
	return <-done
}

// StopWindow is the longest Run takes to return once ctx is cancelled: two
// signal stages, the kill, and WaitDelay for inherited output pipes
func (r *ExecRunner) StopWindow() time.Duration {
	return 3*r.grace() + killSettle
}

func (r *ExecRunner) grace() time.Duration {
	if r.Grace <= 0 {
		return DefaultGrace
	}
	return r.Grace
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// lineWriter tees process output into buf and hands complete lines to emit
type lineWriter struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	partial []byte
	emit    func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.partial[:i]), "\r")
		w.partial = w.partial[i+1:]
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits any trailing line without a newline
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.partial) > 0 {
		line := strings.TrimRight(string(w.partial), "\r")
		w.partial = nil
		w.emit(line)
	}
}
