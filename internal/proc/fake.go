package proc

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner records every command and answers through Handler without
// starting a process. A nil Handler succeeds with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	Handler func(ctx context.Context, cmd Command) Result
}

// Run implements Runner
func (f *FakeRunner) Run(ctx context.Context, cmd Command) Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	handler := f.Handler
	f.mu.Unlock()

	if handler == nil {
		return Result{}
	}
	return handler(ctx, cmd)
}

// Calls returns a copy of the recorded commands
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// CallsMatching returns the recorded commands whose rendered form starts
// with prefix, e.g. "git worktree remove"
func (f *FakeRunner) CallsMatching(prefix string) []Command {
	var out []Command
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}
