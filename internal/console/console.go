// Package console serializes progress and warning output from concurrent
// workers so lines never interleave.
package console

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Console writes progress to out and warnings to errOut
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	verbose bool
	debug   *log.Logger
}

// New returns a Console writing to the given streams
func New(out, errOut io.Writer) *Console {
	return &Console{
		out:    out,
		errOut: errOut,
		debug:  log.New(errOut, "", log.Ltime),
	}
}

// Std returns a Console on stdout and stderr
func Std() *Console {
	return New(os.Stdout, os.Stderr)
}

// Discard returns a Console that drops everything
func Discard() *Console {
	return New(io.Discard, io.Discard)
}

// SetVerbose enables Debugf output
func (c *Console) SetVerbose(v bool) {
	c.mu.Lock()
	c.verbose = v
	c.mu.Unlock()
}

// Printf writes a progress line
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, ensureNewline(format), args...)
}

// Println writes a blank line or the given values
func (c *Console) Println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// Warnf writes a "Warning:" line to the error stream
func (c *Console) Warnf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.errOut, "Warning: "+ensureNewline(format), args...)
}

// Errorf writes an "Error:" line to the error stream
func (c *Console) Errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.errOut, "Error: "+ensureNewline(format), args...)
}

// Debugf logs a "[component] ..." line when verbose output is enabled
func (c *Console) Debugf(component, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.verbose {
		return
	}
	c.debug.Printf("[%s] %s", component, fmt.Sprintf(format, args...))
}

// Write lets a Console serve as an io.Writer for block output such as the
// final report
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func ensureNewline(format string) string {
	if strings.HasSuffix(format, "\n") {
		return format
	}
	return format + "\n"
}
