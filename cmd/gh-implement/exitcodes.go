package main

import (
	"errors"
)

// Process exit codes
const (
	// ExitOK means every job completed
	ExitOK = 0
	// ExitFailure means a job failed or was skipped, or the input was bad
	ExitFailure = 1
	// ExitUsage means invalid flags or arguments
	ExitUsage = 2
	// ExitInterrupted means the run was stopped by SIGINT or SIGTERM
	ExitInterrupted = 130
)

// exitError carries an exit code out of a command. A nil err means the
// command already reported what went wrong.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if code == ExitOK && err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func usageError(err error) error {
	return &exitError{code: ExitUsage, err: err}
}

// exitCodeFor maps a command error to the process exit code
func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}
