package app

import (
	"context"
	"errors"
	"fmt"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitUserError   = 1
	ExitEnvError    = 2
	ExitInterrupted = 130
)

// UserError is a bad flag value or combination, reported before any
// process is scanned.
type UserError struct {
	Err error
}

func (e *UserError) Error() string { return e.Err.Error() }
func (e *UserError) Unwrap() error { return e.Err }

func userErrorf(format string, args ...any) error {
	return &UserError{Err: fmt.Errorf(format, args...)}
}

// EnvError means the host cannot be inspected at all, e.g. the diagnostic
// root is missing.
type EnvError struct {
	Err error
}

func (e *EnvError) Error() string { return e.Err.Error() }
func (e *EnvError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by the command to a process exit code.
// Errors raised by flag parsing itself are user errors.
func ExitCode(err error) int {
	var envErr *EnvError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &envErr):
		return ExitEnvError
	}
	return ExitUserError
}
