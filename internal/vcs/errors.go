package vcs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOperationFailed matches every non-zero exit of the jj binary.
	ErrOperationFailed = errors.New("vcs: operation failed")

	// ErrAlreadyInitialized is returned by Init when the directory already
	// holds a repository.
	ErrAlreadyInitialized = errors.New("vcs: repository already initialized")

	// ErrRevisionNotFound is returned when a revset resolves to nothing.
	ErrRevisionNotFound = errors.New("vcs: revision not found")
)

// OperationError describes a failed jj invocation. It matches
// ErrOperationFailed under errors.Is.
type OperationError struct {
	Command  []string
	Dir      string
	Stderr   string
	ExitCode int
	Err      error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("vcs: %s in %s: exit %d: %s", strings.Join(e.Command, " "), e.Dir, e.ExitCode, msg)
}

// Is reports whether target is ErrOperationFailed.
func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

// Unwrap returns the underlying exec error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsAlreadyInitialized returns true if err is ErrAlreadyInitialized.
func IsAlreadyInitialized(err error) bool {
	return errors.Is(err, ErrAlreadyInitialized)
}

// stderrContains reports whether err is an OperationError whose stderr
// contains substr (case-insensitive).
func stderrContains(err error, substr string) bool {
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return false
	}
	return strings.Contains(strings.ToLower(opErr.Stderr), strings.ToLower(substr))
}
