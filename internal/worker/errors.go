package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrHandoffFailed is returned when a worker could not be handed its
	// assignment or reported failure.
	ErrHandoffFailed = errors.New("worker handoff failed")

	// ErrAborted is returned when the operator aborts while trident waits
	// for an interactive worker.
	ErrAborted = errors.New("aborted by operator")
)

// HandoffError reports a failed handoff to one worker.
type HandoffError struct {
	Worker   string
	ExitCode int // process exit status; -1 when not applicable
	Err      error
}

func (e *HandoffError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("worker %s: %v (exit %d): %v", e.Worker, ErrHandoffFailed, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("worker %s: %v: %v", e.Worker, ErrHandoffFailed, e.Err)
}

// Is reports whether target is ErrHandoffFailed.
func (e *HandoffError) Is(target error) bool {
	return target == ErrHandoffFailed
}

func (e *HandoffError) Unwrap() error {
	return e.Err
}

// IsHandoffFailed returns true if err is ErrHandoffFailed.
func IsHandoffFailed(err error) bool {
	return errors.Is(err, ErrHandoffFailed)
}
