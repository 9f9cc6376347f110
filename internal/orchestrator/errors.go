package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrPrerequisiteMissing is returned when re-entering the workflow at
	// a phase whose inputs were never produced.
	ErrPrerequisiteMissing = errors.New("prerequisite missing")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PrerequisiteError names the artifact a phase found missing.
type PrerequisiteError struct {
	Phase    Phase
	Artifact string // e.g. "workspace ws-codex"
	Path     string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("phase %d (%s): %v: %s at %s", int(e.Phase), e.Phase, ErrPrerequisiteMissing, e.Artifact, e.Path)
}

// Is reports whether target is ErrPrerequisiteMissing.
func (e *PrerequisiteError) Is(target error) bool {
	return target == ErrPrerequisiteMissing
}

// IsPrerequisiteMissing returns true if err is ErrPrerequisiteMissing.
func IsPrerequisiteMissing(err error) bool {
	return errors.Is(err, ErrPrerequisiteMissing)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
