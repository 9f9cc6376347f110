package synthesis

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResolutionIncomplete is returned when a path is still conflicted
	// after its resolution was applied.
	ErrResolutionIncomplete = errors.New("resolution incomplete")

	// ErrResidualMarkers is returned when resolved content still carries
	// conflict markers.
	ErrResidualMarkers = errors.New("resolved content contains conflict markers")

	// ErrNoResolver is returned when a resolution is requested but no
	// resolver is configured.
	ErrNoResolver = errors.New("no resolver configured")
)

// ResolutionIncompleteError reports a path that stayed conflicted.
type ResolutionIncompleteError struct {
	Path      string
	Remaining []string // every path still conflicted after the re-check
}

func (e *ResolutionIncompleteError) Error() string {
	return fmt.Sprintf("synthesis: %s: %v (remaining: %s)", e.Path, ErrResolutionIncomplete, strings.Join(e.Remaining, ", "))
}

// Is reports whether target is ErrResolutionIncomplete.
func (e *ResolutionIncompleteError) Is(target error) bool {
	return target == ErrResolutionIncomplete
}

// IsResolutionIncomplete returns true if err is ErrResolutionIncomplete.
func IsResolutionIncomplete(err error) bool {
	return errors.Is(err, ErrResolutionIncomplete)
}
