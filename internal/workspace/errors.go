package workspace

import "errors"

var (
	// ErrSpecificationNotFound is returned when the specification file
	// does not exist.
	ErrSpecificationNotFound = errors.New("specification not found")

	// ErrBaselineNotFound is returned when no recorded baseline exists in
	// the repository history.
	ErrBaselineNotFound = errors.New("baseline revision not found")
)

// IsSpecificationNotFound returns true if err is ErrSpecificationNotFound.
func IsSpecificationNotFound(err error) bool {
	return errors.Is(err, ErrSpecificationNotFound)
}

// IsBaselineNotFound returns true if err is ErrBaselineNotFound.
func IsBaselineNotFound(err error) bool {
	return errors.Is(err, ErrBaselineNotFound)
}
