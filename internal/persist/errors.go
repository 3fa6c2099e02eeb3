package persist

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInProgress is returned when a save or restore is already running.
	ErrAlreadyInProgress = errors.New("save already in progress")
	// ErrInvalidTarget is returned for a destination rejected by the path policy.
	ErrInvalidTarget = errors.New("invalid target path")
	// ErrDirectory is returned when the destination directory cannot be prepared.
	ErrDirectory = errors.New("cannot prepare directory")
	// ErrPartialFailure is returned when at least one table failed and the
	// others were still processed.
	ErrPartialFailure = errors.New("one or more tables failed")
	// ErrUnsupportedVersion is returned by DefaultSavePath for IP versions
	// other than 4.
	ErrUnsupportedVersion = errors.New("unsupported ip version")
)

// TableError records the failure of one table.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func invalidTarget(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidTarget, path, reason)
}
