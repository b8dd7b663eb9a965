package registry

import (
	"errors"
	"fmt"
)

// IncompleteError reports that an artifact could not be resolved yet
// because it references something not registered so far. It is a
// recoverable condition: the owner is re-queued and retried after later
// documents load.
type IncompleteError struct {
	Missing string
	Cause   error
}

func (e *IncompleteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("missing %s: %v", e.Missing, e.Cause)
	}
	return "missing " + e.Missing
}

func (e *IncompleteError) Unwrap() error { return e.Cause }

// Incompletef builds an IncompleteError with a formatted description of
// the missing dependency.
func Incompletef(format string, args ...any) error {
	return &IncompleteError{Missing: fmt.Sprintf(format, args...)}
}

// IsIncomplete reports whether err is, or wraps, an IncompleteError.
func IsIncomplete(err error) bool {
	var ie *IncompleteError
	return errors.As(err, &ie)
}
