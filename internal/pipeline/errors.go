package pipeline

import (
	"errors"
	"fmt"
)

// IntegrityError is a failure to read or write a document. It aborts the run
// because no safe partial state exists; the previous local copy is left as it
// was.
type IntegrityError struct {
	// Op is the failed step, e.g. "read master" or "write local".
	Op string

	// Location is the document involved.
	Location string

	Err error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s %s: %v", e.Op, e.Location, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrityError reports whether err is or wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
