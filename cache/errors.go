package cache

import (
	"errors"
	"fmt"
)

// ErrUnavailable reports that the shared key-value store could not be reached
// (or did not answer within the operation timeout).
var ErrUnavailable = errors.New("cache: store unavailable")

// OpError describes a failed backend operation. It unwraps to both
// ErrUnavailable and the underlying transport error.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}
