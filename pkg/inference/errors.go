package inference

import (
	"errors"
	"fmt"
)

// ErrServiceUnavailable matches every failure to reach the inference
// service or to make sense of its reply.
var ErrServiceUnavailable = errors.New("inference service unavailable")

// UnavailableError carries the detail behind ErrServiceUnavailable
type UnavailableError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", ErrServiceUnavailable, e.Message, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", ErrServiceUnavailable, e.Message, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

func (e *UnavailableError) Is(target error) bool { return target == ErrServiceUnavailable }

// IsServiceUnavailable reports whether err signals an offline backend
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
