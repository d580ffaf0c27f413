package sink

import (
	"errors"
	"fmt"
)

// TransientError marks a sink boundary failure that a later retry of the
// whole flush may resolve: rate limiting, network failure, timeout.
//
// The adapter never retries these itself; they propagate unchanged to
// the flush driver so backoff policy stays centralized and auditable.
type TransientError struct {
	Op  string // grid operation that failed ("read_rows", "append_rows", ...)
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient sink failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError for the given operation.
// Returns nil if err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
