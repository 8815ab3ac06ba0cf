package dispatch

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by pool operations after shutdown has been
// triggered.
var ErrPoolClosed = errors.New("dispatch: pool closed")

// Completion is delivered to an executor's completed sink for every terminal
// outcome. Err is nil on success and carries the fatal error otherwise.
// Recoverable failures are requeued internally and never reach the sink.
type Completion[T any] struct {
	Msg T
	Err error
}

// recoverableError marks an error as retryable. The executor requeues the
// message instead of reporting it.
type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string { return "recoverable: " + e.err.Error() }

func (e *recoverableError) Unwrap() error { return e.err }

// Recoverable wraps err so the executor treats the failure as transient and
// redispatches the message. Wrapping nil returns nil.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverable reports whether err (or anything it wraps) was marked with
// Recoverable.
func IsRecoverable(err error) bool {
	var r *recoverableError
	return errors.As(err, &r)
}

// unmark strips the outermost Recoverable marker, returning the underlying
// cause. Non-marked errors are returned unchanged.
func unmark(err error) error {
	var r *recoverableError
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

// guard converts a recovered panic value into an error.
func guard(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("dispatch: panic: %w", err)
	}
	return fmt.Errorf("dispatch: panic: %v", r)
}
