package dispatch

import (
	"context"
	"fmt"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
)

const (
	defaultAttempts     = 3
	defaultInitialRetry = 200 * time.Millisecond
	defaultMaxRetry     = 5 * time.Second
)

// RetryPolicy describes how many times and how often a worker should retry a
// recoverable failure in place. Zero values are treated as "use defaults".
type RetryPolicy struct {
	// Attempts is the maximum number of tries for a message.
	Attempts int

	// Initial is the first backoff duration.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

func (rp *RetryPolicy) fillDefaults() {
	if rp.Attempts <= 0 {
		rp.Attempts = defaultAttempts
	}
	if rp.Initial <= 0 {
		rp.Initial = defaultInitialRetry
	}
	if rp.Max <= 0 {
		rp.Max = defaultMaxRetry
	}
}

// WithRetry bounds the executor's otherwise endless requeue-and-retry cycle
// for one worker. The wrapped worker retries recoverable failures in place
// with exponential backoff; once attempts are exhausted the failure is
// returned without its Recoverable marker, making it fatal for the message.
//
// Success and fatal failures pass through untouched on the first attempt
// that produces them. Backoff waits are cut short when ctx is cancelled; the
// last failure then comes back unmarked, wrapped with the context error.
func WithRetry[T any](ctx context.Context, pol RetryPolicy, worker Worker[T]) Worker[T] {
	pol.fillDefaults()
	return func(msg T) error {
		bo := boff.New(pol.Initial, pol.Max, time.Now().UnixNano())

		var err error
		for attempt := 1; attempt <= pol.Attempts; attempt++ {
			err = worker(msg)
			if err == nil || !IsRecoverable(err) {
				return err
			}
			if attempt == pol.Attempts {
				break
			}
			timer := time.NewTimer(bo.Next())
			select {
			case <-timer.C:
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C // drain if timer is fired
				}
				return fmt.Errorf("dispatch: retry canceled: %w (last: %w)", ctx.Err(), unmark(err))
			}
		}
		return fmt.Errorf("dispatch: %d attempts exhausted: %w", pol.Attempts, unmark(err))
	}
}
