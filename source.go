package dispatch

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle relays messages from src at the pace allowed by lim, for feeding
// an Executor from a producer that must not be drained at full speed.
//
// The returned channel closes when src closes or ctx is cancelled. A message
// already taken from src when ctx fires is dropped with the rest of the
// stream; Throttle makes no delivery guarantee past cancellation.
func Throttle[T any](ctx context.Context, src <-chan T, lim *rate.Limiter) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			var v T
			var ok bool
			select {
			case v, ok = <-src:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			if err := lim.Wait(ctx); err != nil {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
