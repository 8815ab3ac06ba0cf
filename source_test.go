package dispatch

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestThrottleRelaysEverything(t *testing.T) {
	src := make(chan int, 10)
	for i := 0; i < 10; i++ {
		src <- i
	}
	close(src)

	out := Throttle(context.Background(), src, rate.NewLimiter(rate.Inf, 0))

	for i := 0; i < 10; i++ {
		select {
		case v, ok := <-out:
			if !ok {
				t.Fatalf("out closed after %d values; want 10", i)
			}
			if v != i {
				t.Fatalf("out[%d] = %d; want %d", i, v, i)
			}
		case <-time.After(time.Second):
			t.Fatal("throttled source stalled")
		}
	}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("out produced an extra value")
		}
	case <-time.After(time.Second):
		t.Fatal("out did not close after src closed")
	}
}

func TestThrottleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan int, 2)
	src <- 1
	src <- 2

	// burst 1: the first value passes, the second waits an hour
	out := Throttle(ctx, src, rate.NewLimiter(rate.Every(time.Hour), 1))

	select {
	case v := <-out:
		if v != 1 {
			t.Fatalf("first value = %d; want 1", v)
		}
	case <-time.After(time.Second):
		t.Fatal("first value did not pass the limiter burst")
	}

	cancel()
	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("out produced a value after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("out did not close after cancel")
	}
}
