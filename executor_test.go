package dispatch

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDegreeCeiling(t *testing.T) {
	src := make(chan int)
	gate := make(chan struct{})

	var started, running, maxSeen atomic.Int32
	worker := func(int) error {
		started.Add(1)
		cur := running.Add(1)
		for {
			m := maxSeen.Load()
			if cur <= m || maxSeen.CompareAndSwap(m, cur) {
				break
			}
		}
		<-gate
		running.Add(-1)
		return nil
	}

	NewExecutor(src, worker, ExecutorOptions[int]{Degree: 2})

	go func() {
		for i := 0; i < 3; i++ {
			src <- i
		}
	}()

	waitFor(t, time.Second, func() bool { return started.Load() == 2 }, "first two workers did not start")

	// the third message must wait for a slot
	time.Sleep(50 * time.Millisecond)
	if got := started.Load(); got != 2 {
		t.Fatalf("started = %d before any completion; want 2", got)
	}

	gate <- struct{}{}
	waitFor(t, time.Second, func() bool { return started.Load() == 3 }, "third worker did not start after a completion")

	gate <- struct{}{}
	gate <- struct{}{}

	if got := maxSeen.Load(); got > 2 {
		t.Fatalf("max concurrent workers = %d; want <= 2", got)
	}
}

func TestRecoverableIsRequeuedUntilSuccess(t *testing.T) {
	src := make(chan string)
	completed := make(chan Completion[string], 1)

	var attempts atomic.Int32
	worker := func(string) error {
		if attempts.Add(1) < 3 {
			return Recoverable(errors.New("transient"))
		}
		return nil
	}

	e := NewExecutor(src, worker, ExecutorOptions[string]{Degree: 1, Completed: completed})
	src <- "msg"

	select {
	case c := <-completed:
		if c.Err != nil {
			t.Fatalf("completion err = %v; want nil", c.Err)
		}
		if c.Msg != "msg" {
			t.Fatalf("completion msg = %q; want %q", c.Msg, "msg")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message did not complete after recoverable failures")
	}

	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d; want 3", got)
	}
	waitFor(t, time.Second, func() bool { return e.Stats().Retried == 2 }, "retried counter did not reach 2")
}

func TestFatalIsTerminal(t *testing.T) {
	src := make(chan int)
	completed := make(chan Completion[int], 1)

	fatal := errors.New("broken payload")
	var attempts atomic.Int32
	worker := func(int) error {
		attempts.Add(1)
		return fatal
	}

	NewExecutor(src, worker, ExecutorOptions[int]{Degree: 1, Completed: completed})
	src <- 7

	select {
	case c := <-completed:
		if !errors.Is(c.Err, fatal) {
			t.Fatalf("completion err = %v; want %v", c.Err, fatal)
		}
	case <-time.After(time.Second):
		t.Fatal("fatal outcome was not reported")
	}

	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d; want 1 (fatal must not retry)", got)
	}
}

func TestWorkerPanicIsFatal(t *testing.T) {
	src := make(chan int)
	completed := make(chan Completion[int], 1)

	NewExecutor(src, func(int) error { panic("boom") }, ExecutorOptions[int]{Degree: 1, Completed: completed})
	src <- 1

	select {
	case c := <-completed:
		if c.Err == nil {
			t.Fatal("completion err = nil; want panic error")
		}
		if IsRecoverable(c.Err) {
			t.Fatalf("panic classified recoverable: %v", c.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("panicking worker was not reported")
	}
}

func TestSetDegreeZeroQuiesces(t *testing.T) {
	src := make(chan int)
	gate := make(chan struct{})

	var started atomic.Int32
	worker := func(int) error {
		started.Add(1)
		<-gate
		return nil
	}

	e := NewExecutor(src, worker, ExecutorOptions[int]{Degree: 2})

	go func() { src <- 1; src <- 2 }()
	waitFor(t, time.Second, func() bool { return started.Load() == 2 }, "two workers did not start")

	e.SetDegree(0)

	// in-flight workers run to completion; usage transiently exceeds degree
	close(gate)
	waitFor(t, time.Second, func() bool { return e.Usage() == 0 }, "usage did not drain to 0")

	go func() { src <- 3 }()
	time.Sleep(50 * time.Millisecond)
	if got := started.Load(); got != 2 {
		t.Fatalf("started = %d while degree is 0; want 2", got)
	}

	e.SetDegree(1)
	waitFor(t, time.Second, func() bool { return started.Load() == 3 }, "dispatch did not resume after raising degree")

	if got := e.Degree(); got != 1 {
		t.Fatalf("degree = %d; want 1", got)
	}
	if got := e.Usage(); got < 0 {
		t.Fatalf("usage = %d; want >= 0", got)
	}
}

func TestSuccessReachesSink(t *testing.T) {
	src := make(chan int)
	completed := make(chan Completion[int], 4)

	NewExecutor(src, func(int) error { return nil }, ExecutorOptions[int]{Degree: 2, Completed: completed})

	go func() {
		for i := 0; i < 4; i++ {
			src <- i
		}
	}()

	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		select {
		case c := <-completed:
			if c.Err != nil {
				t.Fatalf("completion err = %v; want nil", c.Err)
			}
			seen[c.Msg] = true
		case <-time.After(time.Second):
			t.Fatalf("only %d of 4 completions arrived", i)
		}
	}
	if len(seen) != 4 {
		t.Fatalf("distinct completed messages = %d; want 4", len(seen))
	}
}

func TestExecutorDefaults(t *testing.T) {
	var o ExecutorOptions[int]
	o.FillDefaults()
	if o.Degree <= 0 {
		t.Fatal("expected Degree to be set by FillDefaults")
	}
	if o.Ctx == nil {
		t.Fatal("expected Ctx to be set by FillDefaults")
	}
}
