package dispatch

import (
	"context"
	"runtime"
	"time"
)

const (
	// DefaultCapacity bounds a pool when Options leave Capacity unset.
	DefaultCapacity = 50

	// DefaultIdleTimeout is how long a pooled instance may sit unused
	// before the eviction check disposes it.
	DefaultIdleTimeout = time.Minute
)

// ExecutorOptions configure an Executor.
//
// All zero values are replaced with sensible defaults in FillDefaults.
type ExecutorOptions[T any] struct {
	// Degree is the initial concurrency ceiling. Defaults to GOMAXPROCS.
	Degree int

	// Completed, if non-nil, receives every terminal outcome: successes
	// and fatal failures. The executor assumes the sink keeps up; sends
	// are made from worker goroutines, never from the loop.
	Completed chan<- Completion[T]

	// Ctx carries the logger used by the executor. Defaults to
	// context.Background().
	Ctx context.Context
}

func (o *ExecutorOptions[T]) FillDefaults() {
	if o.Degree <= 0 {
		o.Degree = runtime.GOMAXPROCS(0)
	}
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
}

// PoolOptions configure a Pool.
//
// All zero values are replaced with sensible defaults in FillDefaults.
type PoolOptions[T any] struct {
	// Capacity is the maximum number of instances alive at once, leased
	// plus idle. Defaults to DefaultCapacity.
	Capacity int

	// IdleTimeout is how long an instance may stay unused in the pool
	// before it is disposed. Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Dispose releases an instance. When nil, instances implementing
	// io.Closer are closed; anything else is dropped for the GC.
	Dispose func(T)

	// Ctx carries the logger used by the pool. Defaults to
	// context.Background().
	Ctx context.Context
}

func (o *PoolOptions[T]) FillDefaults() {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
}
