package dispatch

import (
	"sync/atomic"
)

// ExecutorStats is a point-in-time snapshot of an executor.
//
// Degree and Usage mirror the loop state; the counters are cumulative.
// Usage can transiently exceed Degree after the ceiling is lowered, since
// in-flight workers run to completion.
type ExecutorStats struct {
	Degree     int
	Usage      int
	RetryQueue int
	Completed  uint64
	Retried    uint64
	Failed     uint64
}

// PoolStats is a point-in-time snapshot of a pool.
type PoolStats struct {
	Capacity  int
	Available int
	Given     int
	Created   uint64
	Disposed  uint64
	Evicted   uint64
}

// execMetrics mirrors executor loop state for cold-path observation.
//
// The loop is the only writer of degree/usage; worker goroutines bump the
// outcome counters. All fields are read lock-free by Stats.
type execMetrics struct {
	degree    atomic.Int64
	usage     atomic.Int64
	completed atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
}

// poolMetrics mirrors pool loop state for cold-path observation.
// Written only by the pool loop.
type poolMetrics struct {
	available atomic.Int64
	given     atomic.Int64
	created   atomic.Uint64
	disposed  atomic.Uint64
	evicted   atomic.Uint64
}
