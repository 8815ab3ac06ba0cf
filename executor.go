package dispatch

import (
	"context"

	lg "github.com/Andrej220/go-utils/zlog"
)

// Worker processes one message. A nil return is a terminal success. An error
// wrapped with Recoverable requeues the message for another attempt; any
// other error is fatal for that message.
type Worker[T any] func(T) error

// Executor pulls messages from a source and runs at most degree worker
// invocations concurrently.
//
// All scheduling state, the pair (degree, usage), is owned by a single
// supervisor goroutine. Workers run in their own goroutines and report back
// over channels, so the supervisor never blocks on user code and the state
// needs no locks. Recoverably failed messages are requeued through an
// unbounded mailbox and redispatched alongside the source, with no backoff
// and no attempt cap; see WithRetry for bounding attempts inside the worker.
//
// An executor has no stop operation. It is built once and lives for the
// process, like the loop it supervises.
type Executor[T any] struct {
	source    <-chan T
	worker    Worker[T]
	completed chan<- Completion[T]
	ctx       context.Context

	degreeCh chan int
	doneCh   chan struct{}
	retry    *mailbox[T]

	metrics execMetrics
}

// NewExecutor starts a supervisor for source and worker.
// Panics if source or worker is nil.
func NewExecutor[T any](source <-chan T, worker Worker[T], opts ExecutorOptions[T]) *Executor[T] {
	if source == nil {
		panic("dispatch: source must not be nil")
	}
	if worker == nil {
		panic("dispatch: worker must not be nil")
	}
	opts.FillDefaults()

	e := &Executor[T]{
		source:    source,
		worker:    worker,
		completed: opts.Completed,
		ctx:       opts.Ctx,
		degreeCh:  make(chan int),
		doneCh:    make(chan struct{}),
		retry:     newMailbox[T](),
	}
	e.metrics.degree.Store(int64(opts.Degree))
	go e.loop(opts.Degree)
	return e
}

// SetDegree hands a new concurrency ceiling to the supervisor. The call
// returns once the loop has taken the value. Lowering the ceiling never
// cancels in-flight workers; usage drains back under the new degree as they
// finish. Negative values are clamped to zero.
func (e *Executor[T]) SetDegree(n int) {
	if n < 0 {
		n = 0
	}
	e.degreeCh <- n
}

// Degree returns the current concurrency ceiling.
func (e *Executor[T]) Degree() int { return int(e.metrics.degree.Load()) }

// Usage returns the number of worker invocations currently in flight.
func (e *Executor[T]) Usage() int { return int(e.metrics.usage.Load()) }

// Stats returns a snapshot of the executor's counters.
func (e *Executor[T]) Stats() ExecutorStats {
	return ExecutorStats{
		Degree:     int(e.metrics.degree.Load()),
		Usage:      int(e.metrics.usage.Load()),
		RetryQueue: e.retry.len(),
		Completed:  e.metrics.completed.Load(),
		Retried:    e.metrics.retried.Load(),
		Failed:     e.metrics.failed.Load(),
	}
}

// loop is the supervisor. One iteration handles exactly one event; dispatch
// is only offered while usage is under the ceiling, which is the whole
// backpressure mechanism. Usage is reserved before the worker starts, not on
// completion, so the ceiling holds even while workers are still spinning up.
func (e *Executor[T]) loop(degree int) {
	usage := 0
	for {
		if usage < degree {
			select {
			case d := <-e.degreeCh:
				degree = d
				e.metrics.degree.Store(int64(degree))
				lg.FromContext(e.ctx).Info("degree changed",
					lg.Int("degree", degree),
					lg.Int("usage", usage),
				)
			case <-e.doneCh:
				usage--
			case msg := <-e.source:
				usage++
				go e.run(msg)
			case msg := <-e.retry.out:
				usage++
				go e.run(msg)
			}
		} else {
			select {
			case d := <-e.degreeCh:
				degree = d
				e.metrics.degree.Store(int64(degree))
				lg.FromContext(e.ctx).Info("degree changed",
					lg.Int("degree", degree),
					lg.Int("usage", usage),
				)
			case <-e.doneCh:
				usage--
			}
		}
		e.metrics.usage.Store(int64(usage))
	}
}

// run executes one worker invocation. Requeueing and sink publication happen
// here, off the supervisor; the completion signal is sent last and
// unconditionally.
func (e *Executor[T]) run(msg T) {
	defer func() { e.doneCh <- struct{}{} }()

	err := e.invoke(msg)
	switch {
	case err == nil:
		e.metrics.completed.Add(1)
		e.report(msg, nil)
	case IsRecoverable(err):
		e.metrics.retried.Add(1)
		lg.FromContext(e.ctx).Warn("worker failed; requeueing",
			lg.Any("msg", msg),
			lg.Any("error", err),
		)
		e.retry.put(msg)
	default:
		e.metrics.failed.Add(1)
		lg.FromContext(e.ctx).Error("worker failed",
			lg.Any("msg", msg),
			lg.Any("error", err),
		)
		e.report(msg, err)
	}
}

func (e *Executor[T]) invoke(msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = guard(r)
		}
	}()
	return e.worker(msg)
}

func (e *Executor[T]) report(msg T, err error) {
	if e.completed == nil {
		return
	}
	e.completed <- Completion[T]{Msg: msg, Err: err}
}
