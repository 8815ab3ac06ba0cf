package dispatch

import (
	"context"
	"io"
	"sync"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// Factory creates a fresh poolable instance on demand.
type Factory[T any] func() (T, error)

// entry is one pooled instance. The id is the entry's identity: expiry
// checks must match the exact instance they were scheduled for, and pooled
// values may compare equal without being the same instance.
type entry[T any] struct {
	id       uint64
	value    T
	lastUsed time.Time
}

type poolReq[T any] struct {
	ctx   context.Context
	reply chan poolResp[T]
}

type poolResp[T any] struct {
	ent *entry[T]
	err error
}

// Pool is a bounded, lease-based object pool with idle eviction.
//
// At most Capacity instances exist at once, leased plus idle. A supervisor
// goroutine owns the pair (available, given) and serializes every
// transition; callers talk to it over channels only. Requests are offered by
// the loop only while given is under capacity, so a caller at the limit
// simply waits for a release or an abandoned request.
//
// Instances idle longer than IdleTimeout are disposed. Disposal failures are
// swallowed so one misbehaving instance cannot stall eviction or shutdown.
type Pool[T any] struct {
	newFn     Factory[T]
	disposeFn func(T)
	capacity  int
	idle      time.Duration
	ctx       context.Context

	acquireCh chan poolReq[T]
	releaseCh chan *entry[T]
	expireCh  chan uint64
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneCh    chan struct{}

	metrics poolMetrics
}

// poolState is the supervisor's private state. available is kept as a stack:
// releases push, requests pop the most recently used instance, leaving cold
// ones to age out.
type poolState[T any] struct {
	available []*entry[T]
	given     int
	lastID    uint64
}

// NewPool starts a pool around newFn. Panics if newFn is nil.
func NewPool[T any](newFn Factory[T], opts PoolOptions[T]) *Pool[T] {
	if newFn == nil {
		panic("dispatch: factory must not be nil")
	}
	opts.FillDefaults()

	p := &Pool[T]{
		newFn:     newFn,
		disposeFn: opts.Dispose,
		capacity:  opts.Capacity,
		idle:      opts.IdleTimeout,
		ctx:       opts.Ctx,
		acquireCh: make(chan poolReq[T]),
		releaseCh: make(chan *entry[T]),
		expireCh:  make(chan uint64),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// With acquires an instance, runs fn on it, and returns the instance to the
// pool on every exit path. An error or panic in fn becomes the returned
// error; the instance is still released normally. If acquisition itself
// fails, that error is returned and nothing was leased.
func (p *Pool[T]) With(ctx context.Context, fn func(T) error) error {
	ent, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(ent)
	return runScoped(fn, ent.value)
}

// WithAsync runs With on its own goroutine and delivers the result on the
// returned channel. The channel is buffered, so the result is never stranded
// if the caller stops listening.
func (p *Pool[T]) WithAsync(ctx context.Context, fn func(T) error) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- p.With(ctx, fn) }()
	return errCh
}

// Dispose triggers shutdown and returns immediately. Calling it again is a
// no-op.
func (p *Pool[T]) Dispose() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Shutdown triggers shutdown and waits for the drain: every idle instance is
// disposed up front, then every leased instance as it is returned. Returns
// early with the context error if ctx expires first; the drain itself keeps
// going.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.Dispose()
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the shutdown drain has finished.
func (p *Pool[T]) Done() <-chan struct{} { return p.doneCh }

// Capacity returns the pool's instance bound.
func (p *Pool[T]) Capacity() int { return p.capacity }

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Capacity:  p.capacity,
		Available: int(p.metrics.available.Load()),
		Given:     int(p.metrics.given.Load()),
		Created:   p.metrics.created.Load(),
		Disposed:  p.metrics.disposed.Load(),
		Evicted:   p.metrics.evicted.Load(),
	}
}

// acquire runs the request protocol: hand the loop a reply channel, then
// race the reply against ctx. The loop races the same ctx on its side, so an
// abandoned wait can never strand an instance.
func (p *Pool[T]) acquire(ctx context.Context) (*entry[T], error) {
	req := poolReq[T]{ctx: ctx, reply: make(chan poolResp[T])}
	select {
	case p.acquireCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopCh:
		return nil, ErrPoolClosed
	}
	select {
	case resp := <-req.reply:
		return resp.ent, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release hands a leased entry back to the loop. The loop (or its drain)
// always accepts, so release never fails.
func (p *Pool[T]) release(ent *entry[T]) {
	p.releaseCh <- ent
}

// loop is the supervisor. One iteration handles exactly one event. The
// request event is withheld whenever given has reached capacity; releases,
// expiry checks and shutdown stay eligible throughout.
func (p *Pool[T]) loop() {
	var st poolState[T]
	for {
		if st.given < p.capacity {
			select {
			case ent := <-p.releaseCh:
				p.reclaim(&st, ent)
			case id := <-p.expireCh:
				p.expire(&st, id)
			case <-p.stopCh:
				p.drain(&st)
				return
			case req := <-p.acquireCh:
				p.serve(&st, req)
			}
		} else {
			select {
			case ent := <-p.releaseCh:
				p.reclaim(&st, ent)
			case id := <-p.expireCh:
				p.expire(&st, id)
			case <-p.stopCh:
				p.drain(&st)
				return
			}
		}
		p.metrics.available.Store(int64(len(st.available)))
		p.metrics.given.Store(int64(st.given))
	}
}

// serve satisfies one request: reuse the newest idle instance or create one,
// then race the reply against the requester's cancellation. On cancellation
// the instance goes straight back to available; given is untouched.
func (p *Pool[T]) serve(st *poolState[T], req poolReq[T]) {
	var ent *entry[T]
	if n := len(st.available); n > 0 {
		ent = st.available[n-1]
		st.available = st.available[:n-1]
	} else {
		v, err := p.create()
		if err != nil {
			lg.FromContext(p.ctx).Error("instance creation failed",
				lg.Any("error", err),
			)
			select {
			case req.reply <- poolResp[T]{err: err}:
			case <-req.ctx.Done():
			}
			return
		}
		st.lastID++
		ent = &entry[T]{id: st.lastID, value: v, lastUsed: time.Now()}
		p.metrics.created.Add(1)
	}

	select {
	case req.reply <- poolResp[T]{ent: ent}:
		st.given++
	case <-req.ctx.Done():
		st.available = append(st.available, ent)
	}
}

// reclaim handles a release: restamp, schedule the delayed expiry check for
// this exact entry, and put it back on the stack.
func (p *Pool[T]) reclaim(st *poolState[T], ent *entry[T]) {
	ent.lastUsed = time.Now()
	st.available = append(st.available, ent)
	st.given--
	p.scheduleExpiry(ent.id)
}

// expire handles a delayed check. The entry must still be present under the
// same id and must still have been idle past the threshold; a reused and
// re-released entry was restamped, so the stale check is a no-op.
func (p *Pool[T]) expire(st *poolState[T], id uint64) {
	for i, ent := range st.available {
		if ent.id != id {
			continue
		}
		if time.Since(ent.lastUsed) >= p.idle {
			st.available = append(st.available[:i], st.available[i+1:]...)
			p.dispose(ent.value)
			p.metrics.evicted.Add(1)
		}
		return
	}
}

// drain replaces the loop once shutdown fires: dispose everything idle, then
// dispose exactly given more instances as their leases come back. Stale
// expiry checks are swallowed so pending timers cannot wedge.
func (p *Pool[T]) drain(st *poolState[T]) {
	log := lg.FromContext(p.ctx)
	log.Info("pool draining",
		lg.Int("available", len(st.available)),
		lg.Int("given", st.given),
	)

	for _, ent := range st.available {
		p.dispose(ent.value)
	}
	st.available = nil

	for st.given > 0 {
		select {
		case ent := <-p.releaseCh:
			p.dispose(ent.value)
			st.given--
		case <-p.expireCh:
		}
	}

	p.metrics.available.Store(0)
	p.metrics.given.Store(0)
	close(p.doneCh)
	log.Info("pool drained")
}

func (p *Pool[T]) scheduleExpiry(id uint64) {
	time.AfterFunc(p.idle, func() {
		select {
		case p.expireCh <- id:
		case <-p.doneCh:
		}
	})
}

func (p *Pool[T]) create() (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = guard(r)
		}
	}()
	return p.newFn()
}

// dispose releases one instance. Errors and panics are swallowed; a
// misbehaving instance must not take the supervisor down with it.
func (p *Pool[T]) dispose(v T) {
	p.metrics.disposed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			lg.FromContext(p.ctx).Warn("instance disposal panicked",
				lg.Any("panic", r),
			)
		}
	}()
	if p.disposeFn != nil {
		p.disposeFn(v)
		return
	}
	if c, ok := any(v).(io.Closer); ok {
		if err := c.Close(); err != nil {
			lg.FromContext(p.ctx).Warn("instance close failed",
				lg.Any("error", err),
			)
		}
	}
}

func runScoped[T any](fn func(T) error, v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = guard(r)
		}
	}()
	return fn(v)
}
