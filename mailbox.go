package dispatch

import (
	"sync/atomic"

	"github.com/eapache/queue"
)

// mailbox is an unbounded FIFO connecting worker goroutines back to the
// executor loop. Put never blocks the sender for longer than the pump takes
// to buffer the value; the loop drains via out.
//
// The ring buffer is owned exclusively by the pump goroutine. Producers and
// the consumer only ever touch the two rendezvous channels.
type mailbox[T any] struct {
	in   chan T
	out  chan T
	size atomic.Int64
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go m.pump()
	return m
}

// put appends v to the tail of the mailbox.
func (m *mailbox[T]) put(v T) {
	m.in <- v
	m.size.Add(1)
}

// len returns the number of buffered values. The count is a snapshot; it may
// lag the pump by one value.
func (m *mailbox[T]) len() int {
	return int(m.size.Load())
}

// pump shuttles values from in to out through an unbounded ring. It runs for
// the life of the process, like the loop it feeds.
func (m *mailbox[T]) pump() {
	buf := queue.New()
	for {
		if buf.Length() == 0 {
			buf.Add(<-m.in)
			continue
		}
		select {
		case v := <-m.in:
			buf.Add(v)
		case m.out <- buf.Peek().(T):
			buf.Remove()
			m.size.Add(-1)
		}
	}
}
