package call

import (
	"context"
	"sync"
)

// oneshot is a single-value delivery slot. deliver and discard may race
// from different tasks; whichever wins, the receiver observes exactly
// one of: the value, or a discarded slot.
type oneshot[T any] struct {
	mu        sync.Mutex
	ch        chan T
	delivered bool
	discarded bool
}

func newOneshot[T any]() *oneshot[T] {
	return &oneshot[T]{ch: make(chan T, 1)}
}

// deliver places the value for the future to pick up. Best effort: a
// second delivery or a delivery after discard is silently dropped.
func (o *oneshot[T]) deliver(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.delivered || o.discarded {
		return
	}
	o.delivered = true
	o.ch <- v
}

// discard invalidates the slot; a future blocked on it unblocks with
// ErrAttemptDiscarded. An already-delivered value stays readable.
func (o *oneshot[T]) discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.discarded {
		return
	}
	o.discarded = true
	close(o.ch)
}

func (o *oneshot[T]) future() *Future[T] {
	return &Future[T]{ch: o.ch}
}

// Future is the caller-held side of an attempt's outcome. Dropping it
// has no effect on the attempt; the sink stays live until the attempt
// is replaced or cleared.
type Future[T any] struct {
	ch <-chan T
}

// Await blocks until the outcome is delivered, the attempt is
// discarded, or ctx ends. Callers must not hold the lock guarding the
// call across this wait.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-f.ch:
		if !ok {
			return zero, ErrAttemptDiscarded
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
