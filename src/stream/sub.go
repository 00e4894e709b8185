// Package stream holds the snapshot-subscription plumbing the realtime
// core is built on. Every subscription delivers the complete current
// result set on each update, never a delta; consumers that need deltas
// diff against their own seen state.
package stream

import "sync"

// Sub is a live subscription carrying full-result-set snapshots.
// Delivery is conflated: if the consumer lags, intermediate snapshots
// are dropped and only the latest is kept, which is safe because every
// snapshot is the whole current state.
//
// Cancel must be called exactly once by the owner; it tears down the
// underlying source transitively. The updates channel is not closed on
// cancel, consumers select on Done instead.
type Sub[T any] struct {
	ch     chan []T
	done   chan struct{}
	once   sync.Once
	cancel func()
}

// NewSub builds a subscription whose Cancel runs the given teardown.
// A nil teardown is allowed; SetCancel may install one later, before
// the sub is handed to a consumer.
func NewSub[T any](cancel func()) *Sub[T] {
	return &Sub[T]{
		ch:     make(chan []T, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Updates returns the snapshot channel.
func (s *Sub[T]) Updates() <-chan []T { return s.ch }

// Done is closed when the subscription is cancelled.
func (s *Sub[T]) Done() <-chan struct{} { return s.done }

// SetCancel installs the teardown func. Only valid before the sub is
// shared with consumers.
func (s *Sub[T]) SetCancel(cancel func()) { s.cancel = cancel }

// Cancel tears the subscription down. Safe to call more than once, the
// teardown runs exactly once.
func (s *Sub[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Publish hands a snapshot to the consumer, replacing any undelivered
// previous one. Publishers must be single-goroutine per sub. Publishing
// after cancel is a no-op.
func (s *Sub[T]) Publish(snapshot []T) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- snapshot:
			return
		default:
		}
		// Channel full: drop the stale snapshot and retry.
		select {
		case <-s.ch:
		default:
		}
	}
}
