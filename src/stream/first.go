package stream

import (
	"context"
	"errors"
)

// ErrClosed reports a subscription that ended before delivering a
// snapshot.
var ErrClosed = errors.New("stream: subscription closed before first snapshot")

// First waits for the subscription's next snapshot, then cancels it.
// Request/response reads go through the same watch path the live
// subscriptions use, so both always agree on query semantics.
func First[T any](ctx context.Context, sub *Sub[T]) ([]T, error) {
	defer sub.Cancel()
	select {
	case snap := <-sub.Updates():
		return snap, nil
	case <-sub.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
