package mongodb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

// fakeStream stands in for a change stream: one value per queued event,
// ending when the events channel closes or the context is cancelled.
type fakeStream struct {
	events chan struct{}
	closed atomic.Bool
}

func (f *fakeStream) Next(ctx context.Context) bool {
	select {
	case _, ok := <-f.events:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (f *fakeStream) Err() error { return nil }

func (f *fakeStream) Close(context.Context) error {
	f.closed.Store(true)
	return nil
}

func recvSnapshot(t *testing.T, sub *stream.Sub[string]) []string {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

// A write committing between the stream being established and the
// initial query must appear in the first published snapshot. With the
// reverse order (query first, then open the stream) that write would
// produce no event and no requery, leaving the subscriber stale until
// some unrelated later mutation.
func TestWatchCycleOpensStreamBeforeInitialQuery(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var table []string
	events := make(chan struct{}, 4)

	open := func(context.Context) (changeEvents, error) {
		mu.Lock()
		calls = append(calls, "open")
		table = append(table, "committed-in-gap")
		mu.Unlock()
		return &fakeStream{events: events}, nil
	}
	fetch := func(context.Context) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "query")
		return append([]string(nil), table...), nil
	}

	sub := stream.NewSub[string](nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchCycle(ctx, zap.NewNop(), "connections", open, fetch, sub)
	}()

	snap := recvSnapshot(t, sub)
	assert.Equal(t, []string{"committed-in-gap"}, snap,
		"the initial snapshot covers everything committed before it ran")

	mu.Lock()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, []string{"open", "query"}, calls[:2],
		"the stream must exist before the initial query runs")
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch cycle did not stop on cancel")
	}
}

func TestWatchCycleRequeriesOnEvent(t *testing.T) {
	var mu sync.Mutex
	table := []string{"existing"}
	events := make(chan struct{}, 1)

	open := func(context.Context) (changeEvents, error) {
		return &fakeStream{events: events}, nil
	}
	fetch := func(context.Context) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), table...), nil
	}

	sub := stream.NewSub[string](nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchCycle(ctx, zap.NewNop(), "messages", open, fetch, sub)

	require.Equal(t, []string{"existing"}, recvSnapshot(t, sub))

	mu.Lock()
	table = append(table, "fresh")
	mu.Unlock()
	events <- struct{}{}

	require.Eventually(t, func() bool {
		select {
		case snap := <-sub.Updates():
			return len(snap) == 2
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond, "each event triggers a full requery")
}

func TestWatchCycleResubscribesAfterStreamEnds(t *testing.T) {
	events := make(chan struct{})
	fake := &fakeStream{events: events}

	open := func(context.Context) (changeEvents, error) { return fake, nil }
	fetch := func(context.Context) ([]string, error) { return []string{}, nil }

	sub := stream.NewSub[string](nil)
	result := make(chan bool, 1)
	go func() {
		result <- watchCycle(context.Background(), zap.NewNop(), "activities", open, fetch, sub)
	}()
	recvSnapshot(t, sub)

	close(events) // server-side stream death

	select {
	case again := <-result:
		assert.True(t, again, "a dead stream asks for a resubscribe, not a shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("watch cycle did not end with the stream")
	}
	assert.True(t, fake.closed.Load())
}

func TestWatchCycleStopsOnCancel(t *testing.T) {
	events := make(chan struct{})
	open := func(context.Context) (changeEvents, error) {
		return &fakeStream{events: events}, nil
	}
	fetch := func(context.Context) ([]string, error) { return []string{}, nil }

	sub := stream.NewSub[string](nil)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		result <- watchCycle(ctx, zap.NewNop(), "channels", open, fetch, sub)
	}()
	recvSnapshot(t, sub)

	cancel()

	select {
	case again := <-result:
		assert.False(t, again, "cancellation ends the watch for good")
	case <-time.After(2 * time.Second):
		t.Fatal("watch cycle did not stop on cancel")
	}
}
