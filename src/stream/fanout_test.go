package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOpener records every batch subscription it opens so tests can
// assert batch counts and drive snapshots into individual batches.
type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeBatch
}

type fakeBatch struct {
	ids       []string
	sub       *Sub[string]
	cancelled bool
}

func (o *fakeOpener) open(ids []string) (*Sub[string], error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := &fakeBatch{ids: ids}
	b.sub = NewSub[string](func() {
		o.mu.Lock()
		b.cancelled = true
		o.mu.Unlock()
	})
	o.opened = append(o.opened, b)
	return b.sub, nil
}

func (o *fakeOpener) batches() []*fakeBatch {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeBatch(nil), o.opened...)
}

func (o *fakeOpener) waitForBatches(t *testing.T, n int) []*fakeBatch {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := o.batches(); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d batch subscriptions, have %d", n, len(o.batches()))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func recvSnapshot[T any](t *testing.T, sub *Sub[T]) []T {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("member-%02d", i)
	}
	return ids
}

func TestFanOutBatchCounts(t *testing.T) {
	cases := []struct {
		n       int
		batches int
	}{
		{n: 0, batches: 0},
		{n: 1, batches: 1},
		{n: 10, batches: 1},
		{n: 11, batches: 2},
		{n: 23, batches: 3},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			opener := &fakeOpener{}
			ids := NewSub[string](nil)
			out := FanOut(ids, 10, opener.open, func(a, b string) bool { return a < b }, zap.NewNop())
			defer out.Cancel()

			ids.Publish(makeIDs(tc.n))

			if tc.batches == 0 {
				snap := recvSnapshot(t, out)
				assert.Empty(t, snap)
				assert.Empty(t, opener.batches())
				return
			}

			batches := opener.waitForBatches(t, tc.batches)
			require.Len(t, batches, tc.batches)

			total := 0
			for _, b := range batches {
				assert.LessOrEqual(t, len(b.ids), 10)
				total += len(b.ids)
			}
			assert.Equal(t, tc.n, total, "every id should land in exactly one batch")
		})
	}
}

func TestFanOutMergesAllBatches(t *testing.T) {
	opener := &fakeOpener{}
	ids := NewSub[string](nil)
	out := FanOut(ids, 10, opener.open, func(a, b string) bool { return a < b }, zap.NewNop())
	defer out.Cancel()

	ids.Publish(makeIDs(12))
	batches := opener.waitForBatches(t, 2)

	// No output until every batch has delivered its first snapshot: a
	// partial union must never be observable.
	batches[0].sub.Publish([]string{"delta", "alpha"})
	select {
	case snap := <-out.Updates():
		t.Fatalf("partial union emitted before all batches delivered: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}

	batches[1].sub.Publish([]string{"charlie", "bravo"})
	snap := recvSnapshot(t, out)
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, snap)

	// A later update from one batch re-merges against the other's
	// current set.
	batches[0].sub.Publish([]string{"echo"})
	var merged []string
	require.Eventually(t, func() bool {
		select {
		case merged = <-out.Updates():
			return len(merged) == 3
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"bravo", "charlie", "echo"}, merged)
}

func TestFanOutChurnTearsDownAndRebuilds(t *testing.T) {
	opener := &fakeOpener{}
	ids := NewSub[string](nil)
	out := FanOut(ids, 10, opener.open, func(a, b string) bool { return a < b }, zap.NewNop())
	defer out.Cancel()

	ids.Publish(makeIDs(11))
	oldBatches := opener.waitForBatches(t, 2)
	oldBatches[0].sub.Publish([]string{"stale"})
	oldBatches[1].sub.Publish([]string{"old"})
	recvSnapshot(t, out)

	// Shrink the partner set: everything is rebuilt from scratch.
	ids.Publish(makeIDs(3))
	all := opener.waitForBatches(t, 3)
	newBatch := all[2]
	require.Len(t, newBatch.ids, 3)

	require.Eventually(t, func() bool {
		for _, b := range oldBatches {
			opener.mu.Lock()
			c := b.cancelled
			opener.mu.Unlock()
			if !c {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond, "old batch subscriptions must be cancelled on churn")

	// A snapshot published on a stale batch never reaches the output.
	oldBatches[0].sub.Publish([]string{"ghost"})
	newBatch.sub.Publish([]string{"fresh"})
	require.Eventually(t, func() bool {
		select {
		case snap := <-out.Updates():
			require.NotContains(t, snap, "ghost")
			return len(snap) == 1 && snap[0] == "fresh"
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFanOutEmptySetHoldsNoSubscriptions(t *testing.T) {
	opener := &fakeOpener{}
	ids := NewSub[string](nil)
	out := FanOut(ids, 10, opener.open, func(a, b string) bool { return a < b }, zap.NewNop())
	defer out.Cancel()

	ids.Publish(nil)
	snap := recvSnapshot(t, out)
	assert.Empty(t, snap)
	assert.Empty(t, opener.batches())
}

func TestFanOutCancelPropagates(t *testing.T) {
	opener := &fakeOpener{}
	idsCancelled := false
	ids := NewSub[string](func() { idsCancelled = true })
	out := FanOut(ids, 10, opener.open, func(a, b string) bool { return a < b }, zap.NewNop())

	ids.Publish(makeIDs(5))
	opener.waitForBatches(t, 1)

	out.Cancel()
	assert.True(t, idsCancelled, "cancelling the fanout must cancel the id-set sub")
	require.Eventually(t, func() bool {
		for _, b := range opener.batches() {
			opener.mu.Lock()
			c := b.cancelled
			opener.mu.Unlock()
			if !c {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond, "no batch subscription may outlive the fanout")
}

func TestSubCancelIsIdempotent(t *testing.T) {
	n := 0
	s := NewSub[int](func() { n++ })
	s.Cancel()
	s.Cancel()
	assert.Equal(t, 1, n)
}

func TestSubPublishConflatesToLatest(t *testing.T) {
	s := NewSub[int](nil)
	s.Publish([]int{1})
	s.Publish([]int{2})
	s.Publish([]int{3})
	assert.Equal(t, []int{3}, recvSnapshot(t, s))
}
