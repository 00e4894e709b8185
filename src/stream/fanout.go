package stream

import (
	"sort"

	"go.uber.org/zap"
)

// OpenBatch opens one live subscription covering a batch of at most
// the store's in-set filter limit worth of ids.
type OpenBatch[T any] func(ids []string) (*Sub[T], error)

// FanOut subscribes across a dynamic id set larger than the backing
// store's single-query capacity. It partitions the set into batches of
// at most batchSize ids, opens one subscription per batch, and merges
// every batch's current result set into one ordered snapshot on every
// update from any batch. The first snapshot after a (re)build is held
// until every batch has delivered once, so subscribers only ever see
// complete unions.
//
// When the id set changes, all batch subscriptions are torn down and
// reopened against the new set; a generation counter guards the merge
// so snapshots from a stale partition never mix with the new one.
// Cancelling the returned sub cancels the id-set sub and every batch
// subscription.
func FanOut[T any](ids *Sub[string], batchSize int, open OpenBatch[T], less func(a, b T) bool, logger *zap.Logger) *Sub[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	out := NewSub[T](nil)
	f := &fanout[T]{
		ids:       ids,
		batchSize: batchSize,
		open:      open,
		less:      less,
		out:       out,
		events:    make(chan batchEvent[T]),
		logger:    logger,
	}
	out.SetCancel(ids.Cancel)
	go f.run()
	return out
}

type batchEvent[T any] struct {
	gen   int
	index int
	docs  []T
}

type fanout[T any] struct {
	ids       *Sub[string]
	batchSize int
	open      OpenBatch[T]
	less      func(a, b T) bool
	out       *Sub[T]
	events    chan batchEvent[T]
	logger    *zap.Logger

	gen       int
	subs      []*Sub[T]
	results   [][]T
	delivered []bool
	pending   int
}

func (f *fanout[T]) run() {
	defer f.teardown()
	for {
		select {
		case <-f.out.Done():
			return
		case idSet := <-f.ids.Updates():
			f.rebuild(idSet)
		case ev := <-f.events:
			if ev.gen != f.gen {
				continue // stale partition
			}
			if !f.delivered[ev.index] {
				f.delivered[ev.index] = true
				f.pending--
			}
			f.results[ev.index] = ev.docs
			// Hold emission until every batch of this partition has
			// delivered once, so the caller never observes a partial
			// union after a rebuild.
			if f.pending == 0 {
				f.out.Publish(f.merge())
			}
		}
	}
}

// rebuild tears down every current batch subscription and re-partitions
// from scratch. Incremental diffing of batches is deliberately avoided;
// the brief resubscription gap is the accepted trade-off.
func (f *fanout[T]) rebuild(idSet []string) {
	f.teardown()
	f.gen++

	batches := partition(idSet, f.batchSize)
	f.subs = make([]*Sub[T], len(batches))
	f.results = make([][]T, len(batches))
	f.delivered = make([]bool, len(batches))
	f.pending = len(batches)

	if len(batches) == 0 {
		f.out.Publish([]T{})
		return
	}

	for i, batch := range batches {
		sub, err := f.open(batch)
		if err != nil {
			f.logger.Warn("fanout: open batch failed, leaving batch empty",
				zap.Int("batch", i), zap.Int("ids", len(batch)), zap.Error(err))
			f.delivered[i] = true
			f.pending--
			continue
		}
		f.subs[i] = sub
		go f.collect(sub, f.gen, i)
	}
	if f.pending == 0 {
		f.out.Publish(f.merge())
	}
}

func (f *fanout[T]) collect(sub *Sub[T], gen, index int) {
	for {
		select {
		case <-sub.Done():
			return
		case <-f.out.Done():
			return
		case docs := <-sub.Updates():
			select {
			case f.events <- batchEvent[T]{gen: gen, index: index, docs: docs}:
			case <-f.out.Done():
				return
			case <-sub.Done():
				return
			}
		}
	}
}

func (f *fanout[T]) merge() []T {
	var merged []T
	for _, docs := range f.results {
		merged = append(merged, docs...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return f.less(merged[i], merged[j]) })
	if merged == nil {
		merged = []T{}
	}
	return merged
}

func (f *fanout[T]) teardown() {
	for _, sub := range f.subs {
		if sub != nil {
			sub.Cancel()
		}
	}
	f.subs = nil
	f.results = nil
}

// partition splits ids into contiguous batches of at most size,
// dropping duplicates so every id lands in exactly one batch. An exact
// multiple of size yields no trailing empty batch.
func partition(ids []string, size int) [][]string {
	seen := make(map[string]struct{}, len(ids))
	uniq := ids[:0:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	var batches [][]string
	for start := 0; start < len(uniq); start += size {
		end := start + size
		if end > len(uniq) {
			end = len(uniq)
		}
		batches = append(batches, uniq[start:end])
	}
	return batches
}
