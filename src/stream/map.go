package stream

// Map derives a subscription whose snapshots are a transformation of
// the input's. Cancelling the derived sub cancels the input.
func Map[T, U any](in *Sub[T], transform func([]T) []U) *Sub[U] {
	out := NewSub[U](in.Cancel)
	go func() {
		for {
			select {
			case <-out.Done():
				return
			case <-in.Done():
				return
			case snapshot := <-in.Updates():
				out.Publish(transform(snapshot))
			}
		}
	}()
	return out
}
