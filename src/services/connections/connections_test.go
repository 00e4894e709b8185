package connections

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/apperr"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/store/memstore"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

func newService() (*Service, *memstore.Store) {
	st := memstore.New()
	return NewService(st, zap.NewNop()), st
}

func waitFor[T any](t *testing.T, sub *stream.Sub[T], ok func([]T) bool) []T {
	t.Helper()
	var snap []T
	require.Eventually(t, func() bool {
		select {
		case snap = <-sub.Updates():
			return ok(snap)
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestSendRequestRejectsSelfConnection(t *testing.T) {
	svc, _ := newService()
	_, err := svc.SendRequest(context.Background(), "alice", "alice")
	assert.True(t, apperr.IsValidation(err))
}

func TestSendRequestDuplicatePending(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, "alice", "bob")
	require.True(t, apperr.IsConflict(err))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "request already pending", ae.Message())

	// Reverse direction conflicts too: one live request per pair.
	_, err = svc.SendRequest(ctx, "bob", "alice")
	assert.True(t, apperr.IsConflict(err))
}

func TestSendRequestAlreadyConnected(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	id, err := svc.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "bob", id)
	require.NoError(t, err)

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		_, err = svc.SendRequest(ctx, pair[0], pair[1])
		require.True(t, apperr.IsConflict(err), "%v should conflict", pair)
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "already connected", ae.Message())
	}
}

func TestConcurrentSendsForSamePairOnlyOneWins(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "alice", "bob"
			if i%2 == 1 {
				from, to = to, from
			}
			_, errs[i] = svc.SendRequest(ctx, from, to)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperr.IsConflict(err))
		}
	}
	assert.Equal(t, 1, succeeded, "the pair-key conditional create admits exactly one request")
}

func TestAcceptIsIdempotentAndRejectIsTerminal(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	id, err := svc.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	conn, err := svc.AcceptRequest(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, "alice", conn.PartnerId)

	// Re-accept is a no-op success reporting the same acceptance time.
	again, err := svc.AcceptRequest(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.PartnerId)
	assert.True(t, conn.Since.Equal(again.Since),
		"every accept of one request reports one acceptance time")

	// Reject deletes even an accepted request, freeing the pair.
	require.NoError(t, svc.RejectRequest(ctx, "bob", id))
	err = svc.RejectRequest(ctx, "bob", id)
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.SendRequest(ctx, "bob", "alice")
	assert.NoError(t, err, "rejected pair returns to no relation")
}

func TestAcceptRequiresRecipient(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	id, err := svc.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.AcceptRequest(ctx, "alice", id)
	assert.True(t, apperr.IsNotFound(err), "the requester cannot accept their own request")

	err = svc.RejectRequest(ctx, "mallory", id)
	assert.True(t, apperr.IsNotFound(err))
}

func TestAcceptVanishedRequest(t *testing.T) {
	svc, _ := newService()
	_, err := svc.AcceptRequest(context.Background(), "bob", "no-such-request")
	assert.True(t, apperr.IsNotFound(err))
}

func TestWatchIncomingPendingSeesNewRequest(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	sub, err := svc.WatchIncomingPending(ctx, "bob")
	require.NoError(t, err)
	defer sub.Cancel()

	_, err = svc.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	snap := waitFor(t, sub, func(reqs []models.ConnectionRequest) bool { return len(reqs) == 1 })
	assert.Equal(t, "alice", snap[0].FromId)
	assert.Equal(t, models.ConnectionStatusPending, snap[0].Status)
}

func TestWatchConnectionsDualSourceDedup(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	aliceSub, err := svc.WatchConnections(ctx, "alice")
	require.NoError(t, err)
	defer aliceSub.Cancel()
	bobSub, err := svc.WatchConnections(ctx, "bob")
	require.NoError(t, err)
	defer bobSub.Cancel()

	id, err := svc.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "bob", id)
	require.NoError(t, err)

	// Each viewer resolves to exactly one entry even though each is fed
	// by two underlying queries.
	aliceView := waitFor(t, aliceSub, func(conns []models.Connection) bool { return len(conns) == 1 })
	assert.Equal(t, "bob", aliceView[0].PartnerId)

	bobView := waitFor(t, bobSub, func(conns []models.Connection) bool { return len(conns) == 1 })
	assert.Equal(t, "alice", bobView[0].PartnerId)
}

func TestWatchConnectionsMergesBothSides(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	// Bob is the sender of one accepted request and the recipient of
	// another: his view unions both queries.
	id1, err := svc.SendRequest(ctx, "bob", "alice")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "alice", id1)
	require.NoError(t, err)

	id2, err := svc.SendRequest(ctx, "carol", "bob")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "bob", id2)
	require.NoError(t, err)

	sub, err := svc.WatchConnections(ctx, "bob")
	require.NoError(t, err)
	defer sub.Cancel()

	snap := waitFor(t, sub, func(conns []models.Connection) bool { return len(conns) == 2 })
	partners := []string{snap[0].PartnerId, snap[1].PartnerId}
	assert.ElementsMatch(t, []string{"alice", "carol"}, partners)
}

func TestWatchConnectionsCancelReleasesBothSources(t *testing.T) {
	svc, st := newService()

	sub, err := svc.WatchConnections(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveWatchers())

	sub.Cancel()
	assert.Equal(t, 0, st.ActiveWatchers())
}
