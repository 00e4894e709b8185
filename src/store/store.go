// Package store defines the Event Stream Source boundary the realtime
// services sit on: filtered live subscriptions that redeliver the full
// matching result set on every relevant mutation, an in-set filter
// capped at a batch limit, timestamp ordering, and an idempotent merge
// write for channel creation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

// DefaultBatchLimit is the backing store's "field is one of N values"
// filter limit. Watches over larger id sets must be fanned out.
const DefaultBatchLimit = 10

// ErrDuplicatePair is returned by ConnectionStore.Create when a
// request for the same unordered pair already exists, in either
// direction. It is the transactional backstop behind the service-level
// precondition checks.
var ErrDuplicatePair = errors.New("connection request already exists for pair")

// ErrNotFound is returned by point reads and writes on vanished
// documents.
var ErrNotFound = errors.New("document not found")

// ErrBatchTooLarge is returned when an in-set watch is asked for more
// ids than the store's filter primitive supports.
var ErrBatchTooLarge = errors.New("author batch exceeds store filter limit")

// ConnectionStore persists connection requests and serves their live
// views. Create is conditional on the canonical pair key so two racing
// sends for the same pair cannot both succeed.
type ConnectionStore interface {
	Create(ctx context.Context, req models.ConnectionRequest) (string, error)
	Get(ctx context.Context, id string) (models.ConnectionRequest, error)
	// SetAccepted flips the request to accepted and returns the stored
	// acceptance time. Accepting an already accepted request returns
	// the original time unchanged.
	SetAccepted(ctx context.Context, id string) (time.Time, error)
	Delete(ctx context.Context, id string) error
	FindByPair(ctx context.Context, fromId, toId string) (*models.ConnectionRequest, error)

	// WatchIncomingPending streams pending requests addressed to the
	// member, newest first.
	WatchIncomingPending(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error)
	// WatchAcceptedBySender / WatchAcceptedByRecipient are the two
	// halves of a member's connection view; a given accepted request
	// shows up in exactly one of them per viewer.
	WatchAcceptedBySender(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error)
	WatchAcceptedByRecipient(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error)
}

// ChatStore persists channel metadata and append-only messages.
type ChatStore interface {
	// EnsureChannel upserts the channel document; calling it twice, or
	// concurrently from both participants, is a no-op merge.
	EnsureChannel(ctx context.Context, channel models.ChatChannel) error
	// AppendMessage stores the message and bumps the channel's
	// last-activity marker.
	AppendMessage(ctx context.Context, msg models.Message) (string, error)

	// WatchMessages streams the channel's full ordered history,
	// ascending by CreatedAt, replaying everything on a fresh subscribe.
	WatchMessages(ctx context.Context, channelId string) (*stream.Sub[models.Message], error)
	// WatchLatestMessage is the descending limit-1 projection used for
	// conversation previews; snapshots hold zero or one message.
	WatchLatestMessage(ctx context.Context, channelId string) (*stream.Sub[models.Message], error)
}

// ActivityStore persists feed activities and serves the batched
// authored-by view the fan-out multiplexer opens per id chunk.
type ActivityStore interface {
	Insert(ctx context.Context, activity models.Activity) (string, error)
	// WatchByAuthors streams activities authored by any of the given
	// members, newest first. len(authorIds) must not exceed BatchLimit.
	WatchByAuthors(ctx context.Context, authorIds []string) (*stream.Sub[models.Activity], error)
	// BatchLimit reports the store's in-set filter capacity.
	BatchLimit() int
}
