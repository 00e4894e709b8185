// Package mongodb is the production Event Stream Source. Live views
// are served by re-running the filtered query whenever the collection's
// change stream reports a mutation, so every delivery is the complete
// current result set — the same contract the in-memory store provides.
package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/store"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

const (
	collConnections = "connections"
	collChannels    = "channels"
	collMessages    = "messages"
	collActivities  = "activities"

	resubscribeDelay = time.Second
)

// Store implements store.ConnectionStore, store.ChatStore and
// store.ActivityStore over a Mongo database.
type Store struct {
	db         *mongo.Database
	logger     *zap.Logger
	batchLimit int
}

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger, batchLimit: store.DefaultBatchLimit}
}

// EnsureIndexes creates the indexes the realtime core depends on. The
// unique pairKey index is load-bearing: it collapses the send-request
// check-then-act into a single conditional write.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collConnections).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "toId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "fromId", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collMessages).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channelId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collActivities).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

// --- ConnectionStore ---

func (s *Store) Create(ctx context.Context, req models.ConnectionRequest) (string, error) {
	if req.Id == "" {
		req.Id = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.UpdatedAt = req.CreatedAt

	_, err := s.db.Collection(collConnections).InsertOne(ctx, req)
	if mongo.IsDuplicateKeyError(err) {
		return "", store.ErrDuplicatePair
	}
	if err != nil {
		return "", err
	}
	return req.Id, nil
}

func (s *Store) Get(ctx context.Context, id string) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := s.db.Collection(collConnections).FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return models.ConnectionRequest{}, store.ErrNotFound
	}
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	return req, nil
}

func (s *Store) SetAccepted(ctx context.Context, id string) (time.Time, error) {
	// Pipeline update: updatedAt is bumped only on the pending→accepted
	// transition, so racing or repeated accepts all report the same
	// acceptance time.
	update := bson.A{bson.M{"$set": bson.M{
		"updatedAt": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$status", models.ConnectionStatusAccepted}},
			"$updatedAt",
			time.Now(),
		}},
		"status": models.ConnectionStatusAccepted,
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var req models.ConnectionRequest
	err := s.db.Collection(collConnections).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).
		Decode(&req)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return req.UpdatedAt, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.Collection(collConnections).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindByPair(ctx context.Context, fromId, toId string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := s.db.Collection(collConnections).FindOne(ctx, bson.M{"fromId": fromId, "toId": toId}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) WatchIncomingPending(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	filter := bson.M{"toId": memberId, "status": models.ConnectionStatusPending}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return openWatch[models.ConnectionRequest](ctx, s, collConnections, filter, opts), nil
}

func (s *Store) WatchAcceptedBySender(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	filter := bson.M{"fromId": memberId, "status": models.ConnectionStatusAccepted}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return openWatch[models.ConnectionRequest](ctx, s, collConnections, filter, opts), nil
}

func (s *Store) WatchAcceptedByRecipient(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	filter := bson.M{"toId": memberId, "status": models.ConnectionStatusAccepted}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return openWatch[models.ConnectionRequest](ctx, s, collConnections, filter, opts), nil
}

// --- ChatStore ---

func (s *Store) EnsureChannel(ctx context.Context, channel models.ChatChannel) error {
	filter := bson.M{"_id": channel.Id}
	update := bson.M{
		"$set":         bson.M{"lastUpdate": time.Now()},
		"$setOnInsert": bson.M{"participants": channel.Participants},
	}
	_, err := s.db.Collection(collChannels).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (string, error) {
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if _, err := s.db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return "", err
	}

	// Bump the conversation-list ordering marker. Not critical enough
	// to fail the append.
	_, err := s.db.Collection(collChannels).UpdateOne(ctx,
		bson.M{"_id": msg.ChannelId},
		bson.M{"$set": bson.M{"lastUpdate": msg.CreatedAt}},
		options.Update().SetUpsert(true))
	if err != nil {
		s.logger.Warn("updating channel lastUpdate failed",
			zap.String("channel", msg.ChannelId), zap.Error(err))
	}
	return msg.Id, nil
}

func (s *Store) WatchMessages(ctx context.Context, channelId string) (*stream.Sub[models.Message], error) {
	filter := bson.M{"channelId": channelId}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return openWatch[models.Message](ctx, s, collMessages, filter, opts), nil
}

func (s *Store) WatchLatestMessage(ctx context.Context, channelId string) (*stream.Sub[models.Message], error) {
	filter := bson.M{"channelId": channelId}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(1)
	return openWatch[models.Message](ctx, s, collMessages, filter, opts), nil
}

// --- ActivityStore ---

func (s *Store) Insert(ctx context.Context, activity models.Activity) (string, error) {
	if activity.Id == "" {
		activity.Id = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	if _, err := s.db.Collection(collActivities).InsertOne(ctx, activity); err != nil {
		return "", err
	}
	return activity.Id, nil
}

func (s *Store) WatchByAuthors(ctx context.Context, authorIds []string) (*stream.Sub[models.Activity], error) {
	if len(authorIds) > s.batchLimit {
		return nil, store.ErrBatchTooLarge
	}
	filter := bson.M{"authorId": bson.M{"$in": authorIds}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return openWatch[models.Activity](ctx, s, collActivities, filter, opts), nil
}

func (s *Store) BatchLimit() int { return s.batchLimit }

// SetBatchLimit overrides the in-set filter capacity for backing tiers
// that cap 'in' filters differently than the default.
func (s *Store) SetBatchLimit(n int) {
	if n > 0 {
		s.batchLimit = n
	}
}

// --- snapshot watch plumbing ---

// openWatch serves a live filtered view: an initial full query result,
// then a requery on every change-stream event for the collection.
// Requerying on unrelated events over-delivers identical snapshots,
// which is harmless — consumers diff against their own seen state.
// Change-stream failures are transient: logged, backed off, and
// resubscribed; the fresh snapshot then flows through the normal path.
func openWatch[T any](ctx context.Context, s *Store, coll string, filter bson.M, opts *options.FindOptions) *stream.Sub[T] {
	wctx, cancel := context.WithCancel(ctx)
	sub := stream.NewSub[T](cancel)
	c := s.db.Collection(coll)
	open := func(ctx context.Context) (changeEvents, error) {
		return c.Watch(ctx, mongo.Pipeline{})
	}
	fetch := func(ctx context.Context) ([]T, error) {
		return fetchSnapshot[T](ctx, c, filter, opts)
	}
	go runWatch(wctx, s.logger, coll, open, fetch, sub)
	return sub
}

// changeEvents is the slice of *mongo.ChangeStream the watch loop
// consumes, split out so the loop's ordering is testable without a
// live replica set.
type changeEvents interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

func runWatch[T any](ctx context.Context, logger *zap.Logger, coll string, open func(context.Context) (changeEvents, error), fetch func(context.Context) ([]T, error), sub *stream.Sub[T]) {
	for {
		if !watchCycle(ctx, logger, coll, open, fetch, sub) {
			return
		}
		if !sleepCtx(ctx, resubscribeDelay) {
			return
		}
	}
}

// watchCycle runs one open/snapshot/consume round. The change stream
// is opened BEFORE the initial query: a write committing between the
// two still produces a stream event and a requery, so the subscriber
// can never be left holding a snapshot that silently misses it. The
// reverse order has a delivery gap — a mutation landing after the
// query but before the stream exists would go unnoticed until the next
// unrelated write. Returns false when the watch context is done.
func watchCycle[T any](ctx context.Context, logger *zap.Logger, coll string, open func(context.Context) (changeEvents, error), fetch func(context.Context) ([]T, error), sub *stream.Sub[T]) bool {
	cs, err := open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logger.Warn("change stream open failed, retrying",
			zap.String("collection", coll), zap.Error(err))
		// Still serve the current state while the stream is down.
		if snapshot, err := fetch(ctx); err == nil {
			sub.Publish(snapshot)
		}
		return ctx.Err() == nil
	}
	defer cs.Close(context.Background())

	if snapshot, err := fetch(ctx); err == nil {
		sub.Publish(snapshot)
	} else if ctx.Err() != nil {
		return false
	} else {
		logger.Warn("snapshot query failed", zap.String("collection", coll), zap.Error(err))
	}

	for cs.Next(ctx) {
		snapshot, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Warn("requery after change failed",
				zap.String("collection", coll), zap.Error(err))
			continue
		}
		sub.Publish(snapshot)
	}

	if ctx.Err() != nil {
		return false
	}
	logger.Warn("change stream ended, resubscribing",
		zap.String("collection", coll), zap.Error(cs.Err()))
	return true
}

func fetchSnapshot[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []T{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
