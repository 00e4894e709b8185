// Package feed aggregates the live views a signed-in member cares
// about — incoming connection requests, latest messages per partner,
// and activities from connections — into one deduplicated notification
// feed with at-most-one alert per new item.
//
// Every upstream delivery is a full current-state snapshot, so "new
// since last seen" is computed by set-difference against a seen set
// owned by the feed, never by incremental counters.
package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/chat"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/connections"
	"github.com/theleywin/Realtime-Talent-Nest/src/store"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

const alertBuffer = 64

type Service struct {
	connections *connections.Service
	chat        *chat.Service
	activities  store.ActivityStore
	logger      *zap.Logger
}

func NewService(conns *connections.Service, chatSvc *chat.Service, acts store.ActivityStore, logger *zap.Logger) *Service {
	return &Service{connections: conns, chat: chatSvc, activities: acts, logger: logger}
}

// Feed is one member session's notification state. It is constructed
// on Attach, owned by a single internal goroutine, and discarded on
// Close; it is never shared across sessions.
type Feed struct {
	memberId string
	logger   *zap.Logger

	alerts chan models.Alert
	done   chan struct{}
	once   sync.Once
	cancel func()

	requestCount atomic.Int64
	messageCount atomic.Int64

	mu         sync.Mutex
	requests   []models.ConnectionRequest
	messages   []models.ConversationPreview
	activities []models.Activity
}

// Attach builds the live feed for a member session. The first snapshot
// of every watched stream is marked seen without alerting, so a
// session that starts with a backlog gets accurate counts but no alert
// storm.
func (s *Service) Attach(ctx context.Context, memberId string) (*Feed, error) {
	f := &Feed{
		memberId: memberId,
		logger:   s.logger,
		alerts:   make(chan models.Alert, alertBuffer),
		done:     make(chan struct{}),
	}

	pendingSub, err := s.connections.WatchIncomingPending(ctx, memberId)
	if err != nil {
		return nil, err
	}
	connsSub, err := s.connections.WatchConnections(ctx, memberId)
	if err != nil {
		pendingSub.Cancel()
		return nil, err
	}

	// One connection watch feeds both fan-outs: a splitter republishes
	// the partner id set to each.
	msgIds := stream.NewSub[string](nil)
	actIds := stream.NewSub[string](nil)
	go func() {
		for {
			select {
			case <-f.done:
				return
			case <-connsSub.Done():
				return
			case conns := <-connsSub.Updates():
				ids := make([]string, 0, len(conns))
				for _, conn := range conns {
					ids = append(ids, conn.PartnerId)
				}
				msgIds.Publish(ids)
				actIds.Publish(ids)
			}
		}
	}()

	// Message previews fan out one channel query per partner (batch
	// size 1); activities use the store's full in-set batch capacity.
	msgFan := stream.FanOut(msgIds, 1, func(ids []string) (*stream.Sub[models.ConversationPreview], error) {
		partnerId := ids[0]
		msgs, err := s.chat.WatchMessages(ctx, chat.ChannelId(memberId, partnerId))
		if err != nil {
			return nil, err
		}
		return stream.Map(msgs, func(history []models.Message) []models.ConversationPreview {
			return latestInbound(history, partnerId)
		}), nil
	}, func(a, b models.ConversationPreview) bool {
		return a.Message.CreatedAt.After(b.Message.CreatedAt)
	}, s.logger)

	actFan := stream.FanOut(actIds, s.activities.BatchLimit(), func(ids []string) (*stream.Sub[models.Activity], error) {
		return s.activities.WatchByAuthors(ctx, ids)
	}, func(a, b models.Activity) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}, s.logger)

	f.cancel = func() {
		pendingSub.Cancel()
		connsSub.Cancel()
		msgFan.Cancel()
		actFan.Cancel()
	}

	go f.run(pendingSub, msgFan, actFan)

	s.logger.Info("notification feed attached", zap.String("member", memberId))
	return f, nil
}

// latestInbound projects a channel history to at most one preview: the
// newest message authored by the partner. History arrives ascending.
func latestInbound(history []models.Message, partnerId string) []models.ConversationPreview {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SenderId == partnerId {
			return []models.ConversationPreview{{PartnerId: partnerId, Message: history[i]}}
		}
	}
	return []models.ConversationPreview{}
}

func (f *Feed) run(
	pendingSub *stream.Sub[models.ConnectionRequest],
	msgFan *stream.Sub[models.ConversationPreview],
	actFan *stream.Sub[models.Activity],
) {
	seenRequests := make(map[string]struct{})
	seenMessageKeys := make(map[string]struct{})
	requestsPrimed := false
	messagesPrimed := false

	for {
		select {
		case <-f.done:
			return

		case reqs := <-pendingSub.Updates():
			f.requestCount.Store(int64(len(reqs)))
			f.setRequests(reqs)

			if !requestsPrimed {
				requestsPrimed = true
				for _, req := range reqs {
					seenRequests[req.Id] = struct{}{}
				}
				continue
			}
			for _, req := range reqs {
				if _, seen := seenRequests[req.Id]; seen {
					continue
				}
				seenRequests[req.Id] = struct{}{}
				f.emit(models.Alert{
					Kind:      models.AlertKindConnectionRequest,
					Summary:   fmt.Sprintf("%s sent a connection request", req.FromId),
					RequestId: req.Id,
					At:        time.Now(),
				})
			}

		case previews := <-msgFan.Updates():
			f.messageCount.Store(int64(len(previews)))
			f.setMessages(previews)

			if !messagesPrimed {
				messagesPrimed = true
				for _, p := range previews {
					seenMessageKeys[messageKey(p)] = struct{}{}
				}
				continue
			}
			for _, p := range previews {
				key := messageKey(p)
				if _, seen := seenMessageKeys[key]; seen {
					continue
				}
				seenMessageKeys[key] = struct{}{}
				f.emit(models.Alert{
					Kind:      models.AlertKindMessage,
					Summary:   fmt.Sprintf("New message from %s", p.PartnerId),
					PartnerId: p.PartnerId,
					At:        time.Now(),
				})
			}

		case acts := <-actFan.Updates():
			f.setActivities(acts)
		}
	}
}

// messageKey is the dedup identity for message alerts: one alert per
// new latest message per partner, matching the one-preview-per-partner
// model rather than per-message unread counting.
func messageKey(p models.ConversationPreview) string {
	return p.PartnerId + ":" + p.Message.Id
}

func (f *Feed) emit(alert models.Alert) {
	select {
	case f.alerts <- alert:
	default:
		f.logger.Warn("alert buffer full, dropping alert",
			zap.String("member", f.memberId), zap.String("kind", string(alert.Kind)))
	}
}

// Alerts delivers at most one alert per newly seen item. Replays of an
// unchanged snapshot produce nothing.
func (f *Feed) Alerts() <-chan models.Alert { return f.alerts }

// Counts returns the current badge state. Requests is the size of the
// latest pending snapshot; Messages is the number of distinct partners
// with an inbound latest message.
func (f *Feed) Counts() models.FeedCounts {
	req := int(f.requestCount.Load())
	msg := int(f.messageCount.Load())
	return models.FeedCounts{Requests: req, Messages: msg, Total: req + msg}
}

// Requests returns the latest pending-request snapshot.
func (f *Feed) Requests() []models.ConnectionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ConnectionRequest(nil), f.requests...)
}

// Messages returns the latest per-partner conversation previews.
func (f *Feed) Messages() []models.ConversationPreview {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ConversationPreview(nil), f.messages...)
}

// Activities returns the latest merged activity feed.
func (f *Feed) Activities() []models.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Activity(nil), f.activities...)
}

// Close detaches the session: every underlying subscription is
// cancelled transitively and the feed state is discarded. Safe to call
// more than once.
func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.done)
		f.cancel()
		f.logger.Info("notification feed detached", zap.String("member", f.memberId))
	})
}

func (f *Feed) setRequests(reqs []models.ConnectionRequest) {
	f.mu.Lock()
	f.requests = reqs
	f.mu.Unlock()
}

func (f *Feed) setMessages(previews []models.ConversationPreview) {
	f.mu.Lock()
	f.messages = previews
	f.mu.Unlock()
}

func (f *Feed) setActivities(acts []models.Activity) {
	f.mu.Lock()
	f.activities = acts
	f.mu.Unlock()
}
