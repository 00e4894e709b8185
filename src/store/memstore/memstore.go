// Package memstore is the in-memory Event Stream Source. It backs the
// test suite and local development with the same contract as the Mongo
// implementation: every mutation redelivers the complete current
// result set to each matching watcher.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/store"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

// Store implements store.ConnectionStore, store.ChatStore and
// store.ActivityStore over process memory.
type Store struct {
	mu          sync.Mutex
	connections map[string]models.ConnectionRequest
	channels    map[string]models.ChatChannel
	messages    map[string][]models.Message // channelId -> append order
	activities  []models.Activity

	connWatchers map[int]*watcher[models.ConnectionRequest]
	msgWatchers  map[int]*watcher[models.Message]
	actWatchers  map[int]*watcher[models.Activity]
	nextWatcher  int

	batchLimit int
}

type watcher[T any] struct {
	sub     *stream.Sub[T]
	compute func() []T
}

func New() *Store {
	return &Store{
		connections:  make(map[string]models.ConnectionRequest),
		channels:     make(map[string]models.ChatChannel),
		messages:     make(map[string][]models.Message),
		connWatchers: make(map[int]*watcher[models.ConnectionRequest]),
		msgWatchers:  make(map[int]*watcher[models.Message]),
		actWatchers:  make(map[int]*watcher[models.Activity]),
		batchLimit:   store.DefaultBatchLimit,
	}
}

// ActiveWatchers reports the number of live subscriptions, used by
// tests to verify transitive cancellation.
func (s *Store) ActiveWatchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connWatchers) + len(s.msgWatchers) + len(s.actWatchers)
}

// --- ConnectionStore ---

func (s *Store) Create(_ context.Context, req models.ConnectionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Conditional create keyed by the canonical pair: the in-memory
	// equivalent of the unique pairKey index.
	for _, existing := range s.connections {
		if existing.PairKey == req.PairKey {
			return "", store.ErrDuplicatePair
		}
	}

	if req.Id == "" {
		req.Id = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.UpdatedAt = req.CreatedAt
	s.connections[req.Id] = req
	s.notifyConnWatchersLocked()
	return req.Id, nil
}

func (s *Store) Get(_ context.Context, id string) (models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.connections[id]
	if !ok {
		return models.ConnectionRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (s *Store) SetAccepted(_ context.Context, id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.connections[id]
	if !ok {
		return time.Time{}, store.ErrNotFound
	}
	if req.Status == models.ConnectionStatusAccepted {
		return req.UpdatedAt, nil
	}
	req.Status = models.ConnectionStatusAccepted
	req.UpdatedAt = time.Now()
	s.connections[id] = req
	s.notifyConnWatchersLocked()
	return req.UpdatedAt, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.connections, id)
	s.notifyConnWatchersLocked()
	return nil
}

func (s *Store) FindByPair(_ context.Context, fromId, toId string) (*models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.connections {
		if req.FromId == fromId && req.ToId == toId {
			found := req
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) WatchIncomingPending(_ context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	return s.watchConnections(func() []models.ConnectionRequest {
		return s.filterConnectionsLocked(func(r models.ConnectionRequest) bool {
			return r.ToId == memberId && r.Status == models.ConnectionStatusPending
		}, true)
	}), nil
}

func (s *Store) WatchAcceptedBySender(_ context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	return s.watchConnections(func() []models.ConnectionRequest {
		return s.filterConnectionsLocked(func(r models.ConnectionRequest) bool {
			return r.FromId == memberId && r.Status == models.ConnectionStatusAccepted
		}, true)
	}), nil
}

func (s *Store) WatchAcceptedByRecipient(_ context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	return s.watchConnections(func() []models.ConnectionRequest {
		return s.filterConnectionsLocked(func(r models.ConnectionRequest) bool {
			return r.ToId == memberId && r.Status == models.ConnectionStatusAccepted
		}, true)
	}), nil
}

func (s *Store) watchConnections(compute func() []models.ConnectionRequest) *stream.Sub[models.ConnectionRequest] {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	w := &watcher[models.ConnectionRequest]{compute: compute}
	w.sub = stream.NewSub[models.ConnectionRequest](func() {
		s.mu.Lock()
		delete(s.connWatchers, id)
		s.mu.Unlock()
	})
	s.connWatchers[id] = w
	w.sub.Publish(compute())
	return w.sub
}

func (s *Store) filterConnectionsLocked(match func(models.ConnectionRequest) bool, newestFirst bool) []models.ConnectionRequest {
	out := []models.ConnectionRequest{}
	for _, req := range s.connections {
		if match(req) {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) notifyConnWatchersLocked() {
	for _, w := range s.connWatchers {
		w.sub.Publish(w.compute())
	}
}

// --- ChatStore ---

func (s *Store) EnsureChannel(_ context.Context, channel models.ChatChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.channels[channel.Id]
	if ok {
		existing.LastUpdate = time.Now()
		s.channels[channel.Id] = existing
		return nil
	}
	if channel.LastUpdate.IsZero() {
		channel.LastUpdate = time.Now()
	}
	s.channels[channel.Id] = channel
	return nil
}

func (s *Store) AppendMessage(_ context.Context, msg models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.ChannelId] = append(s.messages[msg.ChannelId], msg)

	channel := s.channels[msg.ChannelId]
	channel.Id = msg.ChannelId
	channel.LastUpdate = msg.CreatedAt
	s.channels[msg.ChannelId] = channel

	s.notifyMsgWatchersLocked()
	return msg.Id, nil
}

func (s *Store) WatchMessages(_ context.Context, channelId string) (*stream.Sub[models.Message], error) {
	return s.watchMessages(func() []models.Message {
		return s.orderedMessagesLocked(channelId)
	}), nil
}

func (s *Store) WatchLatestMessage(_ context.Context, channelId string) (*stream.Sub[models.Message], error) {
	return s.watchMessages(func() []models.Message {
		ordered := s.orderedMessagesLocked(channelId)
		if len(ordered) == 0 {
			return []models.Message{}
		}
		return ordered[len(ordered)-1:]
	}), nil
}

func (s *Store) watchMessages(compute func() []models.Message) *stream.Sub[models.Message] {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	w := &watcher[models.Message]{compute: compute}
	w.sub = stream.NewSub[models.Message](func() {
		s.mu.Lock()
		delete(s.msgWatchers, id)
		s.mu.Unlock()
	})
	s.msgWatchers[id] = w
	w.sub.Publish(compute())
	return w.sub
}

// orderedMessagesLocked returns the channel history ascending by
// CreatedAt; equal timestamps keep append order.
func (s *Store) orderedMessagesLocked(channelId string) []models.Message {
	history := s.messages[channelId]
	out := make([]models.Message, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) notifyMsgWatchersLocked() {
	for _, w := range s.msgWatchers {
		w.sub.Publish(w.compute())
	}
}

// --- ActivityStore ---

func (s *Store) Insert(_ context.Context, activity models.Activity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activity.Id == "" {
		activity.Id = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	s.activities = append(s.activities, activity)
	for _, w := range s.actWatchers {
		w.sub.Publish(w.compute())
	}
	return activity.Id, nil
}

func (s *Store) WatchByAuthors(_ context.Context, authorIds []string) (*stream.Sub[models.Activity], error) {
	if len(authorIds) > s.batchLimit {
		return nil, store.ErrBatchTooLarge
	}
	authors := make(map[string]struct{}, len(authorIds))
	for _, id := range authorIds {
		authors[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	w := &watcher[models.Activity]{compute: func() []models.Activity {
		out := []models.Activity{}
		for _, a := range s.activities {
			if _, ok := authors[a.AuthorId]; ok {
				out = append(out, a)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
		return out
	}}
	w.sub = stream.NewSub[models.Activity](func() {
		s.mu.Lock()
		delete(s.actWatchers, id)
		s.mu.Unlock()
	})
	s.actWatchers[id] = w
	w.sub.Publish(w.compute())
	return w.sub, nil
}

func (s *Store) BatchLimit() int { return s.batchLimit }
