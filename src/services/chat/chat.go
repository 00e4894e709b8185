// Package chat derives canonical 1:1 channels and serves ordered
// message append/read over them.
package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/apperr"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/store"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

// ChannelId derives the canonical channel identity for an unordered
// member pair: commutative and total for any two distinct ids.
func ChannelId(memberA, memberB string) string {
	return models.PairKey(memberA, memberB)
}

type Service struct {
	store  store.ChatStore
	logger *zap.Logger
}

func NewService(st store.ChatStore, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// EnsureChannel upserts the channel for the pair and returns its id.
// Safe to call from both participants concurrently; creating twice is
// a merge, never a duplicate.
func (s *Service) EnsureChannel(ctx context.Context, memberA, memberB string) (string, error) {
	if memberA == "" || memberB == "" {
		return "", apperr.Validation("member id is required")
	}
	if memberA == memberB {
		return "", apperr.Validation("a chat needs two distinct members")
	}

	channelId := ChannelId(memberA, memberB)
	err := s.store.EnsureChannel(ctx, models.ChatChannel{
		Id:           channelId,
		Participants: []string{memberA, memberB},
	})
	if err != nil {
		return "", err
	}
	return channelId, nil
}

// AppendMessage stores a message in the channel. Empty or
// whitespace-only text is rejected; a successful append also bumps the
// channel's last-activity marker (done in the store).
func (s *Service) AppendMessage(ctx context.Context, channelId, senderId, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.Validation("message text can't be empty")
	}
	if channelId == "" || senderId == "" {
		return "", apperr.Validation("channel and sender are required")
	}

	id, err := s.store.AppendMessage(ctx, models.Message{
		ChannelId: channelId,
		SenderId:  senderId,
		Text:      text,
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("message appended",
		zap.String("channel", channelId), zap.String("sender", senderId))
	return id, nil
}

// WatchMessages streams the channel's full history ascending by
// CreatedAt, replaying everything on a fresh subscribe and following
// live after.
func (s *Service) WatchMessages(ctx context.Context, channelId string) (*stream.Sub[models.Message], error) {
	return s.store.WatchMessages(ctx, channelId)
}

// WatchLatestMessage streams the newest message between the member and
// partner, for conversation-list previews. Snapshots hold zero or one
// message.
func (s *Service) WatchLatestMessage(ctx context.Context, memberId, partnerId string) (*stream.Sub[models.Message], error) {
	return s.store.WatchLatestMessage(ctx, ChannelId(memberId, partnerId))
}

// History reads the channel's current ordered history once.
func (s *Service) History(ctx context.Context, channelId string) ([]models.Message, error) {
	sub, err := s.store.WatchMessages(ctx, channelId)
	if err != nil {
		return nil, err
	}
	return stream.First(ctx, sub)
}

// LatestMessage reads the newest message with a partner once; nil when
// the pair has never exchanged one.
func (s *Service) LatestMessage(ctx context.Context, memberId, partnerId string) (*models.Message, error) {
	sub, err := s.WatchLatestMessage(ctx, memberId, partnerId)
	if err != nil {
		return nil, err
	}
	snap, err := stream.First(ctx, sub)
	if err != nil {
		return nil, err
	}
	if len(snap) == 0 {
		return nil, nil
	}
	return &snap[0], nil
}
