// Package connections owns the request/connection state machine:
// duplicate-prevention on send, recipient-only accept/reject, and the
// dual-source live view of a member's accepted connections.
package connections

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/apperr"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/store"
	"github.com/theleywin/Realtime-Talent-Nest/src/stream"
)

type Service struct {
	store  store.ConnectionStore
	logger *zap.Logger
}

func NewService(st store.ConnectionStore, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// SendRequest creates a pending request from fromId to toId. The
// precondition checks give callers precise conflict messages; the
// store's conditional create on the canonical pair key is what actually
// closes the race between two concurrent sends for the same pair.
func (s *Service) SendRequest(ctx context.Context, fromId, toId string) (string, error) {
	if fromId == "" || toId == "" {
		return "", apperr.Validation("member id is required")
	}
	if fromId == toId {
		return "", apperr.Validation("you can't send a connection request to yourself")
	}

	forward, err := s.store.FindByPair(ctx, fromId, toId)
	if err != nil {
		return "", err
	}
	if forward != nil {
		if forward.Status == models.ConnectionStatusAccepted {
			return "", apperr.Conflict("already connected")
		}
		return "", apperr.Conflict("request already pending")
	}

	reverse, err := s.store.FindByPair(ctx, toId, fromId)
	if err != nil {
		return "", err
	}
	if reverse != nil {
		if reverse.Status == models.ConnectionStatusAccepted {
			return "", apperr.Conflict("already connected")
		}
		// At most one live request per unordered pair, in either
		// direction; the other side already has one waiting.
		return "", apperr.Conflict("request already pending")
	}

	id, err := s.store.Create(ctx, models.ConnectionRequest{
		FromId:  fromId,
		ToId:    toId,
		Status:  models.ConnectionStatusPending,
		PairKey: models.PairKey(fromId, toId),
	})
	if errors.Is(err, store.ErrDuplicatePair) {
		// Lost the check-then-act race; same outcome as the pre-check.
		return "", apperr.Conflict("request already pending")
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("connection request sent",
		zap.String("from", fromId), zap.String("to", toId), zap.String("request", id))
	return id, nil
}

// AcceptRequest flips a pending request to accepted. Only the
// recipient may accept; a request that doesn't exist, or doesn't
// belong to the caller, reports not found. Re-accepting an already
// accepted request is a no-op success.
func (s *Service) AcceptRequest(ctx context.Context, callerId, requestId string) (models.Connection, error) {
	req, err := s.store.Get(ctx, requestId)
	if errors.Is(err, store.ErrNotFound) {
		return models.Connection{}, apperr.NotFound("connection request not found")
	}
	if err != nil {
		return models.Connection{}, err
	}
	if req.ToId != callerId {
		return models.Connection{}, apperr.NotFound("connection request not found")
	}

	if req.Status == models.ConnectionStatusAccepted {
		return models.Connection{PartnerId: req.FromId, Since: req.UpdatedAt}, nil
	}

	acceptedAt, err := s.store.SetAccepted(ctx, requestId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Raced a reject: the request vanished under us.
			return models.Connection{}, apperr.NotFound("connection request not found")
		}
		return models.Connection{}, err
	}

	s.logger.Info("connection request accepted",
		zap.String("request", requestId), zap.String("by", callerId))
	return models.Connection{PartnerId: req.FromId, Since: acceptedAt}, nil
}

// RejectRequest deletes the request entirely, whatever its status,
// returning the pair to "no relation" so a fresh request is allowed.
func (s *Service) RejectRequest(ctx context.Context, callerId, requestId string) error {
	req, err := s.store.Get(ctx, requestId)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("connection request not found")
	}
	if err != nil {
		return err
	}
	if req.ToId != callerId {
		return apperr.NotFound("connection request not found")
	}

	if err := s.store.Delete(ctx, requestId); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("connection request not found")
		}
		return err
	}

	s.logger.Info("connection request rejected",
		zap.String("request", requestId), zap.String("by", callerId))
	return nil
}

// WatchIncomingPending streams the member's pending incoming requests,
// newest first, full set on every change.
func (s *Service) WatchIncomingPending(ctx context.Context, memberId string) (*stream.Sub[models.ConnectionRequest], error) {
	return s.store.WatchIncomingPending(ctx, memberId)
}

// ListIncomingPending reads the current pending snapshot once.
func (s *Service) ListIncomingPending(ctx context.Context, memberId string) ([]models.ConnectionRequest, error) {
	sub, err := s.store.WatchIncomingPending(ctx, memberId)
	if err != nil {
		return nil, err
	}
	return stream.First(ctx, sub)
}

// ListConnections reads the current accepted-connections snapshot once.
func (s *Service) ListConnections(ctx context.Context, memberId string) ([]models.Connection, error) {
	sub, err := s.WatchConnections(ctx, memberId)
	if err != nil {
		return nil, err
	}
	return stream.First(ctx, sub)
}

// WatchConnections streams the member's accepted connections. A viewer
// is fed by two independent queries — accepted-as-sender and
// accepted-as-recipient — and a given accepted request appears in
// exactly one of them, so the reducer unions both sides and dedupes by
// partner on every update from either.
func (s *Service) WatchConnections(ctx context.Context, memberId string) (*stream.Sub[models.Connection], error) {
	asSender, err := s.store.WatchAcceptedBySender(ctx, memberId)
	if err != nil {
		return nil, err
	}
	asRecipient, err := s.store.WatchAcceptedByRecipient(ctx, memberId)
	if err != nil {
		asSender.Cancel()
		return nil, err
	}

	out := stream.NewSub[models.Connection](func() {
		asSender.Cancel()
		asRecipient.Cancel()
	})

	go func() {
		var sentSide, receivedSide []models.Connection
		sentReady, receivedReady := false, false
		for {
			select {
			case <-out.Done():
				return
			case reqs := <-asSender.Updates():
				sentSide = projectConnections(reqs, func(r models.ConnectionRequest) string { return r.ToId })
				sentReady = true
			case reqs := <-asRecipient.Updates():
				receivedSide = projectConnections(reqs, func(r models.ConnectionRequest) string { return r.FromId })
				receivedReady = true
			}
			// Hold the first publish until both sides have delivered
			// their initial snapshot, so subscribers never see a
			// half-view that omits one direction.
			if sentReady && receivedReady {
				out.Publish(mergeConnections(sentSide, receivedSide))
			}
		}
	}()

	return out, nil
}

func projectConnections(reqs []models.ConnectionRequest, partner func(models.ConnectionRequest) string) []models.Connection {
	out := make([]models.Connection, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, models.Connection{PartnerId: partner(req), Since: req.UpdatedAt})
	}
	return out
}

func mergeConnections(sides ...[]models.Connection) []models.Connection {
	byPartner := make(map[string]models.Connection)
	for _, side := range sides {
		for _, conn := range side {
			byPartner[conn.PartnerId] = conn
		}
	}
	merged := make([]models.Connection, 0, len(byPartner))
	for _, conn := range byPartner {
		merged = append(merged, conn)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Since.Equal(merged[j].Since) {
			return merged[i].Since.After(merged[j].Since)
		}
		return merged[i].PartnerId < merged[j].PartnerId
	})
	return merged
}
