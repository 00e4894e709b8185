package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/theleywin/Realtime-Talent-Nest/src/middleware"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/feed"
)

const countsPushInterval = 500 * time.Millisecond

type FeedController struct {
	feed   *feed.Service
	logger *zap.Logger
}

func NewFeedController(feedSvc *feed.Service, logger *zap.Logger) *FeedController {
	return &FeedController{feed: feedSvc, logger: logger}
}

// feedFrame is one websocket message: an alert with the counts at that
// moment, or a bare counts update.
type feedFrame struct {
	Type   string            `json:"type"`
	Alert  *models.Alert     `json:"alert,omitempty"`
	Counts models.FeedCounts `json:"counts"`
}

// RequireUpgrade rejects plain HTTP requests to the websocket endpoint.
func (ctrl *FeedController) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream attaches a notification feed for the authenticated member and
// pushes alerts and badge counts over the socket until it closes. The
// feed session lives exactly as long as the socket; closing either side
// tears down every underlying subscription.
func (ctrl *FeedController) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		member, ok := conn.Locals(middleware.MemberKey).(models.Member)
		if !ok || member.Id == "" {
			conn.Close()
			return
		}

		// The session outlives the upgrade request, so it gets its own
		// context rather than the request's.
		f, err := ctrl.feed.Attach(context.Background(), member.Id)
		if err != nil {
			ctrl.logger.Error("feed attach failed",
				zap.String("member", member.Id), zap.Error(err))
			conn.Close()
			return
		}
		defer f.Close()

		// Reader exists only to notice the peer going away.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(countsPushInterval)
		defer ticker.Stop()

		lastCounts := f.Counts()
		if err := conn.WriteJSON(feedFrame{Type: "counts", Counts: lastCounts}); err != nil {
			return
		}

		for {
			select {
			case <-readDone:
				return
			case alert := <-f.Alerts():
				lastCounts = f.Counts()
				if err := conn.WriteJSON(feedFrame{Type: "alert", Alert: &alert, Counts: lastCounts}); err != nil {
					return
				}
			case <-ticker.C:
				counts := f.Counts()
				if counts == lastCounts {
					continue
				}
				lastCounts = counts
				if err := conn.WriteJSON(feedFrame{Type: "counts", Counts: counts}); err != nil {
					return
				}
			}
		}
	})
}
