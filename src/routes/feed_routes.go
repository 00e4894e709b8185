package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/controllers"
)

// FeedRoutes sets up the live notification feed websocket.
func FeedRoutes(app *fiber.App, auth fiber.Handler, ctrl *controllers.FeedController) {
	feed := app.Group("/api/v1/feed", auth)

	feed.Get("/ws", ctrl.RequireUpgrade, ctrl.Stream())
}
