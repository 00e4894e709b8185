package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/controllers"
)

// ChatRoutes sets up routes for opening 1:1 channels, sending messages,
// reading history, and listing conversation previews.
func ChatRoutes(app *fiber.App, auth fiber.Handler, ctrl *controllers.ChatController) {
	chat := app.Group("/api/v1/chats", auth)

	chat.Get("/", ctrl.GetConversations)
	chat.Post("/:partnerId", ctrl.OpenChat)
	chat.Post("/:partnerId/messages", ctrl.SendMessage)
	chat.Get("/:partnerId/messages", ctrl.GetMessages)
}
