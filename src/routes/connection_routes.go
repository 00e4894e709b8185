package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/controllers"
)

// ConnectionRoutes sets up routes for sending, accepting and rejecting
// connection requests, listing pending requests, and listing current
// connections.
func ConnectionRoutes(app *fiber.App, auth fiber.Handler, ctrl *controllers.ConnectionController) {
	connection := app.Group("/api/v1/connections", auth)

	connection.Post("/request/:userId", ctrl.SendConnectionRequest)
	connection.Put("/accept/:requestId", ctrl.AcceptConnectionRequest)
	connection.Put("/reject/:requestId", ctrl.RejectConnectionRequest)
	connection.Get("/requests", ctrl.GetConnectionRequests)
	connection.Get("/", ctrl.GetUserConnections)
}
