package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/controllers"
)

// ActivityRoutes sets up the activity publishing route used by the
// opportunity/event/blog posting collaborators.
func ActivityRoutes(app *fiber.App, auth fiber.Handler, ctrl *controllers.ActivityController) {
	activity := app.Group("/api/v1/activities", auth)

	activity.Post("/", ctrl.PublishActivity)
}
