package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/middleware"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/store"
)

type ActivityController struct {
	activities store.ActivityStore
}

func NewActivityController(activities store.ActivityStore) *ActivityController {
	return &ActivityController{activities: activities}
}

type publishActivityBody struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	RefId string `json:"refId"`
}

// PublishActivity records a feed-worthy event authored by the
// authenticated member: an opportunity, event, or blog posting. The
// write lands in the activity stream that connections' feeds watch.
func (ctrl *ActivityController) PublishActivity(c *fiber.Ctx) error {
	member := middleware.Member(c)

	var body publishActivityBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	activityType := models.ActivityType(body.Type)
	switch activityType {
	case models.ActivityTypeOpportunity, models.ActivityTypeEvent, models.ActivityTypeBlog:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Unknown activity type",
		})
	}
	if strings.TrimSpace(body.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Title is required",
		})
	}

	id, err := ctrl.activities.Insert(c.Context(), models.Activity{
		AuthorId:   member.Id,
		AuthorName: member.Name,
		Type:       activityType,
		Title:      body.Title,
		RefId:      body.RefId,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"activityId": id,
	})
}
