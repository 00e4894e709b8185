// Package controllers maps the HTTP surface onto the realtime core
// services. Handlers stay thin: parse, call the service, translate the
// error taxonomy onto statuses.
package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/apperr"
	"github.com/theleywin/Realtime-Talent-Nest/src/lib"
)

// respondError translates a service error onto the HTTP status and the
// message-body shape the API uses everywhere.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return c.Status(statusOf(appErr.Kind())).JSON(lib.MessageResponse(appErr.Message()))
	}
	return c.Status(fiber.StatusInternalServerError).JSON(lib.MessageResponse("Server error"))
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
