package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/lib"
	"github.com/theleywin/Realtime-Talent-Nest/src/middleware"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/connections"
)

type ConnectionController struct {
	connections *connections.Service
}

func NewConnectionController(svc *connections.Service) *ConnectionController {
	return &ConnectionController{connections: svc}
}

// SendConnectionRequest sends a connection request from the
// authenticated member to the member in the path.
func (ctrl *ConnectionController) SendConnectionRequest(c *fiber.Ctx) error {
	member := middleware.Member(c)
	targetId := c.Params("userId")

	requestId, err := ctrl.connections.SendRequest(c.Context(), member.Id, targetId)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Connection request sent successfully",
		"requestId": requestId,
	})
}

// AcceptConnectionRequest accepts a pending request addressed to the
// authenticated member.
func (ctrl *ConnectionController) AcceptConnectionRequest(c *fiber.Ctx) error {
	member := middleware.Member(c)
	requestId := c.Params("requestId")

	conn, err := ctrl.connections.AcceptRequest(c.Context(), member.Id, requestId)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":    "Connection accepted successfully",
		"connection": conn,
	})
}

// RejectConnectionRequest rejects a request addressed to the
// authenticated member, freeing the pair for a fresh request.
func (ctrl *ConnectionController) RejectConnectionRequest(c *fiber.Ctx) error {
	member := middleware.Member(c)
	requestId := c.Params("requestId")

	if err := ctrl.connections.RejectRequest(c.Context(), member.Id, requestId); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(lib.MessageResponse("Connection request rejected"))
}

// GetConnectionRequests returns the current pending incoming requests,
// newest first.
func (ctrl *ConnectionController) GetConnectionRequests(c *fiber.Ctx) error {
	member := middleware.Member(c)

	requests, err := ctrl.connections.ListIncomingPending(c.Context(), member.Id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(requests)
}

// GetUserConnections returns the member's current accepted connections.
func (ctrl *ConnectionController) GetUserConnections(c *fiber.Ctx) error {
	member := middleware.Member(c)

	conns, err := ctrl.connections.ListConnections(c.Context(), member.Id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(conns)
}
