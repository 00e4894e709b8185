package controllers

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/middleware"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/chat"
	"github.com/theleywin/Realtime-Talent-Nest/src/services/connections"
)

type ChatController struct {
	chat        *chat.Service
	connections *connections.Service
}

func NewChatController(chatSvc *chat.Service, connSvc *connections.Service) *ChatController {
	return &ChatController{chat: chatSvc, connections: connSvc}
}

type sendMessageBody struct {
	Text string `json:"text"`
}

// OpenChat ensures the channel with the partner exists and returns its
// id. Either participant may call it first; both get the same channel.
func (ctrl *ChatController) OpenChat(c *fiber.Ctx) error {
	member := middleware.Member(c)
	partnerId := c.Params("partnerId")

	channelId, err := ctrl.chat.EnsureChannel(c.Context(), member.Id, partnerId)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channelId": channelId,
	})
}

// SendMessage appends a message to the channel with the partner.
func (ctrl *ChatController) SendMessage(c *fiber.Ctx) error {
	member := middleware.Member(c)
	partnerId := c.Params("partnerId")

	var body sendMessageBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	channelId, err := ctrl.chat.EnsureChannel(c.Context(), member.Id, partnerId)
	if err != nil {
		return respondError(c, err)
	}
	messageId, err := ctrl.chat.AppendMessage(c.Context(), channelId, member.Id, body.Text)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"messageId": messageId,
		"channelId": channelId,
	})
}

// GetMessages returns the full ordered history of the channel with the
// partner.
func (ctrl *ChatController) GetMessages(c *fiber.Ctx) error {
	member := middleware.Member(c)
	partnerId := c.Params("partnerId")

	history, err := ctrl.chat.History(c.Context(), chat.ChannelId(member.Id, partnerId))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(history)
}

// GetConversations returns one preview per connected partner: the
// newest message exchanged with each, newest conversations first.
// Partners with no messages yet are omitted.
func (ctrl *ChatController) GetConversations(c *fiber.Ctx) error {
	member := middleware.Member(c)

	conns, err := ctrl.connections.ListConnections(c.Context(), member.Id)
	if err != nil {
		return respondError(c, err)
	}

	previews := make([]models.ConversationPreview, 0, len(conns))
	for _, conn := range conns {
		latest, err := ctrl.chat.LatestMessage(c.Context(), member.Id, conn.PartnerId)
		if err != nil {
			return respondError(c, err)
		}
		if latest == nil {
			continue
		}
		previews = append(previews, models.ConversationPreview{
			PartnerId: conn.PartnerId,
			Message:   *latest,
		})
	}

	sort.Slice(previews, func(i, j int) bool {
		return previews[i].Message.CreatedAt.After(previews[j].Message.CreatedAt)
	})
	return c.Status(fiber.StatusOK).JSON(previews)
}
