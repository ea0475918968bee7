package server

import (
	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /api/messages with body {"receiver_id": n, "content": "..."}
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req struct {
		ReceiverID uint   `json:"receiver_id"`
		Content    string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.messageSvc.SendMessage(c.UserContext(), currentAccountID(c), req.ReceiverID, req.Content)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetConversations handles GET /api/messages/conversations
func (s *Server) GetConversations(c *fiber.Ctx) error {
	conversations, err := s.messageSvc.ListConversations(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(conversations)
}

// GetConversation handles GET /api/messages/conversations/:userId?after_id=
// Clients poll with the last message ID they hold.
func (s *Server) GetConversation(c *fiber.Ctx) error {
	otherID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	afterID := c.QueryInt("after_id", 0)
	if afterID < 0 {
		afterID = 0
	}

	messages, err := s.messageSvc.ListConversation(c.UserContext(), currentAccountID(c), otherID, uint(afterID))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(messages)
}

// MarkConversationRead handles POST /api/messages/conversations/:userId/read
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	otherID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	updated, err := s.messageSvc.MarkRead(c.UserContext(), currentAccountID(c), otherID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"marked_read": updated})
}
