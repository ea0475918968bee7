package server

import (
	"familynova/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetModerationQueue handles GET /api/moderation/queue
func (s *Server) GetModerationQueue(c *fiber.Ctx) error {
	queue, err := s.moderationSvc.Queue(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(queue)
}

// ApproveContent handles POST /api/moderation/:entityType/:id/approve
func (s *Server) ApproveContent(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	entity := models.EntityType(c.Params("entityType"))

	result, err := s.moderationSvc.Approve(c.UserContext(), entity, id, currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(result)
}

// RejectContent handles POST /api/moderation/:entityType/:id/reject
// with an optional body {"reason": "..."}.
func (s *Server) RejectContent(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	entity := models.EntityType(c.Params("entityType"))

	var req struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return nil
		}
	}

	result, err := s.moderationSvc.Reject(c.UserContext(), entity, id, currentAccountID(c), req.Reason)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(result)
}

// RequestProfileChange handles POST /api/profile-changes. Only the fields
// present in the body are proposed.
func (s *Server) RequestProfileChange(c *fiber.Ctx) error {
	var fields models.ProfileFields
	if err := parseBody(c, &fields); err != nil {
		return nil
	}

	change, err := s.moderationSvc.RequestProfileChange(c.UserContext(), currentAccountID(c), fields)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(change)
}

// ListProfileChanges handles GET /api/profile-changes
func (s *Server) ListProfileChanges(c *fiber.Ctx) error {
	changes, err := s.moderationSvc.ListProfileChanges(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(changes)
}
