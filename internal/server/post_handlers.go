package server

import (
	"familynova/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Content           string `json:"content"`
		ImageURL          string `json:"image_url,omitempty"`
		VisibleToChildren *bool  `json:"visible_to_children,omitempty"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postSvc.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID:          currentAccountID(c),
		Content:           req.Content,
		ImageURL:          req.ImageURL,
		VisibleToChildren: req.VisibleToChildren,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetFeed handles GET /api/posts/feed?limit=&offset=
func (s *Server) GetFeed(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	posts, err := s.feedSvc.GetFeed(c.UserContext(), currentAccountID(c), page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postSvc.GetPost(c.UserContext(), postID, currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postSvc.DeletePost(c.UserContext(), postID, currentAccountID(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:id/like. Calling it again removes the like.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	result, err := s.postSvc.ToggleLike(c.UserContext(), postID, currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(result)
}

// ToggleReaction handles POST /api/posts/:id/reactions
// Body: {"type": "love", "emoji": "😍"}. Sending the same type again removes it.
func (s *Server) ToggleReaction(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Type  string `json:"type"`
		Emoji string `json:"emoji"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	result, err := s.postSvc.ToggleReaction(c.UserContext(), postID, currentAccountID(c), req.Type, req.Emoji)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(result)
}

// GetReactions handles GET /api/posts/:id/reactions
func (s *Server) GetReactions(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	reactions, err := s.postSvc.ListReactions(c.UserContext(), postID, currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"reactions": reactions})
}
