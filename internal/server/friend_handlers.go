package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetFriends handles GET /api/friends
func (s *Server) GetFriends(c *fiber.Ctx) error {
	friends, err := s.friendSvc.ListFriends(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(friends)
}

// SendFriendRequest handles POST /api/friends/requests/:userId
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	friendship, err := s.friendSvc.RequestFriend(c.UserContext(), currentAccountID(c), targetID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(friendship)
}

// GetPendingRequests handles GET /api/friends/requests
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	requests, err := s.friendSvc.ListPendingRequests(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(requests)
}

// GetSentRequests handles GET /api/friends/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	requests, err := s.friendSvc.ListSentRequests(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(requests)
}

// AcceptFriendRequest handles POST /api/friends/requests/:requestId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}
	friendship, err := s.friendSvc.AcceptFriend(c.UserContext(), currentAccountID(c), requestID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(friendship)
}

// RejectFriendRequest handles POST /api/friends/requests/:requestId/reject
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}
	if err := s.friendSvc.RejectFriend(c.UserContext(), currentAccountID(c), requestID); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	otherID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.friendSvc.RemoveFriend(c.UserContext(), currentAccountID(c), otherID); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueFriendCode handles POST /api/friends/codes
func (s *Server) IssueFriendCode(c *fiber.Ctx) error {
	code, err := s.friendSvc.IssueFriendCode(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(code)
}

// RedeemFriendCode handles POST /api/friends/codes/redeem with body {"code": "..."}
func (s *Server) RedeemFriendCode(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	friendship, err := s.friendSvc.RedeemFriendCode(c.UserContext(), req.Code, currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(friendship)
}
