package server

import (
	"strings"

	"familynova/internal/models"
	"familynova/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMe handles GET /api/accounts/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	account, err := s.accountSvc.GetAccount(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(account)
}

// SearchAccounts handles GET /api/accounts/search?q=...
func (s *Server) SearchAccounts(c *fiber.Ctx) error {
	results, err := s.accountSvc.SearchAccounts(c.UserContext(), c.Query("q"), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(results)
}

// CreateChild handles POST /api/parents/children
func (s *Server) CreateChild(c *fiber.Ctx) error {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		School      string `json:"school"`
		Grade       string `json:"grade"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	child, err := s.accountSvc.CreateChild(c.UserContext(), currentAccountID(c), service.CreateChildInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		School:      req.School,
		Grade:       req.Grade,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(child)
}

// ListChildren handles GET /api/parents/children
func (s *Server) ListChildren(c *fiber.Ctx) error {
	children, err := s.accountSvc.ListChildren(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(children)
}

// LinkChild handles POST /api/parents/children/:childId/parents
// with body {"parent_id": n}; the caller must already guard the child.
func (s *Server) LinkChild(c *fiber.Ctx) error {
	childID, err := parseID(c, "childId")
	if err != nil {
		return nil
	}
	var req struct {
		ParentID uint `json:"parent_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.ParentID == 0 {
		return mapServiceError(c, models.NewValidationError("parent_id is required"))
	}

	if err := s.accountSvc.LinkChild(c.UserContext(), currentAccountID(c), req.ParentID, childID); err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"parent_id": req.ParentID,
		"child_id":  childID,
	})
}

// GetActivityReport handles GET /api/parents/children/:childId/activity?period=week|month|year
func (s *Server) GetActivityReport(c *fiber.Ctx) error {
	childID, err := parseID(c, "childId")
	if err != nil {
		return nil
	}
	period := models.ReportPeriod(strings.ToLower(c.Query("period", string(models.PeriodWeek))))

	report, err := s.feedSvc.GetActivityReport(c.UserContext(), currentAccountID(c), childID, period)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(report)
}

// GetDashboard handles GET /api/parents/dashboard
func (s *Server) GetDashboard(c *fiber.Ctx) error {
	dashboard, err := s.feedSvc.Dashboard(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(dashboard)
}

// GetParentConnections handles GET /api/parents/connections
func (s *Server) GetParentConnections(c *fiber.Ctx) error {
	parents, err := s.friendSvc.GetParentConnections(c.UserContext(), currentAccountID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(parents)
}

// VerifyChildAsParent handles POST /api/verification/parent/:childId
func (s *Server) VerifyChildAsParent(c *fiber.Ctx) error {
	childID, err := parseID(c, "childId")
	if err != nil {
		return nil
	}
	child, err := s.accountSvc.VerifyChildAsParent(c.UserContext(), currentAccountID(c), childID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(child)
}

// VerifySchool handles POST /api/verification/school with body {"code": "..."}
func (s *Server) VerifySchool(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	account, err := s.accountSvc.VerifySchool(c.UserContext(), currentAccountID(c), req.Code)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(account)
}
