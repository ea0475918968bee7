package server

import (
	"familynova/internal/middleware"
	"familynova/internal/models"
	"familynova/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

// Signup handles POST /api/auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Email       string             `json:"email"`
		Password    string             `json:"password"`
		DisplayName string             `json:"display_name"`
		Role        models.AccountRole `json:"role"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	account, err := s.accountSvc.CreateAccount(c.UserContext(), service.CreateAccountInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return s.respondWithToken(c, fiber.StatusCreated, account)
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	account, err := s.accountSvc.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	return s.respondWithToken(c, fiber.StatusOK, account)
}

func (s *Server) respondWithToken(c *fiber.Ctx, status int, account *models.Account) error {
	token, err := middleware.IssueToken(s.config.JWTSecret, account.ID, string(account.Role))
	if err != nil {
		return mapServiceError(c, models.NewInternalError(err))
	}
	return c.Status(status).JSON(AuthResponse{Token: token, Account: account})
}
