package server

import (
	"log/slog"
	"strconv"

	"familynova/internal/cache"
	"familynova/internal/middleware"
	"familynova/internal/models"
	"familynova/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set headers on a
// websocket handshake, so the socket authenticates with this short-lived,
// single-use ticket instead of the bearer token.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			&models.AppError{Code: models.CodeInternal, Message: "Realtime events are unavailable"})
	}

	ticket := uuid.NewString()
	accountID := currentAccountID(c)
	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket),
		strconv.FormatUint(uint64(accountID), 10), cache.WSTicketTTL).Err(); err != nil {
		return mapServiceError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// WebsocketHandler handles GET /api/ws. It registers the socket with the hub
// and streams the account's events until the client disconnects.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		accountID, ok := conn.Locals(middleware.LocalAccountID).(uint)
		if !ok || accountID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(accountID, conn)
		if err != nil {
			slog.Warn("websocket registration refused",
				slog.Uint64("account_id", uint64(accountID)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		if msg, err := notifications.NewEvent("connected", fiber.Map{"account_id": accountID}).Encode(); err == nil {
			client.TrySend([]byte(msg))
		}
		slog.Debug("websocket connected", slog.Uint64("account_id", uint64(accountID)))

		go client.WritePump()
		client.ReadPump()
	})
}
