package server

import (
	"context"
	"log/slog"

	"familynova/internal/notifications"
	"familynova/internal/observability"
)

// Publish implements service.EventSink. With Redis the event goes through
// pub/sub so whichever instance holds the socket delivers it; otherwise it is
// broadcast to this process's connections.
func (s *Server) Publish(ctx context.Context, accountID uint, eventType string, payload any) {
	ctx, span := observability.TraceWebSocket(ctx, eventType)
	defer span.End()

	message, err := notifications.NewEvent(eventType, payload).Encode()
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode event", slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}

	if s.notifier.Enabled() {
		err := s.notifier.PublishUser(ctx, accountID, message)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "failed to publish event, delivering locally",
			slog.String("event", eventType), slog.Uint64("account_id", uint64(accountID)), slog.String("error", err.Error()))
	}
	s.hub.Broadcast(accountID, message)
}
