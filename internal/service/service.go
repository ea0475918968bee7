// Package service holds FamilyNova's business rules on top of the repositories.
package service

import (
	"context"
	"log/slog"
	"time"

	"familynova/internal/models"
	"familynova/internal/repository"
)

// EventSink delivers realtime events to an account's open connections.
type EventSink interface {
	Publish(ctx context.Context, accountID uint, eventType string, payload any)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, uint, string, any) {}

func sinkOrNop(events EventSink) EventSink {
	if events == nil {
		return nopSink{}
	}
	return events
}

// autoApprove reports whether content by author skips parent review:
// only a parent who completed guardian verification qualifies.
func autoApprove(author *models.Account) bool {
	return author.IsParent() && author.Verification.ParentVerified
}

// initialModeration is the moderation state new content by author starts in.
func initialModeration(author *models.Account, now time.Time) models.Moderation {
	if autoApprove(author) {
		return models.ApprovedBy(author.ID, now)
	}
	return models.Moderation{Status: models.ModerationPending}
}

// requireLinkedParent fails with Forbidden unless parentID guards childID.
func requireLinkedParent(ctx context.Context, accounts repository.AccountRepository, parentID, childID uint, msg string) error {
	linked, err := accounts.IsLinkedParent(ctx, parentID, childID)
	if err != nil {
		return err
	}
	if !linked {
		return models.NewForbiddenError(msg)
	}
	return nil
}

// notifyParents sends eventType to every parent linked to childID.
func notifyParents(ctx context.Context, accounts repository.AccountRepository, events EventSink, childID uint, eventType string, payload any) {
	parents, err := accounts.ParentIDs(ctx, childID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load parents for notification", "child_id", childID, "event", eventType, "err", err)
		return
	}
	for _, id := range parents {
		events.Publish(ctx, id, eventType, payload)
	}
}

func clampPagination(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
