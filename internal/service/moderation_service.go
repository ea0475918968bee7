package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"familynova/internal/cache"
	"familynova/internal/models"
	"familynova/internal/notifications"
	"familynova/internal/observability"
	"familynova/internal/repository"
	"familynova/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultRejectionReason     = "Rejected by parent"
	defaultPostRejectionReason = "Post rejected by parent"
)

// ModerationResult is the outcome of an approve or reject call.
type ModerationResult struct {
	EntityType models.EntityType       `json:"entity_type"`
	EntityID   uint                    `json:"entity_id"`
	Status     models.ModerationStatus `json:"status"`
	Reason     string                  `json:"rejection_reason,omitempty"`
}

// ModerationService lets parents review their children's content and profile changes.
type ModerationService struct {
	moderation repository.ModerationRepository
	accounts   repository.AccountRepository
	posts      repository.PostRepository
	messages   repository.MessageRepository
	changes    repository.ProfileChangeRepository
	events     EventSink
	now        func() time.Time
}

// NewModerationService returns a new ModerationService.
func NewModerationService(
	moderation repository.ModerationRepository,
	accounts repository.AccountRepository,
	posts repository.PostRepository,
	messages repository.MessageRepository,
	changes repository.ProfileChangeRepository,
	events EventSink,
) *ModerationService {
	return &ModerationService{
		moderation: moderation,
		accounts:   accounts,
		posts:      posts,
		messages:   messages,
		changes:    changes,
		events:     sinkOrNop(events),
		now:        time.Now,
	}
}

// Approve accepts a pending item on behalf of moderatorID.
func (s *ModerationService) Approve(ctx context.Context, entity models.EntityType, id, moderatorID uint) (*ModerationResult, error) {
	return s.decide(ctx, entity, id, moderatorID, models.ModerationApproved, "")
}

// Reject denies a pending item. An empty reason gets a default.
func (s *ModerationService) Reject(ctx context.Context, entity models.EntityType, id, moderatorID uint, reason string) (*ModerationResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectionReason
		if entity == models.EntityPost {
			reason = defaultPostRejectionReason
		}
	}
	return s.decide(ctx, entity, id, moderatorID, models.ModerationRejected, reason)
}

func (s *ModerationService) decide(ctx context.Context, entity models.EntityType, id, moderatorID uint, status models.ModerationStatus, reason string) (*ModerationResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ModerationService", "Decide",
		attribute.String("moderation.entity", string(entity)),
		attribute.Int64("moderation.entity_id", int64(id)),
		attribute.String("moderation.status", string(status)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	parsed, ok := models.ParseEntityType(string(entity))
	if !ok {
		err = models.NewValidationError("Unknown entity type")
		return nil, err
	}
	entity = parsed

	subject, err := s.moderation.Subject(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	if err = requireLinkedParent(ctx, s.accounts, moderatorID, subject.AuthorID, "Only a linked parent can moderate this item"); err != nil {
		observability.ModerationDecisions.WithLabelValues(string(entity), "forbidden").Inc()
		return nil, err
	}

	err = s.moderation.Resolve(ctx, entity, id, repository.Decision{
		Status:      status,
		ModeratorID: moderatorID,
		Reason:      reason,
		At:          s.now(),
	})
	if err != nil {
		if models.ErrorCode(err) == models.CodeAlreadyResolved {
			observability.ModerationDecisions.WithLabelValues(string(entity), "already_resolved").Inc()
		}
		return nil, err
	}
	observability.ModerationDecisions.WithLabelValues(string(entity), string(status)).Inc()

	result := &ModerationResult{EntityType: entity, EntityID: id, Status: status, Reason: reason}
	s.afterDecision(ctx, subject, result)
	return result, nil
}

func (s *ModerationService) afterDecision(ctx context.Context, subject *repository.Subject, result *ModerationResult) {
	switch subject.Entity {
	case models.EntityPost:
		cache.InvalidateFeeds(ctx)
		s.events.Publish(ctx, subject.AuthorID, notifications.EventPostModerated, result)
	case models.EntityMessage:
		s.events.Publish(ctx, subject.AuthorID, notifications.EventMessageModerated, result)
		if result.Status == models.ModerationApproved {
			msg, err := s.messages.GetByID(ctx, subject.ID)
			if err != nil {
				slog.WarnContext(ctx, "failed to load approved message", "message_id", subject.ID, "err", err)
				return
			}
			s.events.Publish(ctx, subject.ReceiverID, notifications.EventMessageReceived, msg)
		}
	case models.EntityProfileChange:
		if result.Status == models.ModerationApproved {
			cache.InvalidateAccount(ctx, subject.AuthorID)
			cache.InvalidateFeeds(ctx)
		}
		s.events.Publish(ctx, subject.AuthorID, notifications.EventProfileChangeModerated, result)
	}
}

// RequestProfileChange files a child's proposed profile edit for parent review.
func (s *ModerationService) RequestProfileChange(ctx context.Context, childID uint, fields models.ProfileFields) (*models.ProfileChangeRequest, error) {
	child, err := s.accounts.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if !child.IsChild() {
		return nil, models.NewForbiddenError("Only child accounts request profile changes")
	}

	proposed, previous, err := diffProfile(child, fields)
	if err != nil {
		return nil, err
	}
	req := &models.ProfileChangeRequest{
		ChildID:       childID,
		RequestedByID: childID,
		Proposed:      proposed,
		Previous:      previous,
		Moderation:    models.Moderation{Status: models.ModerationPending},
	}
	if err := s.changes.Create(ctx, req); err != nil {
		return nil, err
	}

	notifyParents(ctx, s.accounts, s.events, childID, notifications.EventModerationPending, map[string]interface{}{
		"entity_type": models.EntityProfileChange,
		"entity_id":   req.ID,
		"child_id":    childID,
	})
	return req, nil
}

// diffProfile keeps the fields that differ from the account and snapshots their current values.
func diffProfile(child *models.Account, fields models.ProfileFields) (models.ProfileFields, models.ProfileFields, error) {
	var proposed, previous models.ProfileFields

	pick := func(next *string, current string, dst, snap **string) {
		if next == nil {
			return
		}
		v := strings.TrimSpace(*next)
		if v == current {
			return
		}
		cur := current
		*dst, *snap = &v, &cur
	}

	if fields.DisplayName != nil {
		if err := validation.ValidateDisplayName(*fields.DisplayName); err != nil {
			return proposed, previous, models.NewValidationError(err.Error())
		}
	}
	pick(fields.DisplayName, child.DisplayName, &proposed.DisplayName, &previous.DisplayName)
	pick(fields.AvatarURL, child.AvatarURL, &proposed.AvatarURL, &previous.AvatarURL)
	pick(fields.School, child.School, &proposed.School, &previous.School)
	pick(fields.Grade, child.Grade, &proposed.Grade, &previous.Grade)

	if proposed.IsEmpty() {
		return proposed, previous, models.NewValidationError("No profile changes requested")
	}
	return proposed, previous, nil
}

// ListProfileChanges returns a child's own requests, or a parent's children's requests.
func (s *ModerationService) ListProfileChanges(ctx context.Context, requesterID uint) ([]models.ProfileChangeRequest, error) {
	requester, err := s.accounts.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	childIDs := []uint{requesterID}
	if requester.IsParent() {
		if childIDs, err = s.accounts.ChildIDs(ctx, requesterID); err != nil {
			return nil, err
		}
	}
	return s.changes.ListByChildren(ctx, childIDs)
}

// Queue returns everything parentID's children have waiting for review, newest first.
func (s *ModerationService) Queue(ctx context.Context, parentID uint) (*models.ModerationQueue, error) {
	parent, err := s.accounts.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, models.NewForbiddenError("Only parents have a moderation queue")
	}
	childIDs, err := s.accounts.ChildIDs(ctx, parentID)
	if err != nil {
		return nil, err
	}

	queue := &models.ModerationQueue{}
	if queue.Posts, err = s.posts.ListPendingByAuthors(ctx, childIDs); err != nil {
		return nil, err
	}
	if queue.Messages, err = s.messages.ListPendingBySenders(ctx, childIDs); err != nil {
		return nil, err
	}
	if queue.ProfileChanges, err = s.changes.ListPendingByChildren(ctx, childIDs); err != nil {
		return nil, err
	}
	return queue, nil
}
