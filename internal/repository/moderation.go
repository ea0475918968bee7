package repository

import (
	"context"
	"errors"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

// Decision is a moderator's verdict on one pending item.
type Decision struct {
	Status      models.ModerationStatus
	ModeratorID uint
	Reason      string
	At          time.Time
}

// Subject identifies who a moderated item belongs to.
type Subject struct {
	Entity   models.EntityType
	ID       uint
	Status   models.ModerationStatus
	AuthorID uint
	// ReceiverID is set for messages only.
	ReceiverID uint
}

// ModerationRepository performs moderation transitions on posts, messages and profile changes.
type ModerationRepository interface {
	Subject(ctx context.Context, entity models.EntityType, id uint) (*Subject, error)
	Resolve(ctx context.Context, entity models.EntityType, id uint, d Decision) error
}

type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a new moderation repository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func entityModel(entity models.EntityType) (interface{}, string, error) {
	switch entity {
	case models.EntityPost:
		return &models.Post{}, "Post", nil
	case models.EntityMessage:
		return &models.Message{}, "Message", nil
	case models.EntityProfileChange:
		return &models.ProfileChangeRequest{}, "Profile change request", nil
	}
	return nil, "", models.NewValidationError("Unknown entity type")
}

func (r *moderationRepository) Subject(ctx context.Context, entity models.EntityType, id uint) (*Subject, error) {
	db := r.db.WithContext(ctx)
	s := &Subject{Entity: entity, ID: id}
	switch entity {
	case models.EntityPost:
		var p models.Post
		if err := db.Select("id", "author_id", "status").First(&p, id).Error; err != nil {
			return nil, wrapFirst(err, "Post", id)
		}
		s.AuthorID, s.Status = p.AuthorID, p.Status
	case models.EntityMessage:
		var m models.Message
		if err := db.Select("id", "sender_id", "receiver_id", "status").First(&m, id).Error; err != nil {
			return nil, wrapFirst(err, "Message", id)
		}
		s.AuthorID, s.ReceiverID, s.Status = m.SenderID, m.ReceiverID, m.Status
	case models.EntityProfileChange:
		var pc models.ProfileChangeRequest
		if err := db.Select("id", "child_id", "status").First(&pc, id).Error; err != nil {
			return nil, wrapFirst(err, "Profile change request", id)
		}
		s.AuthorID, s.Status = pc.ChildID, pc.Status
	default:
		return nil, models.NewValidationError("Unknown entity type")
	}
	return s, nil
}

// Resolve moves a pending item to d.Status. Only one caller can win the
// transition; the others get AlreadyResolved. Approving a profile change
// applies the proposed fields to the child in the same transaction.
func (r *moderationRepository) Resolve(ctx context.Context, entity models.EntityType, id uint, d Decision) error {
	model, resource, err := entityModel(entity)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"status":           d.Status,
		"moderated_by_id":  d.ModeratorID,
		"moderated_at":     d.At,
		"rejection_reason": d.Reason,
	}
	switch {
	case entity == models.EntityProfileChange:
		updates["resolved_at"] = d.At
	case entity == models.EntityMessage && d.Status == models.ModerationApproved:
		updates["visible_at"] = d.At
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(model).
			Where("id = ? AND status = ?", id, models.ModerationPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return models.NewNotFoundError(resource, id)
			}
			return models.NewAlreadyResolvedError(resource, id)
		}

		if entity != models.EntityProfileChange || d.Status != models.ModerationApproved {
			return nil
		}
		var req models.ProfileChangeRequest
		if err := tx.First(&req, id).Error; err != nil {
			return err
		}
		fields := proposedUpdates(req.Proposed)
		if len(fields) == 0 {
			return nil
		}
		return tx.Model(&models.Account{}).Where("id = ?", req.ChildID).Updates(fields).Error
	})
	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return passThrough(err)
}

func proposedUpdates(p models.ProfileFields) map[string]interface{} {
	fields := map[string]interface{}{}
	if p.DisplayName != nil {
		fields["display_name"] = *p.DisplayName
	}
	if p.AvatarURL != nil {
		fields["avatar_url"] = *p.AvatarURL
	}
	if p.School != nil {
		fields["school"] = *p.School
	}
	if p.Grade != nil {
		fields["grade"] = *p.Grade
	}
	return fields
}
