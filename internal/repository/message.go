package repository

import (
	"context"
	"errors"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

// MessageRepository defines data operations for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	Conversation(ctx context.Context, viewerID, otherID, afterID uint) ([]models.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID uint, at time.Time) (int64, error)
	MarkReadByIDs(ctx context.Context, receiverID uint, ids []uint, at time.Time) error
	LastApprovedBetween(ctx context.Context, a, b uint) (*models.Message, error)
	UnreadCounts(ctx context.Context, receiverID uint) (map[uint]int64, error)
	ListPendingBySenders(ctx context.Context, senderIDs []uint) ([]models.Message, error)
	RecentInvolving(ctx context.Context, accountIDs []uint, limit int) ([]models.Message, error)
	CountApprovedSentSince(ctx context.Context, senderID uint, since time.Time) (int64, error)
	LatestAt(ctx context.Context, senderID uint) (*time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func betweenPair(db *gorm.DB, a, b uint) *gorm.DB {
	return db.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Preload("Sender").First(&message, id).Error; err != nil {
		return nil, wrapFirst(err, "Message", id)
	}
	return &message, nil
}

// pollOverlap widens the after_id window so a message approved just before
// the anchor became visible is not skipped. Clients dedupe by id.
const pollOverlap = 2 * time.Second

// Conversation returns the messages between viewer and other that the viewer may
// see: approved ones and the viewer's own pending ones, oldest first.
//
// afterID names a message the caller already holds. Everything that became
// visible since that message did is returned, including older messages that
// were approved late; an unknown afterID falls back to a plain id cursor.
func (r *messageRepository) Conversation(ctx context.Context, viewerID, otherID, afterID uint) ([]models.Message, error) {
	db := r.db.WithContext(ctx)
	messages := []models.Message{}
	q := betweenPair(db, viewerID, otherID).
		Where("(status = ? OR (status = ? AND sender_id = ?))",
			models.ModerationApproved, models.ModerationPending, viewerID)
	if afterID > 0 {
		var anchors []models.Message
		if err := betweenPair(db.Select("id", "visible_at"), viewerID, otherID).
			Where("id = ?", afterID).Limit(1).Find(&anchors).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		if len(anchors) == 1 {
			q = q.Where("id <> ? AND visible_at >= ?", afterID, anchors[0].VisibleAt.Add(-pollOverlap))
		} else {
			q = q.Where("id > ?", afterID)
		}
	}
	if err := q.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// MarkRead marks every approved unread message from sender to receiver as read.
func (r *messageRepository) MarkRead(ctx context.Context, receiverID, senderID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND status = ? AND is_read = ?",
			receiverID, senderID, models.ModerationApproved, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *messageRepository) MarkReadByIDs(ctx context.Context, receiverID uint, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id IN ? AND receiver_id = ? AND status = ? AND is_read = ?",
			ids, receiverID, models.ModerationApproved, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// LastApprovedBetween returns the newest approved message of the pair, or nil.
func (r *messageRepository) LastApprovedBetween(ctx context.Context, a, b uint) (*models.Message, error) {
	var message models.Message
	err := betweenPair(r.db.WithContext(ctx), a, b).
		Where("status = ?", models.ModerationApproved).
		Order("created_at DESC, id DESC").
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &message, nil
}

// UnreadCounts returns approved unread messages addressed to receiverID, keyed by sender.
func (r *messageRepository) UnreadCounts(ctx context.Context, receiverID uint) (map[uint]int64, error) {
	var rows []struct {
		SenderID uint
		Count    int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where("receiver_id = ? AND status = ? AND is_read = ?", receiverID, models.ModerationApproved, false).
		Group("sender_id").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Count
	}
	return counts, nil
}

func (r *messageRepository) ListPendingBySenders(ctx context.Context, senderIDs []uint) ([]models.Message, error) {
	messages := []models.Message{}
	if len(senderIDs) == 0 {
		return messages, nil
	}
	if err := r.db.WithContext(ctx).Preload("Sender").
		Where("sender_id IN ? AND status = ?", senderIDs, models.ModerationPending).
		Order("created_at DESC, id DESC").
		Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// RecentInvolving returns the newest messages sent or received by any of accountIDs.
func (r *messageRepository) RecentInvolving(ctx context.Context, accountIDs []uint, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	if len(accountIDs) == 0 {
		return messages, nil
	}
	if err := r.db.WithContext(ctx).Preload("Sender").
		Where("sender_id IN ? OR receiver_id IN ?", accountIDs, accountIDs).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

func (r *messageRepository) CountApprovedSentSince(ctx context.Context, senderID uint, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND status = ? AND created_at >= ?", senderID, models.ModerationApproved, since).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *messageRepository) LatestAt(ctx context.Context, senderID uint) (*time.Time, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).Select("id", "created_at").
		Where("sender_id = ?", senderID).
		Order("created_at DESC").Limit(1).
		Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0].CreatedAt, nil
}

func (r *messageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Message{})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}
