package repository

import (
	"context"
	"errors"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

// FriendRepository defines data operations for friendship edges.
type FriendRepository interface {
	Create(ctx context.Context, friendship *models.Friendship) error
	GetByID(ctx context.Context, id uint) (*models.Friendship, error)
	GetBetween(ctx context.Context, a, b uint) (*models.Friendship, error)
	AreFriends(ctx context.Context, a, b uint) (bool, error)
	ListFriends(ctx context.Context, accountID uint) ([]models.Account, error)
	FriendIDs(ctx context.Context, accountID uint) ([]uint, error)
	ListAccepted(ctx context.Context, accountID uint) ([]models.Friendship, error)
	ListPending(ctx context.Context, accountID uint) ([]models.Friendship, error)
	ListSent(ctx context.Context, accountID uint) ([]models.Friendship, error)
	Accept(ctx context.Context, id uint, verified bool, at time.Time) error
	Delete(ctx context.Context, id uint) error
	DeleteBetween(ctx context.Context, a, b uint) (bool, error)
	CountAcceptedSince(ctx context.Context, accountID uint, since time.Time) (int64, error)
}

type friendRepository struct {
	db *gorm.DB
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db}
}

func (r *friendRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	if err := r.db.WithContext(ctx).Create(friendship).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("A friendship or request already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *friendRepository) GetByID(ctx context.Context, id uint) (*models.Friendship, error) {
	var f models.Friendship
	if err := r.db.WithContext(ctx).Preload("AccountA").Preload("AccountB").First(&f, id).Error; err != nil {
		return nil, wrapFirst(err, "Friend request", id)
	}
	return &f, nil
}

// GetBetween returns the edge for the unordered pair, or nil, nil when there is none.
func (r *friendRepository) GetBetween(ctx context.Context, a, b uint) (*models.Friendship, error) {
	lo, hi := models.CanonicalPair(a, b)
	var f models.Friendship
	err := r.db.WithContext(ctx).Where("account_a_id = ? AND account_b_id = ?", lo, hi).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &f, nil
}

func (r *friendRepository) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	lo, hi := models.CanonicalPair(a, b)
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("account_a_id = ? AND account_b_id = ? AND status = ?", lo, hi, models.FriendshipStatusAccepted).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *friendRepository) ListFriends(ctx context.Context, accountID uint) ([]models.Account, error) {
	var friends []models.Account
	if err := r.db.WithContext(ctx).
		Where("id IN (?) OR id IN (?)",
			r.acceptedSide(ctx, "account_b_id", "account_a_id", accountID),
			r.acceptedSide(ctx, "account_a_id", "account_b_id", accountID)).
		Order("display_name, id").
		Find(&friends).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return friends, nil
}

// acceptedSide selects column `pick` from accepted edges where column `match` is accountID.
func (r *friendRepository) acceptedSide(ctx context.Context, pick, match string, accountID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Friendship{}).Select(pick).
		Where(match+" = ? AND status = ?", accountID, models.FriendshipStatusAccepted)
}

func (r *friendRepository) FriendIDs(ctx context.Context, accountID uint) ([]uint, error) {
	edges, err := r.ListAccepted(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(edges))
	for i := range edges {
		ids = append(ids, edges[i].Other(accountID))
	}
	return ids, nil
}

func (r *friendRepository) ListAccepted(ctx context.Context, accountID uint) ([]models.Friendship, error) {
	var edges []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("(account_a_id = ? OR account_b_id = ?) AND status = ?", accountID, accountID, models.FriendshipStatusAccepted).
		Order("id").
		Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return edges, nil
}

// ListPending returns requests awaiting accountID's answer.
func (r *friendRepository) ListPending(ctx context.Context, accountID uint) ([]models.Friendship, error) {
	var requests []models.Friendship
	if err := r.db.WithContext(ctx).Preload("AccountA").Preload("AccountB").
		Where("(account_a_id = ? OR account_b_id = ?) AND requested_by_id <> ? AND status = ?",
			accountID, accountID, accountID, models.FriendshipStatusPending).
		Order("created_at DESC, id DESC").
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

// ListSent returns requests accountID made that are still pending.
func (r *friendRepository) ListSent(ctx context.Context, accountID uint) ([]models.Friendship, error) {
	var requests []models.Friendship
	if err := r.db.WithContext(ctx).Preload("AccountA").Preload("AccountB").
		Where("requested_by_id = ? AND status = ?", accountID, models.FriendshipStatusPending).
		Order("created_at DESC, id DESC").
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

// Accept moves a pending edge to accepted. A request that is no longer pending is a ValidationError.
func (r *friendRepository) Accept(ctx context.Context, id uint, verified bool, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("id = ? AND status = ?", id, models.FriendshipStatusPending).
		Updates(map[string]interface{}{
			"status":      models.FriendshipStatusAccepted,
			"accepted_at": at,
			"verified":    verified,
		})
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewValidationError("Friend request is no longer pending")
	}
	return nil
}

func (r *friendRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Friendship{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// DeleteBetween removes the edge for the pair and reports whether one existed.
func (r *friendRepository) DeleteBetween(ctx context.Context, a, b uint) (bool, error) {
	lo, hi := models.CanonicalPair(a, b)
	result := r.db.WithContext(ctx).Where("account_a_id = ? AND account_b_id = ?", lo, hi).Delete(&models.Friendship{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *friendRepository) CountAcceptedSince(ctx context.Context, accountID uint, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("(account_a_id = ? OR account_b_id = ?) AND status = ? AND created_at >= ?",
			accountID, accountID, models.FriendshipStatusAccepted, since).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
