package repository

import (
	"context"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

// ProfileChangeRepository stores children's profile change requests.
type ProfileChangeRepository interface {
	Create(ctx context.Context, req *models.ProfileChangeRequest) error
	GetByID(ctx context.Context, id uint) (*models.ProfileChangeRequest, error)
	ListByChildren(ctx context.Context, childIDs []uint) ([]models.ProfileChangeRequest, error)
	ListPendingByChildren(ctx context.Context, childIDs []uint) ([]models.ProfileChangeRequest, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type profileChangeRepository struct {
	db *gorm.DB
}

// NewProfileChangeRepository creates a new profile change repository
func NewProfileChangeRepository(db *gorm.DB) ProfileChangeRepository {
	return &profileChangeRepository{db: db}
}

// Create files req unless the child already has a pending request. The
// child's row lock makes concurrent filings see each other's insert.
func (r *profileChangeRepository) Create(ctx context.Context, req *models.ProfileChangeRequest) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAccount(tx, req.ChildID); err != nil {
			return err
		}
		var pending int64
		if err := tx.Model(&models.ProfileChangeRequest{}).
			Where("child_id = ? AND status = ?", req.ChildID, models.ModerationPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return models.NewValidationError("A conflicting profile change is already pending")
		}
		return tx.Create(req).Error
	})
	return passThrough(err)
}

func (r *profileChangeRepository) GetByID(ctx context.Context, id uint) (*models.ProfileChangeRequest, error) {
	var req models.ProfileChangeRequest
	if err := r.db.WithContext(ctx).Preload("Child").First(&req, id).Error; err != nil {
		return nil, wrapFirst(err, "Profile change request", id)
	}
	return &req, nil
}

func (r *profileChangeRepository) ListByChildren(ctx context.Context, childIDs []uint) ([]models.ProfileChangeRequest, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("child_id IN ?", childIDs), childIDs)
}

func (r *profileChangeRepository) ListPendingByChildren(ctx context.Context, childIDs []uint) ([]models.ProfileChangeRequest, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("child_id IN ? AND status = ?", childIDs, models.ModerationPending), childIDs)
}

func (r *profileChangeRepository) list(_ context.Context, q *gorm.DB, childIDs []uint) ([]models.ProfileChangeRequest, error) {
	reqs := []models.ProfileChangeRequest{}
	if len(childIDs) == 0 {
		return reqs, nil
	}
	if err := q.Preload("Child").Order("created_at DESC, id DESC").Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *profileChangeRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status <> ? AND resolved_at < ?", models.ModerationPending, cutoff).
		Delete(&models.ProfileChangeRequest{})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}
