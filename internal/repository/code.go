package repository

import (
	"context"
	"errors"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

const maxCodeAttempts = 5

// CodeRepository manages single-use friend codes and school codes.
type CodeRepository interface {
	IssueFriendCode(ctx context.Context, ownerID uint, now time.Time, ttl time.Duration, generate func() (string, error)) (*models.FriendCode, error)
	RedeemFriendCode(ctx context.Context, code string, redeemerID uint, now time.Time) (*models.Friendship, error)
	DeleteFriendCodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateSchoolCode(ctx context.Context, code *models.SchoolCode) error
	RedeemSchoolCode(ctx context.Context, code string, childID uint, now time.Time) (*models.SchoolCode, error)
}

type codeRepository struct {
	db *gorm.DB
}

// NewCodeRepository creates a new code repository
func NewCodeRepository(db *gorm.DB) CodeRepository {
	return &codeRepository{db: db}
}

// IssueFriendCode drops the owner's stale codes and returns the active one, creating
// it when there is none. Concurrent calls for one owner serialise on the owner's
// row lock. A generated value that collides is retried.
func (r *codeRepository) IssueFriendCode(ctx context.Context, ownerID uint, now time.Time, ttl time.Duration, generate func() (string, error)) (*models.FriendCode, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		value, err := generate()
		if err != nil {
			return nil, models.NewInternalError(err)
		}

		var issued models.FriendCode
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockAccount(tx, ownerID); err != nil {
				return err
			}
			if err := tx.Where("owner_id = ? AND (redeemed_at IS NOT NULL OR expires_at <= ?)", ownerID, now).
				Delete(&models.FriendCode{}).Error; err != nil {
				return err
			}

			err := tx.Where("owner_id = ? AND redeemed_at IS NULL AND expires_at > ?", ownerID, now).
				Order("expires_at DESC").First(&issued).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			issued = models.FriendCode{OwnerID: ownerID, Code: value, ExpiresAt: now.Add(ttl)}
			return tx.Create(&issued).Error
		})
		if err == nil {
			return &issued, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, passThrough(err)
		}
	}
	return nil, models.NewInternalError(errors.New("could not allocate a unique friend code"))
}

// RedeemFriendCode claims the code for redeemerID and makes the two accounts friends.
// An existing edge is reused; a pending one is accepted.
func (r *codeRepository) RedeemFriendCode(ctx context.Context, code string, redeemerID uint, now time.Time) (*models.Friendship, error) {
	var edge models.Friendship
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fc models.FriendCode
		if err := tx.Where("code = ?", code).First(&fc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewCodeNotFoundError()
			}
			return err
		}
		if fc.OwnerID == redeemerID {
			return models.NewValidationError("You cannot redeem your own friend code")
		}

		claim := tx.Model(&models.FriendCode{}).
			Where("id = ? AND redeemed_at IS NULL AND expires_at > ?", fc.ID, now).
			Updates(map[string]interface{}{"redeemed_by_id": redeemerID, "redeemed_at": now})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return models.NewCodeExpiredError()
		}

		var verifiedCount int64
		if err := tx.Model(&models.Account{}).
			Where("id IN ? AND parent_verified = ?", []uint{fc.OwnerID, redeemerID}, true).
			Count(&verifiedCount).Error; err != nil {
			return err
		}
		verified := verifiedCount > 0

		lo, hi := models.CanonicalPair(fc.OwnerID, redeemerID)
		err := tx.Where("account_a_id = ? AND account_b_id = ?", lo, hi).First(&edge).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			edge = models.Friendship{
				AccountAID:    lo,
				AccountBID:    hi,
				RequestedByID: redeemerID,
				Status:        models.FriendshipStatusAccepted,
				Verified:      verified,
				AcceptedAt:    &now,
			}
			return tx.Create(&edge).Error
		case err != nil:
			return err
		case edge.Status == models.FriendshipStatusPending:
			edge.Status = models.FriendshipStatusAccepted
			edge.AcceptedAt = &now
			edge.Verified = edge.Verified || verified
			return tx.Model(&edge).Updates(map[string]interface{}{
				"status":      edge.Status,
				"accepted_at": now,
				"verified":    edge.Verified,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err)
	}
	return &edge, nil
}

func (r *codeRepository) DeleteFriendCodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.FriendCode{})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *codeRepository) CreateSchoolCode(ctx context.Context, code *models.SchoolCode) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("School code already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// RedeemSchoolCode claims a school code for childID and records the school on the account.
func (r *codeRepository) RedeemSchoolCode(ctx context.Context, code string, childID uint, now time.Time) (*models.SchoolCode, error) {
	var sc models.SchoolCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&sc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewCodeNotFoundError()
			}
			return err
		}

		claim := tx.Model(&models.SchoolCode{}).
			Where("id = ? AND used_at IS NULL AND expires_at > ?", sc.ID, now).
			Updates(map[string]interface{}{"assigned_to_id": childID, "used_at": now})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return models.NewCodeExpiredError()
		}
		sc.AssignedToID = &childID
		sc.UsedAt = &now

		return tx.Model(&models.Account{}).Where("id = ?", childID).Updates(map[string]interface{}{
			"school_verified": true,
			"school":          sc.School,
			"grade":           sc.Grade,
			"verified_at":     now,
		}).Error
	})
	if err != nil {
		return nil, passThrough(err)
	}
	return &sc, nil
}
