package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

// AccountRepository defines data operations for accounts and parent links.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	CreateChild(ctx context.Context, parentID uint, child *models.Account) error
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Account, error)
	Search(ctx context.Context, query string, excludeID uint, limit int) ([]models.Account, error)
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	VerifyGuardianship(ctx context.Context, parentID, childID uint, at time.Time) (*VerificationRelease, error)

	LinkParent(ctx context.Context, parentID, childID uint) error
	IsLinkedParent(ctx context.Context, parentID, childID uint) (bool, error)
	ParentIDs(ctx context.Context, childID uint) ([]uint, error)
	ChildIDs(ctx context.Context, parentID uint) ([]uint, error)
	Children(ctx context.Context, parentID uint) ([]models.Account, error)
}

// VerificationRelease reports the parent content approved by a guardianship verification.
type VerificationRelease struct {
	Posts    []models.Post
	Messages []models.Message
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Email is already registered")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// CreateChild inserts the child and its first parent link in one transaction.
func (r *accountRepository) CreateChild(ctx context.Context, parentID uint, child *models.Account) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(child).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.NewValidationError("Email is already registered")
			}
			return err
		}
		return tx.Create(&models.ParentLink{ParentID: parentID, ChildID: child.ID}).Error
	})
	return passThrough(err)
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, wrapFirst(err, "Account", id)
	}
	return &account, nil
}

// GetByEmail returns nil, nil when no account uses email.
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &account, nil
}

func (r *accountRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Account, error) {
	accounts := []models.Account{}
	if len(ids) == 0 {
		return accounts, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&accounts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return accounts, nil
}

func (r *accountRepository) Search(ctx context.Context, query string, excludeID uint, limit int) ([]models.Account, error) {
	var accounts []models.Account
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	if err := r.db.WithContext(ctx).
		Where("LOWER(display_name) LIKE ? ESCAPE '\\'", pattern).
		Where("id <> ? AND is_active = ?", excludeID, true).
		Order("display_name, id").
		Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return accounts, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *accountRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// VerifyGuardianship marks parent and child parent-verified and approves the
// parent's content that was held while the parent was unverified.
func (r *accountRepository) VerifyGuardianship(ctx context.Context, parentID, childID uint, at time.Time) (*VerificationRelease, error) {
	release := &VerificationRelease{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Account{}).Where("id IN ?", []uint{parentID, childID}).
			Updates(map[string]interface{}{
				"parent_verified": true,
				"verified_at":     at,
			}).Error; err != nil {
			return err
		}

		if err := tx.Where("author_id = ? AND status = ?", parentID, models.ModerationPending).
			Find(&release.Posts).Error; err != nil {
			return err
		}
		if err := tx.Where("sender_id = ? AND status = ?", parentID, models.ModerationPending).
			Find(&release.Messages).Error; err != nil {
			return err
		}

		approved := map[string]interface{}{
			"status":          models.ModerationApproved,
			"moderated_by_id": parentID,
			"moderated_at":    at,
		}
		if err := tx.Model(&models.Post{}).Where("author_id = ? AND status = ?", parentID, models.ModerationPending).
			Updates(approved).Error; err != nil {
			return err
		}
		approved["visible_at"] = at
		return tx.Model(&models.Message{}).Where("sender_id = ? AND status = ?", parentID, models.ModerationPending).
			Updates(approved).Error
	})
	if err != nil {
		return nil, passThrough(err)
	}
	return release, nil
}

func (r *accountRepository) LinkParent(ctx context.Context, parentID, childID uint) error {
	if err := r.db.WithContext(ctx).Create(&models.ParentLink{ParentID: parentID, ChildID: childID}).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewAlreadyLinkedError(parentID, childID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *accountRepository) IsLinkedParent(ctx context.Context, parentID, childID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ParentLink{}).
		Where("parent_id = ? AND child_id = ?", parentID, childID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *accountRepository) ParentIDs(ctx context.Context, childID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.ParentLink{}).
		Where("child_id = ?", childID).Order("parent_id").
		Pluck("parent_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *accountRepository) ChildIDs(ctx context.Context, parentID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.ParentLink{}).
		Where("parent_id = ?", parentID).Order("child_id").
		Pluck("child_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *accountRepository) Children(ctx context.Context, parentID uint) ([]models.Account, error) {
	var children []models.Account
	if err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.ParentLink{}).Select("child_id").Where("parent_id = ?", parentID)).
		Order("id").
		Find(&children).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return children, nil
}
