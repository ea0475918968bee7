package repository

import (
	"context"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
	LatestAt(ctx context.Context, authorID uint) (*time.Time, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	if err := r.db.WithContext(ctx).Preload("Author").First(comment, comment.ID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListByPost returns the post's comments oldest first.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := r.db.WithContext(ctx).Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

func (r *commentRepository) LatestAt(ctx context.Context, authorID uint) (*time.Time, error) {
	var comments []models.Comment
	if err := r.db.WithContext(ctx).Select("id", "created_at").
		Where("author_id = ?", authorID).
		Order("created_at DESC").Limit(1).
		Find(&comments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(comments) == 0 {
		return nil, nil
	}
	return &comments[0].CreatedAt, nil
}
