package service

import (
	"context"

	"familynova/internal/cache"
	"familynova/internal/models"
	"familynova/internal/repository"
	"familynova/internal/validation"
)

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	accounts repository.AccountRepository
}

type CreateCommentInput struct {
	AuthorID uint
	PostID   uint
	Content  string
}

func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	accounts repository.AccountRepository,
) *CommentService {
	return &CommentService{
		comments: comments,
		posts:    posts,
		accounts: accounts,
	}
}

// CreateComment adds a comment to an approved post the author can see.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	content, err := validation.ValidateContent("content", in.Content, models.MaxCommentLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post, err := loadVisiblePost(ctx, s.posts, s.accounts, in.PostID, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.ModerationApproved {
		return nil, models.NewForbiddenError("Post not approved")
	}

	comment := &models.Comment{
		PostID:   in.PostID,
		AuthorID: in.AuthorID,
		Content:  content,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	// Feed pages carry comments_count.
	cache.InvalidateFeeds(ctx)
	return comment, nil
}

// ListComments returns a visible post's comments oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID, viewerID uint) ([]models.Comment, error) {
	if _, err := loadVisiblePost(ctx, s.posts, s.accounts, postID, viewerID); err != nil {
		return nil, err
	}
	return s.comments.ListByPost(ctx, postID)
}
