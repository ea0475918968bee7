package repository

import (
	"context"
	"errors"
	"time"

	"familynova/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error)
	Feed(ctx context.Context, viewer *models.Account, limit, offset int) ([]models.Post, error)
	IsVisible(ctx context.Context, postID uint, viewer *models.Account) (bool, error)
	ToggleLike(ctx context.Context, postID, accountID uint) (*models.LikeResult, error)
	ToggleReaction(ctx context.Context, postID, accountID uint, reaction models.ReactionType, emoji string) (*models.ReactionResult, error)
	Reactions(ctx context.Context, postID uint) (map[models.ReactionType][]uint, error)
	Delete(ctx context.Context, id uint) error
	ListPendingByAuthors(ctx context.Context, authorIDs []uint) ([]models.Post, error)
	CountApprovedSince(ctx context.Context, authorID uint, since time.Time) (int64, error)
	LatestAt(ctx context.Context, authorID uint) (*time.Time, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// visibleTo restricts posts to approved rows the viewer may see: their own, their
// friends', their parents' child-visible posts and their children's posts.
// Child viewers never see posts hidden from children.
func visibleTo(db *gorm.DB, viewer *models.Account) *gorm.DB {
	db = db.Where("posts.status = ?", models.ModerationApproved).
		Where(`posts.author_id = ?
			OR posts.author_id IN (SELECT account_b_id FROM friendships WHERE account_a_id = ? AND status = ?)
			OR posts.author_id IN (SELECT account_a_id FROM friendships WHERE account_b_id = ? AND status = ?)
			OR (posts.visible_to_children = ? AND posts.author_id IN (SELECT parent_id FROM parent_links WHERE child_id = ?))
			OR posts.author_id IN (SELECT child_id FROM parent_links WHERE parent_id = ?)`,
			viewer.ID,
			viewer.ID, models.FriendshipStatusAccepted,
			viewer.ID, models.FriendshipStatusAccepted,
			true, viewer.ID,
			viewer.ID)
	if viewer.IsChild() {
		db = db.Where("posts.visible_to_children = ?", true)
	}
	return db
}

func (r *postRepository) applyPostDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	return db.Select("posts.*, "+
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comments_count, "+
		"EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.account_id = ?) AS liked", viewerID)
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// GetByID loads a post with its author and the viewer's like state. It does not
// apply visibility; callers decide who may see it.
func (r *postRepository) GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error) {
	var post models.Post
	err := r.applyPostDetails(r.db.WithContext(ctx), viewerID).
		Preload("Author").
		Where("posts.id = ?", id).
		First(&post).Error
	if err != nil {
		return nil, wrapFirst(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) Feed(ctx context.Context, viewer *models.Account, limit, offset int) ([]models.Post, error) {
	posts := make([]models.Post, 0, limit)
	err := r.applyPostDetails(visibleTo(r.db.WithContext(ctx).Model(&models.Post{}), viewer), viewer.ID).
		Preload("Author").
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) IsVisible(ctx context.Context, postID uint, viewer *models.Account) (bool, error) {
	var count int64
	if err := visibleTo(r.db.WithContext(ctx).Model(&models.Post{}), viewer).
		Where("posts.id = ?", postID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// lockApprovedPost takes the post row lock for the rest of tx and refuses
// posts that are not approved.
func lockApprovedPost(tx *gorm.DB, postID uint) error {
	var post models.Post
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "status").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", postID)
		}
		return err
	}
	if post.Status != models.ModerationApproved {
		return models.NewForbiddenError("Post not approved")
	}
	return nil
}

// toggleLike flips accountID's like and moves likes_count with it. The caller
// holds the post lock.
func toggleLike(tx *gorm.DB, postID, accountID uint) (bool, error) {
	removed := tx.Where("post_id = ? AND account_id = ?", postID, accountID).Delete(&models.Like{})
	if removed.Error != nil {
		return false, removed.Error
	}

	liked := false
	delta := 0
	if removed.RowsAffected > 0 {
		delta = -1
	} else {
		added := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Like{PostID: postID, AccountID: accountID})
		if added.Error != nil {
			return false, added.Error
		}
		liked = true
		if added.RowsAffected > 0 {
			delta = 1
		}
	}

	if delta != 0 {
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + ?", delta)).Error; err != nil {
			return false, err
		}
	}
	return liked, nil
}

// ToggleLike flips accountID's membership in the post's liker set and keeps
// likes_count in step, all under a lock on the post row.
func (r *postRepository) ToggleLike(ctx context.Context, postID, accountID uint) (*models.LikeResult, error) {
	result := &models.LikeResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockApprovedPost(tx, postID); err != nil {
			return err
		}
		liked, err := toggleLike(tx, postID, accountID)
		if err != nil {
			return err
		}
		result.Liked = liked
		return tx.Model(&models.Post{}).Select("likes_count").Where("id = ?", postID).
			Row().Scan(&result.LikesCount)
	})
	if err != nil {
		return nil, passThrough(err)
	}
	return result, nil
}

// ToggleReaction adds or removes one typed reaction under the post lock and
// returns the post's reactions afterwards. The like type goes through the
// likes table so likes_count stays authoritative.
func (r *postRepository) ToggleReaction(ctx context.Context, postID, accountID uint, reaction models.ReactionType, emoji string) (*models.ReactionResult, error) {
	result := &models.ReactionResult{Action: models.ReactionRemoved}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockApprovedPost(tx, postID); err != nil {
			return err
		}

		added := false
		if reaction == models.ReactionLike {
			liked, err := toggleLike(tx, postID, accountID)
			if err != nil {
				return err
			}
			added = liked
			emoji = reaction.DefaultEmoji()
		} else {
			removed := tx.Where("post_id = ? AND account_id = ? AND type = ?", postID, accountID, reaction).
				Delete(&models.Reaction{})
			if removed.Error != nil {
				return removed.Error
			}
			if removed.RowsAffected == 0 {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Reaction{
					PostID:    postID,
					AccountID: accountID,
					Type:      reaction,
					Emoji:     emoji,
				}).Error; err != nil {
					return err
				}
				added = true
			}
		}
		if added {
			result.Action = models.ReactionAdded
			result.Reaction = &models.ReactionDetail{Type: reaction, Emoji: emoji}
		}

		groups, err := reactionGroups(tx, postID)
		if err != nil {
			return err
		}
		result.Reactions = groups
		return nil
	})
	if err != nil {
		return nil, passThrough(err)
	}
	return result, nil
}

func (r *postRepository) Reactions(ctx context.Context, postID uint) (map[models.ReactionType][]uint, error) {
	groups, err := reactionGroups(r.db.WithContext(ctx), postID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return groups, nil
}

// reactionGroups lists reacting account IDs per type, oldest first.
func reactionGroups(db *gorm.DB, postID uint) (map[models.ReactionType][]uint, error) {
	groups := map[models.ReactionType][]uint{}

	var likers []uint
	if err := db.Model(&models.Like{}).Where("post_id = ?", postID).
		Order("id").Pluck("account_id", &likers).Error; err != nil {
		return nil, err
	}
	if len(likers) > 0 {
		groups[models.ReactionLike] = likers
	}

	var rows []models.Reaction
	if err := db.Select("account_id", "type").Where("post_id = ?", postID).
		Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		groups[row.Type] = append(groups[row.Type], row.AccountID)
	}
	return groups, nil
}

// Delete removes the post together with its likes, reactions and comments.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	return passThrough(err)
}

func (r *postRepository) ListPendingByAuthors(ctx context.Context, authorIDs []uint) ([]models.Post, error) {
	posts := []models.Post{}
	if len(authorIDs) == 0 {
		return posts, nil
	}
	if err := r.db.WithContext(ctx).Preload("Author").
		Where("author_id IN ? AND status = ?", authorIDs, models.ModerationPending).
		Order("created_at DESC, id DESC").
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) CountApprovedSince(ctx context.Context, authorID uint, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("author_id = ? AND status = ? AND created_at >= ?", authorID, models.ModerationApproved, since).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// LatestAt returns when authorID last posted, or nil.
func (r *postRepository) LatestAt(ctx context.Context, authorID uint) (*time.Time, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).Select("id", "created_at").
		Where("author_id = ?", authorID).
		Order("created_at DESC").Limit(1).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0].CreatedAt, nil
}
