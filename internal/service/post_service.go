package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"familynova/internal/cache"
	"familynova/internal/models"
	"familynova/internal/notifications"
	"familynova/internal/observability"
	"familynova/internal/repository"
	"familynova/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type PostService struct {
	posts    repository.PostRepository
	accounts repository.AccountRepository
	events   EventSink
	now      func() time.Time
}

type CreatePostInput struct {
	AuthorID uint
	Content  string
	ImageURL string
	// VisibleToChildren defaults to true; children cannot turn it off.
	VisibleToChildren *bool
}

func NewPostService(
	posts repository.PostRepository,
	accounts repository.AccountRepository,
	events EventSink,
) *PostService {
	return &PostService{
		posts:    posts,
		accounts: accounts,
		events:   sinkOrNop(events),
		now:      time.Now,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	content, err := validation.ValidateContent("content", in.Content, models.MaxPostLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	author, err := s.accounts.GetByID(ctx, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if !author.IsActive {
		return nil, models.NewForbiddenError("Account is closed")
	}

	visible := true
	if author.IsParent() && in.VisibleToChildren != nil {
		visible = *in.VisibleToChildren
	}

	post := &models.Post{
		AuthorID:          author.ID,
		Content:           content,
		ImageURL:          strings.TrimSpace(in.ImageURL),
		VisibleToChildren: visible,
		Moderation:        initialModeration(author, s.now()),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	post.Author = author

	if post.Status == models.ModerationApproved {
		observability.ModerationDecisions.WithLabelValues(string(models.EntityPost), "auto_approved").Inc()
		cache.InvalidateFeeds(ctx)
	} else if author.IsChild() {
		notifyParents(ctx, s.accounts, s.events, author.ID, notifications.EventModerationPending, map[string]interface{}{
			"entity_type": models.EntityPost,
			"entity_id":   post.ID,
			"child_id":    author.ID,
		})
	}
	return post, nil
}

// GetPost returns a post the viewer may see. Authors and their parents also
// see the post while it is pending or after rejection.
func (s *PostService) GetPost(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	return loadVisiblePost(ctx, s.posts, s.accounts, postID, viewerID)
}

// DeletePost removes a post. Allowed for the author and the author's parents.
func (s *PostService) DeletePost(ctx context.Context, postID, requesterID uint) error {
	post, err := s.posts.GetByID(ctx, postID, requesterID)
	if err != nil {
		return err
	}
	if post.AuthorID != requesterID {
		if err := requireLinkedParent(ctx, s.accounts, requesterID, post.AuthorID, "You can only delete your own posts or your children's posts"); err != nil {
			return err
		}
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	cache.InvalidateFeeds(ctx)
	return nil
}

// ToggleLike flips the viewer's like on an approved post.
func (s *PostService) ToggleLike(ctx context.Context, postID, accountID uint) (*models.LikeResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "ToggleLike",
		attribute.Int64("post.id", int64(postID)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	post, err := s.posts.GetByID(ctx, postID, accountID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.ModerationApproved {
		if err = s.requireVisible(ctx, post, accountID); err != nil {
			return nil, err
		}
	}

	result, err := s.posts.ToggleLike(ctx, postID, accountID)
	if err != nil {
		return nil, err
	}
	state := "unliked"
	if result.Liked {
		state = "liked"
	}
	observability.LikeToggles.WithLabelValues(state).Inc()
	cache.InvalidateFeeds(ctx)
	return result, nil
}

// maxEmojiRunes bounds a custom emoji; flags and skin-tone sequences fit.
const maxEmojiRunes = 8

// ToggleReaction adds or removes a typed reaction on an approved post the
// viewer can see. An empty emoji falls back to the type's default.
func (s *PostService) ToggleReaction(ctx context.Context, postID, accountID uint, rawType, emoji string) (*models.ReactionResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "ToggleReaction",
		attribute.Int64("post.id", int64(postID)), attribute.String("reaction.type", rawType))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	reaction, ok := models.ParseReactionType(strings.ToLower(strings.TrimSpace(rawType)))
	if !ok {
		err = models.NewValidationError("Reaction type must be one of like, love, laugh, wow, sad, angry")
		return nil, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		emoji = reaction.DefaultEmoji()
	}
	if utf8.RuneCountInString(emoji) > maxEmojiRunes {
		err = models.NewValidationError("Emoji is too long")
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, postID, accountID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.ModerationApproved {
		if err = s.requireVisible(ctx, post, accountID); err != nil {
			return nil, err
		}
	}

	result, err := s.posts.ToggleReaction(ctx, postID, accountID, reaction, emoji)
	if err != nil {
		return nil, err
	}
	observability.ReactionToggles.WithLabelValues(string(reaction), result.Action).Inc()
	if reaction == models.ReactionLike {
		cache.InvalidateFeeds(ctx)
	}
	return result, nil
}

// ListReactions returns the reacting account IDs per type for a post the viewer can see.
func (s *PostService) ListReactions(ctx context.Context, postID, viewerID uint) (map[models.ReactionType][]uint, error) {
	if _, err := loadVisiblePost(ctx, s.posts, s.accounts, postID, viewerID); err != nil {
		return nil, err
	}
	return s.posts.Reactions(ctx, postID)
}

func (s *PostService) requireVisible(ctx context.Context, post *models.Post, viewerID uint) error {
	viewer, err := s.accounts.GetByID(ctx, viewerID)
	if err != nil {
		return err
	}
	ok, err := s.posts.IsVisible(ctx, post.ID, viewer)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFoundError("Post", post.ID)
	}
	return nil
}

// loadVisiblePost loads postID if viewerID may see it and hides it as NotFound otherwise.
func loadVisiblePost(ctx context.Context, posts repository.PostRepository, accounts repository.AccountRepository, postID, viewerID uint) (*models.Post, error) {
	post, err := posts.GetByID(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID == viewerID {
		return post, nil
	}
	if linked, err := accounts.IsLinkedParent(ctx, viewerID, post.AuthorID); err != nil {
		return nil, err
	} else if linked {
		return post, nil
	}

	viewer, err := accounts.GetByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	ok, err := posts.IsVisible(ctx, postID, viewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}
