package service

import (
	"context"
	"time"

	"familynova/internal/cache"
	"familynova/internal/models"
	"familynova/internal/observability"
	"familynova/internal/repository"
)

const (
	defaultFeedLimit     = 20
	maxFeedLimit         = 100
	dashboardRecentLimit = 20
)

// FeedService assembles feeds, activity reports and the parent dashboard.
type FeedService struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	messages repository.MessageRepository
	friends  repository.FriendRepository
	accounts repository.AccountRepository
	changes  repository.ProfileChangeRepository
	now      func() time.Time
}

// NewFeedService returns a new FeedService.
func NewFeedService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	messages repository.MessageRepository,
	friends repository.FriendRepository,
	accounts repository.AccountRepository,
	changes repository.ProfileChangeRepository,
) *FeedService {
	return &FeedService{
		posts:    posts,
		comments: comments,
		messages: messages,
		friends:  friends,
		accounts: accounts,
		changes:  changes,
		now:      time.Now,
	}
}

// GetFeed returns the approved posts viewerID may see, newest first.
func (s *FeedService) GetFeed(ctx context.Context, viewerID uint, limit, offset int) ([]models.Post, error) {
	limit, offset = clampPagination(limit, offset, defaultFeedLimit, maxFeedLimit)

	var posts []models.Post
	hit, err := cache.Aside(ctx, cache.FeedKey(ctx, viewerID, limit, offset), &posts, cache.FeedTTL, func() error {
		viewer, err := s.accounts.GetByID(ctx, viewerID)
		if err != nil {
			return err
		}
		posts, err = s.posts.Feed(ctx, viewer, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	if hit {
		observability.FeedCacheLookups.WithLabelValues("hit").Inc()
	} else {
		observability.FeedCacheLookups.WithLabelValues("miss").Inc()
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

// GetActivityReport summarises a child's activity over period for a linked parent.
func (s *FeedService) GetActivityReport(ctx context.Context, requesterID, childID uint, period models.ReportPeriod) (*models.ActivityReport, error) {
	window, ok := period.Window()
	if !ok {
		return nil, models.NewValidationError("Period must be one of week, month or year")
	}
	child, err := s.accounts.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if !child.IsChild() {
		return nil, models.NewNotFoundError("Child", childID)
	}
	if err := requireLinkedParent(ctx, s.accounts, requesterID, childID, "You can only view reports for your own children"); err != nil {
		return nil, err
	}

	since := s.now().Add(-window)
	report := &models.ActivityReport{ChildID: childID, Period: period}
	if report.MessagesCount, err = s.messages.CountApprovedSentSince(ctx, childID, since); err != nil {
		return nil, err
	}
	if report.PostsCount, err = s.posts.CountApprovedSince(ctx, childID, since); err != nil {
		return nil, err
	}
	if report.FriendsCount, err = s.friends.CountAcceptedSince(ctx, childID, since); err != nil {
		return nil, err
	}
	if report.LastActivity, err = s.lastActivity(ctx, child); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *FeedService) lastActivity(ctx context.Context, child *models.Account) (*time.Time, error) {
	latest := child.LastLoginAt
	for _, fn := range []func(context.Context, uint) (*time.Time, error){
		s.posts.LatestAt,
		s.messages.LatestAt,
		s.comments.LatestAt,
	} {
		t, err := fn(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest, nil
}

// ChildOverview is one child's row on the parent dashboard.
type ChildOverview struct {
	Child                 models.Account `json:"child"`
	IsVerified            bool           `json:"is_verified"`
	PendingPosts          int            `json:"pending_posts"`
	PendingMessages       int            `json:"pending_messages"`
	PendingProfileChanges int            `json:"pending_profile_changes"`
}

// Dashboard is the parent's landing summary.
type Dashboard struct {
	Parent         models.AccountSummary `json:"parent"`
	Children       []ChildOverview       `json:"children"`
	RecentMessages []models.Message      `json:"recent_messages"`
}

// Dashboard returns parentID's children with their pending counts and recent messages.
func (s *FeedService) Dashboard(ctx context.Context, parentID uint) (*Dashboard, error) {
	parent, err := s.accounts.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, models.NewForbiddenError("Only parents have a dashboard")
	}
	children, err := s.accounts.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	childIDs := make([]uint, 0, len(children))
	for i := range children {
		childIDs = append(childIDs, children[i].ID)
	}

	posts, err := s.posts.ListPendingByAuthors(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListPendingBySenders(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	changes, err := s.changes.ListPendingByChildren(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	recent, err := s.messages.RecentInvolving(ctx, childIDs, dashboardRecentLimit)
	if err != nil {
		return nil, err
	}

	overview := make([]ChildOverview, 0, len(children))
	index := make(map[uint]int, len(children))
	for i := range children {
		index[children[i].ID] = i
		overview = append(overview, ChildOverview{Child: children[i], IsVerified: children[i].IsVerified()})
	}
	for i := range posts {
		overview[index[posts[i].AuthorID]].PendingPosts++
	}
	for i := range msgs {
		overview[index[msgs[i].SenderID]].PendingMessages++
	}
	for i := range changes {
		overview[index[changes[i].ChildID]].PendingProfileChanges++
	}

	return &Dashboard{
		Parent:         parent.Summary(),
		Children:       overview,
		RecentMessages: recent,
	}, nil
}
