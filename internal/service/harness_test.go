package service

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"familynova/internal/cache"
	"familynova/internal/repository"
	"familynova/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordedEvent struct {
	AccountID uint
	Type      string
	Payload   any
}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) Publish(_ context.Context, accountID uint, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{AccountID: accountID, Type: eventType, Payload: payload})
}

// typesFor returns the event types delivered to accountID in order.
func (r *recordingSink) typesFor(accountID uint) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.AccountID == accountID {
			out = append(out, e.Type)
		}
	}
	return out
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	db   *gorm.DB
	sink *recordingSink

	accountRepo repository.AccountRepository
	friendRepo  repository.FriendRepository
	codeRepo    repository.CodeRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	messageRepo repository.MessageRepository
	changeRepo  repository.ProfileChangeRepository
	modRepo     repository.ModerationRepository

	accounts   *AccountService
	friends    *FriendService
	posts      *PostService
	comments   *CommentService
	messages   *MessageService
	moderation *ModerationService
	feed       *FeedService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	h := &harness{
		db:          db,
		sink:        &recordingSink{},
		accountRepo: repository.NewAccountRepository(db),
		friendRepo:  repository.NewFriendRepository(db),
		codeRepo:    repository.NewCodeRepository(db),
		postRepo:    repository.NewPostRepository(db),
		commentRepo: repository.NewCommentRepository(db),
		messageRepo: repository.NewMessageRepository(db),
		changeRepo:  repository.NewProfileChangeRepository(db),
		modRepo:     repository.NewModerationRepository(db),
	}
	h.accounts = NewAccountService(h.accountRepo, h.friendRepo, h.codeRepo, h.sink)
	h.accounts.hashCost = bcrypt.MinCost
	h.friends = NewFriendService(h.friendRepo, h.accountRepo, h.codeRepo, h.sink)
	h.posts = NewPostService(h.postRepo, h.accountRepo, h.sink)
	h.comments = NewCommentService(h.commentRepo, h.postRepo, h.accountRepo)
	h.messages = NewMessageService(h.messageRepo, h.friendRepo, h.accountRepo, h.sink)
	h.moderation = NewModerationService(h.modRepo, h.accountRepo, h.postRepo, h.messageRepo, h.changeRepo, h.sink)
	h.feed = NewFeedService(h.postRepo, h.commentRepo, h.messageRepo, h.friendRepo, h.accountRepo, h.changeRepo)
	return h
}

// withRedis points the cache package at a private miniredis for the test.
func withRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = cache.Close()
		mr.Close()
	})
	return mr
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
