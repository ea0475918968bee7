package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"familynova/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "FamilyNova123"

// Factory builds FamilyNova entities with fake content and persists them.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	rnd    *rand.Rand
	hashed string
}

// NewFactory creates a Factory bound to db. The password hash is computed once.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	cost := bcrypt.DefaultCost
	if opts.FastHash {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(seed),
		rnd:    rand.New(rand.NewSource(seed)), // #nosec G404: seeding only
		hashed: string(hashed),
	}, nil
}

// pastTime returns a moment within the last MaxDays days.
func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	back := time.Duration(f.rnd.Intn(maxDays*24*60)) * time.Minute
	return time.Now().Add(-back)
}

// CreateAccount persists an account with a fake name and a unique example.com email.
func (f *Factory) CreateAccount(role models.AccountRole, overrides ...func(*models.Account)) (*models.Account, error) {
	first, last := f.faker.FirstName(), f.faker.LastName()
	name := first
	if role == models.RoleParent {
		name = first + " " + last
	}
	account := &models.Account{
		Role:        role,
		Email:       strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, f.faker.Number(1000, 9999))),
		Password:    f.hashed,
		DisplayName: name,
		AvatarURL:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		IsActive:    true,
	}
	for _, override := range overrides {
		override(account)
	}
	if err := f.db.Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// LinkChild records parent as a guardian of child.
func (f *Factory) LinkChild(parent, child *models.Account) error {
	return f.db.Create(&models.ParentLink{ParentID: parent.ID, ChildID: child.ID}).Error
}

// CreateFriendship persists an accepted friendship between a and b.
func (f *Factory) CreateFriendship(a, b *models.Account) (*models.Friendship, error) {
	at := f.pastTime()
	edge := &models.Friendship{
		AccountAID:    a.ID,
		AccountBID:    b.ID,
		RequestedByID: a.ID,
		Status:        models.FriendshipStatusAccepted,
		Verified:      a.Verification.ParentVerified || b.Verification.ParentVerified,
		CreatedAt:     at,
		AcceptedAt:    &at,
	}
	if err := f.db.Create(edge).Error; err != nil {
		return nil, err
	}
	return edge, nil
}

// moderation picks the state seeded content starts in. Parents' content is
// approved by themselves; children's is approved by moderatorID unless it
// lands in the pending share.
func (f *Factory) moderation(author *models.Account, moderatorID uint, at time.Time) models.Moderation {
	if author.IsParent() {
		return models.ApprovedBy(author.ID, at)
	}
	if f.rnd.Float64() < f.opts.PendingShare {
		return models.Moderation{Status: models.ModerationPending}
	}
	return models.ApprovedBy(moderatorID, at)
}

// CreatePost persists a post by author. moderatorID approves children's posts.
func (f *Factory) CreatePost(author *models.Account, moderatorID uint) (*models.Post, error) {
	at := f.pastTime()
	post := &models.Post{
		AuthorID:          author.ID,
		Content:           truncate(f.faker.Sentence(f.rnd.Intn(12)+4), models.MaxPostLength),
		VisibleToChildren: author.IsChild() || f.rnd.Intn(4) > 0,
		Moderation:        f.moderation(author, moderatorID, at),
		CreatedAt:         at,
	}
	if f.rnd.Intn(3) == 0 {
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID())
	}
	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a short comment by author on post.
func (f *Factory) CreateComment(author *models.Account, post *models.Post) (*models.Comment, error) {
	comment := &models.Comment{
		PostID:    post.ID,
		AuthorID:  author.ID,
		Content:   truncate(f.faker.Sentence(6), models.MaxCommentLength),
		CreatedAt: post.CreatedAt.Add(time.Duration(f.rnd.Intn(120)+1) * time.Minute),
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLike adds account to post's likers and bumps the stored count.
func (f *Factory) CreateLike(account *models.Account, post *models.Post) error {
	return f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Like{PostID: post.ID, AccountID: account.ID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error
	})
}

// CreateMessage persists a message from sender to receiver.
func (f *Factory) CreateMessage(sender, receiver *models.Account, moderatorID uint) (*models.Message, error) {
	at := f.pastTime()
	msg := &models.Message{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Content:    truncate(f.faker.Sentence(f.rnd.Intn(8)+2), models.MaxMessageLength),
		Moderation: f.moderation(sender, moderatorID, at),
		CreatedAt:  at,
	}
	if err := f.db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
