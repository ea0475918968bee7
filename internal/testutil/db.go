// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"familynova/internal/database"
	"familynova/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with every table migrated.
// One connection keeps the database alive and serialises transactions.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

var (
	hashOnce sync.Once
	hashed   string
	seq      atomic.Int64
)

// Password is the plain-text password of every fixture account.
const Password = "FamilyNova123"

func passwordHash(t testing.TB) string {
	hashOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		require.NoError(t, err)
		hashed = string(b)
	})
	return hashed
}

// AccountOption customises a fixture account before it is inserted.
type AccountOption func(*models.Account)

// Verified marks the account parent-verified.
func Verified() AccountOption {
	return func(a *models.Account) { a.Verification.ParentVerified = true }
}

// Inactive closes the account.
func Inactive() AccountOption {
	return func(a *models.Account) { a.IsActive = false }
}

// CreateAccount inserts an account with a unique email derived from name.
func CreateAccount(t testing.TB, db *gorm.DB, role models.AccountRole, name string, opts ...AccountOption) *models.Account {
	t.Helper()
	a := &models.Account{
		Role:        role,
		Email:       fmt.Sprintf("%s-%d@example.com", strings.ToLower(name), seq.Add(1)),
		Password:    passwordHash(t),
		DisplayName: name,
		IsActive:    true,
	}
	for _, opt := range opts {
		opt(a)
	}
	// is_active has a column default, so GORM writes true for a false value
	// and back-fills the struct. Close the account after the insert instead.
	active := a.IsActive
	require.NoError(t, db.Create(a).Error)
	if !active {
		require.NoError(t, db.Model(a).Update("is_active", false).Error)
		a.IsActive = false
	}
	return a
}

// CreateFamily inserts a parent and a linked child.
func CreateFamily(t testing.TB, db *gorm.DB, parentName, childName string, parentOpts ...AccountOption) (*models.Account, *models.Account) {
	t.Helper()
	parent := CreateAccount(t, db, models.RoleParent, parentName, parentOpts...)
	child := CreateAccount(t, db, models.RoleChild, childName)
	Link(t, db, parent, child)
	return parent, child
}

// Link records parent as a guardian of child.
func Link(t testing.TB, db *gorm.DB, parent, child *models.Account) {
	t.Helper()
	require.NoError(t, db.Create(&models.ParentLink{ParentID: parent.ID, ChildID: child.ID}).Error)
}

// MakeFriends inserts an accepted friendship between a and b.
func MakeFriends(t testing.TB, db *gorm.DB, a, b *models.Account) *models.Friendship {
	t.Helper()
	now := time.Now()
	f := &models.Friendship{
		AccountAID:    a.ID,
		AccountBID:    b.ID,
		RequestedByID: a.ID,
		Status:        models.FriendshipStatusAccepted,
		AcceptedAt:    &now,
	}
	require.NoError(t, db.Create(f).Error)
	return f
}

// CreatePost inserts a post by author with the given status.
func CreatePost(t testing.TB, db *gorm.DB, author *models.Account, status models.ModerationStatus, visibleToChildren bool) *models.Post {
	t.Helper()
	p := &models.Post{
		AuthorID:          author.ID,
		Content:           "post by " + author.DisplayName,
		VisibleToChildren: visibleToChildren,
		Moderation:        models.Moderation{Status: status},
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateMessage inserts a message with the given status.
func CreateMessage(t testing.TB, db *gorm.DB, from, to *models.Account, content string, status models.ModerationStatus) *models.Message {
	t.Helper()
	m := &models.Message{
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Content:    content,
		Moderation: models.Moderation{Status: status},
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

// PNG encodes a solid w x h image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// MemoryStore is an in-memory storage.Store.
type MemoryStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Types   map[string]string
	BaseURL string
}

// NewMemoryStore returns an empty MemoryStore serving from http://store.test.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Objects: map[string][]byte{}, Types: map[string]string{}, BaseURL: "http://store.test"}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[key] = append([]byte(nil), data...)
	s.Types[key] = contentType
	return s.BaseURL + "/" + key, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	delete(s.Types, key)
	return nil
}
