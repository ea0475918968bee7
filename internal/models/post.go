package models

import (
	"time"

	"gorm.io/gorm"
)

// Content limits.
const (
	MaxPostLength    = 500
	MaxCommentLength = 200
	MaxMessageLength = 1000
)

// Post represents a post shared with family and friends.
type Post struct {
	ID                uint     `gorm:"primaryKey" json:"id"`
	AuthorID          uint     `gorm:"not null;index" json:"author_id"`
	Author            *Account `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content           string   `gorm:"type:text;not null" json:"content"`
	ImageURL          string   `json:"image_url,omitempty"`
	VisibleToChildren bool     `gorm:"not null" json:"visible_to_children"`
	Moderation
	// LikesCount is kept in step with the likes table inside ToggleLike.
	LikesCount int `gorm:"not null;default:0" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int `gorm:"->;-:migration" json:"comments_count"`
	// Liked indicates whether the viewer liked this post (computed)
	Liked     bool      `gorm:"->;-:migration" json:"liked"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Like records one account's membership in a post's liker set.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_account" json:"post_id"`
	AccountID uint      `gorm:"not null;uniqueIndex:idx_post_account;index" json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeResult is the authoritative state after a toggle.
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// ReactionType names one of the emoji reactions a post can receive.
type ReactionType string

// Reaction types. A "like" reaction is the post's like; it lives in the likes table.
const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

var defaultReactionEmoji = map[ReactionType]string{
	ReactionLike:  "❤️",
	ReactionLove:  "😍",
	ReactionLaugh: "😂",
	ReactionWow:   "😮",
	ReactionSad:   "😢",
	ReactionAngry: "😠",
}

// ParseReactionType validates a client-supplied reaction type.
func ParseReactionType(raw string) (ReactionType, bool) {
	t := ReactionType(raw)
	_, ok := defaultReactionEmoji[t]
	return t, ok
}

// DefaultEmoji is shown when the client does not pick one.
func (t ReactionType) DefaultEmoji() string {
	return defaultReactionEmoji[t]
}

// Reaction is one account's typed reaction to a post. An account can hold
// several types on the same post but each type once.
type Reaction struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	PostID    uint         `gorm:"not null;uniqueIndex:idx_reaction_post_account_type,priority:1" json:"post_id"`
	AccountID uint         `gorm:"not null;uniqueIndex:idx_reaction_post_account_type,priority:2;index" json:"account_id"`
	Type      ReactionType `gorm:"type:varchar(16);not null;uniqueIndex:idx_reaction_post_account_type,priority:3" json:"type"`
	Emoji     string       `gorm:"type:varchar(32);not null" json:"emoji"`
	CreatedAt time.Time    `json:"created_at"`
}

// Toggle outcomes.
const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

// ReactionDetail describes the reaction a toggle added.
type ReactionDetail struct {
	Type  ReactionType `json:"type"`
	Emoji string       `json:"emoji"`
}

// ReactionResult is the state of a post's reactions after a toggle. Reactions
// lists the reacting account IDs per type.
type ReactionResult struct {
	Action    string                  `json:"action"`
	Reaction  *ReactionDetail         `json:"reaction"`
	Reactions map[ReactionType][]uint `json:"reactions"`
}

// Comment represents a comment on a post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    *Account  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Message is a direct message between two friends.
type Message struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	SenderID   uint     `gorm:"not null;index:idx_messages_pair,priority:1" json:"sender_id"`
	Sender     *Account `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReceiverID uint     `gorm:"not null;index:idx_messages_pair,priority:2;index" json:"receiver_id"`
	Content    string   `gorm:"type:text;not null" json:"content"`
	Moderation
	IsRead    bool       `gorm:"not null;default:false" json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	// VisibleAt is when the message last changed visibility: creation for
	// the sender, approval for the receiver. Conversation polling pages on it.
	VisibleAt time.Time `gorm:"index" json:"visible_at"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate stamps VisibleAt from the moderation time or the creation time.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if !m.VisibleAt.IsZero() {
		return nil
	}
	switch {
	case m.ModeratedAt != nil:
		m.VisibleAt = *m.ModeratedAt
	case !m.CreatedAt.IsZero():
		m.VisibleAt = m.CreatedAt
	default:
		m.VisibleAt = time.Now()
	}
	return nil
}

// NoMessagesYet is the preview shown for a friend with no approved messages.
const NoMessagesYet = "No messages yet"

// ConversationSummary is one row of a conversation list.
type ConversationSummary struct {
	Friend      AccountSummary `json:"friend"`
	LastMessage string         `json:"last_message"`
	LastAt      time.Time      `json:"last_at"`
	UnreadCount int64          `json:"unread_count"`
}

// ReportPeriod is the window an activity report covers.
type ReportPeriod string

const (
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
	PeriodYear  ReportPeriod = "year"
)

// Window returns the duration the period covers.
func (p ReportPeriod) Window() (time.Duration, bool) {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour, true
	case PeriodMonth:
		return 30 * 24 * time.Hour, true
	case PeriodYear:
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

// ActivityReport is a point-in-time snapshot of a child's activity.
type ActivityReport struct {
	ChildID       uint         `json:"child_id"`
	Period        ReportPeriod `json:"period"`
	MessagesCount int64        `json:"messages_count"`
	PostsCount    int64        `json:"posts_count"`
	FriendsCount  int64        `json:"friends_count"`
	LastActivity  *time.Time   `json:"last_activity"`
}
