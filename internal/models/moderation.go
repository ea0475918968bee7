package models

import "time"

// ModerationStatus defines lifecycle states for reviewed content.
type ModerationStatus string

const (
	// ModerationPending indicates the item is awaiting a parent's review.
	ModerationPending ModerationStatus = "pending"
	// ModerationApproved indicates the item was accepted.
	ModerationApproved ModerationStatus = "approved"
	// ModerationRejected indicates the item was denied.
	ModerationRejected ModerationStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ModerationStatus) IsTerminal() bool {
	return s == ModerationApproved || s == ModerationRejected
}

// EntityType names a moderated entity kind.
type EntityType string

const (
	EntityPost          EntityType = "post"
	EntityMessage       EntityType = "message"
	EntityProfileChange EntityType = "profile_change"
)

// ParseEntityType validates a route value. It accepts the plural and
// hyphenated spellings clients commonly use.
func ParseEntityType(raw string) (EntityType, bool) {
	switch raw {
	case "post", "posts":
		return EntityPost, true
	case "message", "messages":
		return EntityMessage, true
	case "profile_change", "profile-change", "profile-changes", "profile_changes":
		return EntityProfileChange, true
	}
	return "", false
}

// Moderation is embedded in every reviewed entity.
type Moderation struct {
	Status          ModerationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ModeratedByID   *uint            `json:"moderated_by_id,omitempty"`
	ModeratedAt     *time.Time       `json:"moderated_at,omitempty"`
	RejectionReason string           `gorm:"type:text" json:"rejection_reason,omitempty"`
}

// ApprovedBy returns a Moderation already resolved as approved.
func ApprovedBy(moderatorID uint, at time.Time) Moderation {
	return Moderation{
		Status:        ModerationApproved,
		ModeratedByID: &moderatorID,
		ModeratedAt:   &at,
	}
}

// ProfileFields are the profile attributes a child may ask to change.
// A nil field means "leave as is".
type ProfileFields struct {
	DisplayName *string `gorm:"size:80" json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	School      *string `gorm:"size:120" json:"school,omitempty"`
	Grade       *string `gorm:"size:20" json:"grade,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f ProfileFields) IsEmpty() bool {
	return f.DisplayName == nil && f.AvatarURL == nil && f.School == nil && f.Grade == nil
}

// ProfileChangeRequest is a child's proposed profile edit awaiting a parent.
type ProfileChangeRequest struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ChildID       uint          `gorm:"not null;index" json:"child_id"`
	Child         *Account      `gorm:"foreignKey:ChildID" json:"child,omitempty"`
	RequestedByID uint          `gorm:"not null" json:"requested_by_id"`
	Proposed      ProfileFields `gorm:"embedded;embeddedPrefix:proposed_" json:"proposed"`
	Previous      ProfileFields `gorm:"embedded;embeddedPrefix:previous_" json:"previous"`
	Moderation
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ModerationQueue groups everything a parent still has to review.
type ModerationQueue struct {
	Posts          []Post                 `json:"posts"`
	Messages       []Message              `json:"messages"`
	ProfileChanges []ProfileChangeRequest `json:"profile_changes"`
}
