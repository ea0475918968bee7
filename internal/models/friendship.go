package models

import (
	"time"

	"gorm.io/gorm"
)

// FriendshipStatus represents the status of a friendship request.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a request awaiting the other side.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates an established friendship.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// Friendship is the symmetric edge between two accounts. The pair is stored
// canonically with AccountAID < AccountBID so each pair has exactly one row.
type Friendship struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	AccountAID    uint             `gorm:"not null;uniqueIndex:idx_friendship_pair" json:"account_a_id"`
	AccountBID    uint             `gorm:"not null;uniqueIndex:idx_friendship_pair;index" json:"account_b_id"`
	RequestedByID uint             `gorm:"not null" json:"requested_by_id"`
	Status        FriendshipStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_friendships_status" json:"status"`
	Verified      bool             `gorm:"not null;default:false" json:"verified"`
	CreatedAt     time.Time        `json:"created_at"`
	AcceptedAt    *time.Time       `json:"accepted_at,omitempty"`

	AccountA *Account `gorm:"foreignKey:AccountAID" json:"account_a,omitempty"`
	AccountB *Account `gorm:"foreignKey:AccountBID" json:"account_b,omitempty"`
}

// TableName specifies the table name for GORM
func (Friendship) TableName() string {
	return "friendships"
}

// CanonicalPair orders two account IDs as (min, max).
func CanonicalPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// BeforeCreate enforces the canonical ordering of the pair.
func (f *Friendship) BeforeCreate(_ *gorm.DB) error {
	f.AccountAID, f.AccountBID = CanonicalPair(f.AccountAID, f.AccountBID)
	return nil
}

// Involves reports whether accountID is one side of the edge.
func (f *Friendship) Involves(accountID uint) bool {
	return f.AccountAID == accountID || f.AccountBID == accountID
}

// Other returns the side of the edge that is not accountID.
func (f *Friendship) Other(accountID uint) uint {
	if f.AccountAID == accountID {
		return f.AccountBID
	}
	return f.AccountAID
}

// Addressee is the side that did not send the request.
func (f *Friendship) Addressee() uint {
	return f.Other(f.RequestedByID)
}

// FriendCode is a short-lived single-use token that creates a friendship when redeemed.
type FriendCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	OwnerID      uint       `gorm:"not null;index" json:"owner_id"`
	Code         string     `gorm:"size:8;not null;uniqueIndex" json:"code"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	RedeemedByID *uint      `json:"redeemed_by_id,omitempty"`
	RedeemedAt   *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsActive reports whether the code can still be redeemed at now.
func (c *FriendCode) IsActive(now time.Time) bool {
	return c.RedeemedAt == nil && now.Before(c.ExpiresAt)
}

// SchoolCode is issued by a school and redeemed once by a child to prove enrolment.
type SchoolCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Code         string     `gorm:"size:16;not null;uniqueIndex" json:"code"`
	School       string     `gorm:"size:120;not null" json:"school"`
	Grade        string     `gorm:"size:20" json:"grade"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	AssignedToID *uint      `json:"assigned_to_id,omitempty"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
