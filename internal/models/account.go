// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// AccountRole distinguishes guardians from the minors they supervise.
type AccountRole string

const (
	RoleParent AccountRole = "parent"
	RoleChild  AccountRole = "child"
)

// Valid reports whether r is a known role.
func (r AccountRole) Valid() bool {
	return r == RoleParent || r == RoleChild
}

// Verification holds the identity checks an account has passed.
type Verification struct {
	ParentVerified bool       `gorm:"not null;default:false" json:"parent_verified"`
	SchoolVerified bool       `gorm:"not null;default:false" json:"school_verified"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
}

// Account represents a parent or child in FamilyNova.
type Account struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Role         AccountRole  `gorm:"type:varchar(10);not null;index" json:"role"`
	Email        string       `gorm:"uniqueIndex;not null" json:"email"`
	Password     string       `gorm:"not null" json:"-"`
	DisplayName  string       `gorm:"size:80;not null;index" json:"display_name"`
	AvatarURL    string       `json:"avatar_url"`
	School       string       `gorm:"size:120" json:"school"`
	Grade        string       `gorm:"size:20" json:"grade"`
	Verification Verification `gorm:"embedded" json:"verification"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
	LastLoginAt  *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsParent reports whether the account is a guardian account.
func (a *Account) IsParent() bool { return a.Role == RoleParent }

// IsChild reports whether the account is a minor account.
func (a *Account) IsChild() bool { return a.Role == RoleChild }

// IsVerified is true for a parent who passed guardian verification and for a
// child verified by both a parent and a school.
func (a *Account) IsVerified() bool {
	if a.IsChild() {
		return a.Verification.ParentVerified && a.Verification.SchoolVerified
	}
	return a.Verification.ParentVerified
}

// AccountSummary is the public projection of an account embedded in other payloads.
type AccountSummary struct {
	ID          uint        `json:"id"`
	Role        AccountRole `json:"role"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url"`
	IsVerified  bool        `json:"is_verified"`
}

// Summary returns the public projection of a.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:          a.ID,
		Role:        a.Role,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
		IsVerified:  a.IsVerified(),
	}
}

// AccountSearchResult is a search hit annotated relative to the searcher.
type AccountSearchResult struct {
	AccountSummary
	IsFriend bool `json:"is_friend"`
}

// ParentLink binds a parent account to a child account.
type ParentLink struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	ParentID uint      `gorm:"not null;uniqueIndex:idx_parent_child" json:"parent_id"`
	Parent   *Account  `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	ChildID  uint      `gorm:"not null;uniqueIndex:idx_parent_child;index" json:"child_id"`
	Child    *Account  `gorm:"foreignKey:ChildID" json:"child,omitempty"`
	LinkedAt time.Time `gorm:"autoCreateTime" json:"linked_at"`
}
