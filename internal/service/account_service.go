package service

import (
	"context"
	"strings"
	"time"

	"familynova/internal/cache"
	"familynova/internal/models"
	"familynova/internal/notifications"
	"familynova/internal/observability"
	"familynova/internal/repository"
	"familynova/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

const maxSearchResults = 20

// AccountService manages registration, families and verification.
type AccountService struct {
	accounts repository.AccountRepository
	friends  repository.FriendRepository
	codes    repository.CodeRepository
	events   EventSink
	now      func() time.Time
	hashCost int
}

// NewAccountService returns a new AccountService.
func NewAccountService(
	accounts repository.AccountRepository,
	friends repository.FriendRepository,
	codes repository.CodeRepository,
	events EventSink,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		friends:  friends,
		codes:    codes,
		events:   sinkOrNop(events),
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// CreateAccountInput is the public registration payload.
type CreateAccountInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        models.AccountRole
}

// CreateChildInput is what a parent supplies for a new child account.
type CreateChildInput struct {
	Email       string
	Password    string
	DisplayName string
	School      string
	Grade       string
}

func (s *AccountService) newAccount(role models.AccountRole, email, password, displayName string) (*models.Account, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &models.Account{
		Role:        role,
		Email:       email,
		Password:    string(hash),
		DisplayName: strings.TrimSpace(displayName),
		IsActive:    true,
	}, nil
}

// CreateAccount registers a parent. Children are created by their parents.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*models.Account, error) {
	if in.Role == "" {
		in.Role = models.RoleParent
	}
	if in.Role != models.RoleParent {
		return nil, models.NewValidationError("Child accounts must be created by a parent")
	}
	account, err := s.newAccount(models.RoleParent, in.Email, in.Password, in.DisplayName)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Authenticate checks credentials and records the login time.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if account == nil || bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid email or password")
	}
	if !account.IsActive {
		return nil, models.NewForbiddenError("Account is closed")
	}
	now := s.now()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		return nil, err
	}
	account.LastLoginAt = &now
	return account, nil
}

// GetAccount returns an account by ID, served from the account cache when possible.
func (s *AccountService) GetAccount(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	_, err := cache.Aside(ctx, cache.AccountKey(id), &account, cache.AccountTTL, func() error {
		loaded, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		account = *loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateChild creates a child account owned by parentID.
func (s *AccountService) CreateChild(ctx context.Context, parentID uint, in CreateChildInput) (*models.Account, error) {
	parent, err := s.accounts.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, models.NewForbiddenError("Only parents can create child accounts")
	}
	child, err := s.newAccount(models.RoleChild, in.Email, in.Password, in.DisplayName)
	if err != nil {
		return nil, err
	}
	child.School = strings.TrimSpace(in.School)
	child.Grade = strings.TrimSpace(in.Grade)
	if err := s.accounts.CreateChild(ctx, parentID, child); err != nil {
		return nil, err
	}
	return child, nil
}

// ListChildren returns the children linked to parentID.
func (s *AccountService) ListChildren(ctx context.Context, parentID uint) ([]models.Account, error) {
	return s.accounts.Children(ctx, parentID)
}

// LinkChild adds parentID as a guardian of childID. The requester must already guard the child.
func (s *AccountService) LinkChild(ctx context.Context, requesterID, parentID, childID uint) error {
	if err := requireLinkedParent(ctx, s.accounts, requesterID, childID, "You can only add parents to your own children"); err != nil {
		return err
	}
	target, err := s.accounts.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	if !target.IsParent() {
		return models.NewValidationError("Only parent accounts can be linked to a child")
	}
	if err := s.accounts.LinkParent(ctx, parentID, childID); err != nil {
		return err
	}
	cache.InvalidateFeeds(ctx)
	return nil
}

// VerifyChildAsParent records that parentID vouched for childID. Content the
// parent wrote while unverified is released.
func (s *AccountService) VerifyChildAsParent(ctx context.Context, parentID, childID uint) (*models.Account, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AccountService", "VerifyChildAsParent",
		attribute.Int64("child.id", int64(childID)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	child, err := s.accounts.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if !child.IsChild() {
		err = models.NewValidationError("Only child accounts can be verified by a parent")
		return nil, err
	}
	if err = requireLinkedParent(ctx, s.accounts, parentID, childID, "You can only verify your own children"); err != nil {
		return nil, err
	}

	release, err := s.accounts.VerifyGuardianship(ctx, parentID, childID, s.now())
	if err != nil {
		return nil, err
	}
	cache.InvalidateAccount(ctx, parentID)
	cache.InvalidateAccount(ctx, childID)
	if len(release.Posts) > 0 {
		cache.InvalidateFeeds(ctx)
	}
	observability.ModerationDecisions.WithLabelValues(string(models.EntityPost), "auto_approved").Add(float64(len(release.Posts)))
	observability.ModerationDecisions.WithLabelValues(string(models.EntityMessage), "auto_approved").Add(float64(len(release.Messages)))
	for i := range release.Messages {
		m := release.Messages[i]
		m.Status = models.ModerationApproved
		s.events.Publish(ctx, m.ReceiverID, notifications.EventMessageReceived, m)
	}

	return s.accounts.GetByID(ctx, childID)
}

// VerifySchool redeems a school code for the child.
func (s *AccountService) VerifySchool(ctx context.Context, childID uint, code string) (*models.Account, error) {
	child, err := s.accounts.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if !child.IsChild() {
		return nil, models.NewForbiddenError("Only child accounts can verify a school")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, models.NewValidationError("School code is required")
	}
	if _, err := s.codes.RedeemSchoolCode(ctx, code, childID, s.now()); err != nil {
		return nil, err
	}
	cache.InvalidateAccount(ctx, childID)
	return s.accounts.GetByID(ctx, childID)
}

// SearchAccounts finds active accounts by display name.
func (s *AccountService) SearchAccounts(ctx context.Context, query string, requesterID uint) ([]models.AccountSearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < validation.MinSearchQueryLength {
		return nil, models.NewValidationError("Search query must be at least 2 characters")
	}
	accounts, err := s.accounts.Search(ctx, query, requesterID, maxSearchResults)
	if err != nil {
		return nil, err
	}
	friendIDs, err := s.friends.FriendIDs(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	isFriend := make(map[uint]bool, len(friendIDs))
	for _, id := range friendIDs {
		isFriend[id] = true
	}

	results := make([]models.AccountSearchResult, 0, len(accounts))
	for i := range accounts {
		results = append(results, models.AccountSearchResult{
			AccountSummary: accounts[i].Summary(),
			IsFriend:       isFriend[accounts[i].ID],
		})
	}
	return results, nil
}
