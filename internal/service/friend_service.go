package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"familynova/internal/cache"
	"familynova/internal/models"
	"familynova/internal/notifications"
	"familynova/internal/observability"
	"familynova/internal/repository"
	"familynova/internal/validation"
)

// FriendCodeTTL is how long an issued friend code stays redeemable.
const FriendCodeTTL = 24 * time.Hour

// FriendService provides friend-request and friendship business logic.
type FriendService struct {
	friends  repository.FriendRepository
	accounts repository.AccountRepository
	codes    repository.CodeRepository
	events   EventSink
	now      func() time.Time
	generate func() (string, error)
}

// NewFriendService returns a new FriendService.
func NewFriendService(
	friends repository.FriendRepository,
	accounts repository.AccountRepository,
	codes repository.CodeRepository,
	events EventSink,
) *FriendService {
	return &FriendService{
		friends:  friends,
		accounts: accounts,
		codes:    codes,
		events:   sinkOrNop(events),
		now:      time.Now,
		generate: GenerateFriendCode,
	}
}

// GenerateFriendCode draws a random code from the unambiguous friend-code alphabet.
func GenerateFriendCode() (string, error) {
	alphabet := validation.FriendCodeAlphabet
	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, validation.FriendCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// RequestFriend sends a friend request to the target account.
func (s *FriendService) RequestFriend(ctx context.Context, fromID, toID uint) (*models.Friendship, error) {
	if fromID == toID {
		return nil, models.NewValidationError("Cannot send friend request to yourself")
	}
	if _, err := s.accounts.GetByID(ctx, toID); err != nil {
		return nil, err
	}

	existing, err := s.friends.GetBetween(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.FriendshipStatusAccepted:
			return nil, models.NewValidationError("You are already friends")
		default:
			if existing.RequestedByID == fromID {
				return nil, models.NewValidationError("Friend request already sent")
			}
			return nil, models.NewValidationError("You already have a pending friend request from this account")
		}
	}

	friendship := &models.Friendship{
		AccountAID:    fromID,
		AccountBID:    toID,
		RequestedByID: fromID,
		Status:        models.FriendshipStatusPending,
	}
	if err := s.friends.Create(ctx, friendship); err != nil {
		return nil, err
	}

	created, err := s.friends.GetByID(ctx, friendship.ID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, toID, notifications.EventFriendRequest, created)
	return created, nil
}

// AcceptFriend accepts a pending request addressed to accepterID.
func (s *FriendService) AcceptFriend(ctx context.Context, accepterID, requestID uint) (*models.Friendship, error) {
	friendship, err := s.friends.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !friendship.Involves(accepterID) || friendship.RequestedByID == accepterID {
		return nil, models.NewForbiddenError("You can only accept friend requests sent to you")
	}
	if friendship.Status != models.FriendshipStatusPending {
		return nil, models.NewValidationError("Friend request is no longer pending")
	}

	verified, err := s.eitherVerified(ctx, friendship.AccountAID, friendship.AccountBID)
	if err != nil {
		return nil, err
	}
	if err := s.friends.Accept(ctx, requestID, verified, s.now()); err != nil {
		return nil, err
	}

	accepted, err := s.friends.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.friendAdded(ctx, accepted)
	return accepted, nil
}

// RejectFriend lets either side decline or cancel a pending request.
func (s *FriendService) RejectFriend(ctx context.Context, accountID, requestID uint) error {
	friendship, err := s.friends.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if !friendship.Involves(accountID) {
		return models.NewForbiddenError("You can only reject your own friend requests")
	}
	if friendship.Status != models.FriendshipStatusPending {
		return models.NewValidationError("Friend request is no longer pending")
	}
	return s.friends.Delete(ctx, requestID)
}

// RemoveFriend ends the friendship between accountID and otherID.
func (s *FriendService) RemoveFriend(ctx context.Context, accountID, otherID uint) error {
	removed, err := s.friends.DeleteBetween(ctx, accountID, otherID)
	if err != nil {
		return err
	}
	if !removed {
		return models.NewNotFoundError("Friendship", otherID)
	}
	cache.InvalidateFeeds(ctx)
	return nil
}

// ListFriends returns the accepted friends of accountID.
func (s *FriendService) ListFriends(ctx context.Context, accountID uint) ([]models.Account, error) {
	return s.friends.ListFriends(ctx, accountID)
}

// ListPendingRequests returns requests waiting on accountID.
func (s *FriendService) ListPendingRequests(ctx context.Context, accountID uint) ([]models.Friendship, error) {
	return s.friends.ListPending(ctx, accountID)
}

// ListSentRequests returns requests accountID sent that are still pending.
func (s *FriendService) ListSentRequests(ctx context.Context, accountID uint) ([]models.Friendship, error) {
	return s.friends.ListSent(ctx, accountID)
}

// IssueFriendCode returns ownerID's active friend code, creating one when needed.
func (s *FriendService) IssueFriendCode(ctx context.Context, ownerID uint) (*models.FriendCode, error) {
	owner, err := s.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner.IsActive {
		return nil, models.NewForbiddenError("Account is closed")
	}
	return s.codes.IssueFriendCode(ctx, ownerID, s.now(), FriendCodeTTL, s.generate)
}

// RedeemFriendCode makes redeemerID a friend of the code's owner.
func (s *FriendService) RedeemFriendCode(ctx context.Context, code string, redeemerID uint) (*models.Friendship, error) {
	code = validation.NormalizeFriendCode(code)
	if err := validation.ValidateFriendCode(code); err != nil {
		observability.FriendCodeRedemptions.WithLabelValues("invalid").Inc()
		return nil, models.NewCodeNotFoundError()
	}

	edge, err := s.codes.RedeemFriendCode(ctx, code, redeemerID, s.now())
	if err != nil {
		result := "error"
		switch models.ErrorCode(err) {
		case models.CodeCodeNotFound:
			result = "not_found"
		case models.CodeCodeExpired:
			result = "expired"
		case models.CodeValidation:
			result = "own_code"
		}
		observability.FriendCodeRedemptions.WithLabelValues(result).Inc()
		return nil, err
	}
	observability.FriendCodeRedemptions.WithLabelValues("success").Inc()

	s.friendAdded(ctx, edge)
	return edge, nil
}

// GetParentConnections returns the parents of the friends of parentID's children.
func (s *FriendService) GetParentConnections(ctx context.Context, parentID uint) ([]models.Account, error) {
	parent, err := s.accounts.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, models.NewForbiddenError("Only parents can view parent connections")
	}

	childIDs, err := s.accounts.ChildIDs(ctx, parentID)
	if err != nil {
		return nil, err
	}

	seen := map[uint]bool{parentID: true}
	var connectionIDs []uint
	for _, childID := range childIDs {
		friendIDs, err := s.friends.FriendIDs(ctx, childID)
		if err != nil {
			return nil, err
		}
		for _, friendID := range friendIDs {
			parentIDs, err := s.accounts.ParentIDs(ctx, friendID)
			if err != nil {
				return nil, err
			}
			for _, id := range parentIDs {
				if !seen[id] {
					seen[id] = true
					connectionIDs = append(connectionIDs, id)
				}
			}
		}
	}
	return s.accounts.GetByIDs(ctx, connectionIDs)
}

func (s *FriendService) eitherVerified(ctx context.Context, a, b uint) (bool, error) {
	accounts, err := s.accounts.GetByIDs(ctx, []uint{a, b})
	if err != nil {
		return false, err
	}
	for i := range accounts {
		if accounts[i].Verification.ParentVerified {
			return true, nil
		}
	}
	return false, nil
}

func (s *FriendService) friendAdded(ctx context.Context, edge *models.Friendship) {
	cache.InvalidateFeeds(ctx)
	s.events.Publish(ctx, edge.AccountAID, notifications.EventFriendAdded, edge)
	s.events.Publish(ctx, edge.AccountBID, notifications.EventFriendAdded, edge)
}
