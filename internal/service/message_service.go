package service

import (
	"context"
	"sort"
	"time"

	"familynova/internal/models"
	"familynova/internal/notifications"
	"familynova/internal/observability"
	"familynova/internal/repository"
	"familynova/internal/validation"
)

// MessageService handles direct messages between friends.
type MessageService struct {
	messages repository.MessageRepository
	friends  repository.FriendRepository
	accounts repository.AccountRepository
	events   EventSink
	now      func() time.Time
}

// NewMessageService returns a new MessageService.
func NewMessageService(
	messages repository.MessageRepository,
	friends repository.FriendRepository,
	accounts repository.AccountRepository,
	events EventSink,
) *MessageService {
	return &MessageService{
		messages: messages,
		friends:  friends,
		accounts: accounts,
		events:   sinkOrNop(events),
		now:      time.Now,
	}
}

// SendMessage stores a message to a friend. Children's messages wait for a parent.
func (s *MessageService) SendMessage(ctx context.Context, senderID, receiverID uint, content string) (*models.Message, error) {
	content, err := validation.ValidateContent("content", content, models.MaxMessageLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if senderID == receiverID {
		return nil, models.NewValidationError("Cannot send a message to yourself")
	}

	sender, err := s.accounts.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if !sender.IsActive {
		return nil, models.NewForbiddenError("Account is closed")
	}
	if _, err := s.accounts.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}
	friends, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, models.NewNotFriendsError()
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Moderation: initialModeration(sender, s.now()),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	msg.Sender = sender

	switch {
	case msg.Status == models.ModerationApproved:
		observability.ModerationDecisions.WithLabelValues(string(models.EntityMessage), "auto_approved").Inc()
		s.events.Publish(ctx, receiverID, notifications.EventMessageReceived, msg)
	case sender.IsChild():
		notifyParents(ctx, s.accounts, s.events, senderID, notifications.EventModerationPending, map[string]interface{}{
			"entity_type": models.EntityMessage,
			"entity_id":   msg.ID,
			"child_id":    senderID,
		})
	}
	return msg, nil
}

// ListConversation returns the messages accountID may see with otherID and
// marks the ones addressed to accountID as read.
func (s *MessageService) ListConversation(ctx context.Context, accountID, otherID, afterID uint) ([]models.Message, error) {
	if _, err := s.accounts.GetByID(ctx, otherID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.Conversation(ctx, accountID, otherID, afterID)
	if err != nil {
		return nil, err
	}

	var unread []uint
	for i := range msgs {
		if msgs[i].ReceiverID == accountID && !msgs[i].IsRead && msgs[i].Status == models.ModerationApproved {
			unread = append(unread, msgs[i].ID)
		}
	}
	if len(unread) > 0 {
		if err := s.messages.MarkReadByIDs(ctx, accountID, unread, s.now()); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// ListConversations returns one row per friend, most recent first.
func (s *MessageService) ListConversations(ctx context.Context, accountID uint) ([]models.ConversationSummary, error) {
	edges, err := s.friends.ListAccepted(ctx, accountID)
	if err != nil {
		return nil, err
	}
	friendIDs := make([]uint, 0, len(edges))
	for i := range edges {
		friendIDs = append(friendIDs, edges[i].Other(accountID))
	}
	friends, err := s.accounts.GetByIDs(ctx, friendIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Account, len(friends))
	for i := range friends {
		byID[friends[i].ID] = &friends[i]
	}
	unread, err := s.messages.UnreadCounts(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]models.ConversationSummary, 0, len(edges))
	for i := range edges {
		friend, ok := byID[edges[i].Other(accountID)]
		if !ok {
			continue
		}
		row := models.ConversationSummary{
			Friend:      friend.Summary(),
			LastMessage: models.NoMessagesYet,
			LastAt:      edges[i].CreatedAt,
			UnreadCount: unread[friend.ID],
		}
		last, err := s.messages.LastApprovedBetween(ctx, accountID, friend.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			row.LastMessage = last.Content
			row.LastAt = last.CreatedAt
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastAt.After(out[j].LastAt)
	})
	return out, nil
}

// MarkRead marks every approved message from otherID to accountID as read.
func (s *MessageService) MarkRead(ctx context.Context, accountID, otherID uint) (int64, error) {
	return s.messages.MarkRead(ctx, accountID, otherID, s.now())
}
