package notifications

import (
	"encoding/json"
	"time"
)

// Event types pushed to clients.
const (
	EventModerationPending      = "moderation_pending"
	EventPostModerated          = "post_moderated"
	EventMessageModerated       = "message_moderated"
	EventProfileChangeModerated = "profile_change_moderated"
	EventMessageReceived        = "message_received"
	EventFriendRequest          = "friend_request"
	EventFriendAdded            = "friend_added"
)

// Event is the envelope written to websocket clients.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
}

// Encode returns the JSON form of e.
func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
