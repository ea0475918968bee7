package server

import (
	"fmt"
	"net/http"
	"testing"

	"familynova/internal/models"
	"familynova/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	parent, child := testutil.CreateFamily(t, env.db, "Abe", "Bea", testutil.Verified())
	friend := testutil.CreateAccount(t, env.db, models.RoleChild, "Cyd")
	otherParent := testutil.CreateAccount(t, env.db, models.RoleParent, "Dot", testutil.Verified())
	testutil.MakeFriends(t, env.db, child, friend)
	testutil.MakeFriends(t, env.db, parent, otherParent)

	tests := []struct {
		name       string
		from       *models.Account
		to         uint
		content    string
		wantStatus int
		wantCode   string
		wantState  models.ModerationStatus
	}{
		{name: "child message waits for a parent", from: child, to: friend.ID, content: "Want to play?", wantStatus: http.StatusCreated, wantState: models.ModerationPending},
		{name: "verified parent is approved", from: parent, to: otherParent.ID, content: "Coffee?", wantStatus: http.StatusCreated, wantState: models.ModerationApproved},
		{name: "non-friend", from: child, to: otherParent.ID, content: "hello", wantStatus: http.StatusForbidden, wantCode: models.CodeNotFriends},
		{name: "empty content", from: child, to: friend.ID, content: " ", wantStatus: http.StatusBadRequest, wantCode: models.CodeValidation},
		{name: "unknown receiver", from: child, to: 9999, content: "hi", wantStatus: http.StatusNotFound, wantCode: models.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(http.MethodPost, "/api/messages", map[string]any{"receiver_id": tt.to, "content": tt.content}, tt.from)
			if tt.wantCode != "" {
				requireError(t, resp, tt.wantStatus, tt.wantCode)
				return
			}
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			msg := decodeJSON[models.Message](t, resp)
			assert.Equal(t, tt.wantState, msg.Status)
			assert.Equal(t, tt.from.ID, msg.SenderID)
		})
	}
}

func TestConversations(t *testing.T) {
	env := newTestEnv(t)
	a := testutil.CreateAccount(t, env.db, models.RoleChild, "Eve")
	b := testutil.CreateAccount(t, env.db, models.RoleChild, "Fay")
	c := testutil.CreateAccount(t, env.db, models.RoleChild, "Gil")
	testutil.MakeFriends(t, env.db, a, b)
	testutil.MakeFriends(t, env.db, a, c)

	first := testutil.CreateMessage(t, env.db, b, a, "first", models.ModerationApproved)
	testutil.CreateMessage(t, env.db, b, a, "second", models.ModerationApproved)
	testutil.CreateMessage(t, env.db, b, a, "still pending", models.ModerationPending)

	resp := env.do(http.MethodGet, "/api/messages/conversations", nil, a)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summaries := decodeJSON[[]models.ConversationSummary](t, resp)
	require.Len(t, summaries, 2)
	byFriend := map[uint]models.ConversationSummary{}
	for _, s := range summaries {
		byFriend[s.Friend.ID] = s
	}
	assert.Equal(t, "second", byFriend[b.ID].LastMessage)
	assert.Equal(t, int64(2), byFriend[b.ID].UnreadCount)
	assert.Equal(t, models.NoMessagesYet, byFriend[c.ID].LastMessage)

	// The receiver never sees pending messages; the sender does.
	resp = env.do(http.MethodGet, fmt.Sprintf("/api/messages/conversations/%d", b.ID), nil, a)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]models.Message](t, resp), 2)

	resp = env.do(http.MethodGet, fmt.Sprintf("/api/messages/conversations/%d", a.ID), nil, b)
	assert.Len(t, decodeJSON[[]models.Message](t, resp), 3)

	resp = env.do(http.MethodGet, fmt.Sprintf("/api/messages/conversations/%d?after_id=%d", b.ID, first.ID), nil, a)
	after := decodeJSON[[]models.Message](t, resp)
	require.Len(t, after, 1)
	assert.Equal(t, "second", after[0].Content)

	// Reading the conversation already marked everything read.
	resp = env.do(http.MethodPost, fmt.Sprintf("/api/messages/conversations/%d/read", b.ID), nil, a)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), decodeJSON[map[string]int64](t, resp)["marked_read"])
}

func TestMarkConversationRead(t *testing.T) {
	env := newTestEnv(t)
	a := testutil.CreateAccount(t, env.db, models.RoleChild, "Hal")
	b := testutil.CreateAccount(t, env.db, models.RoleChild, "Ida")
	testutil.MakeFriends(t, env.db, a, b)
	testutil.CreateMessage(t, env.db, b, a, "one", models.ModerationApproved)
	testutil.CreateMessage(t, env.db, b, a, "two", models.ModerationApproved)

	resp := env.do(http.MethodPost, fmt.Sprintf("/api/messages/conversations/%d/read", b.ID), nil, a)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), decodeJSON[map[string]int64](t, resp)["marked_read"])

	resp = env.do(http.MethodGet, "/api/messages/conversations", nil, a)
	summaries := decodeJSON[[]models.ConversationSummary](t, resp)
	require.Len(t, summaries, 1)
	assert.Zero(t, summaries[0].UnreadCount)
}
