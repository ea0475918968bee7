package server

import (
	"fmt"
	"net/http"
	"testing"

	"familynova/internal/models"
	"familynova/internal/service"
	"familynova/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModerationQueueAndDecisions(t *testing.T) {
	env := newTestEnv(t)
	parent, child := testutil.CreateFamily(t, env.db, "Jo", "Lu")
	outsider := testutil.CreateAccount(t, env.db, models.RoleParent, "Mo")
	friend := testutil.CreateAccount(t, env.db, models.RoleChild, "Ned")
	testutil.MakeFriends(t, env.db, child, friend)

	resp := env.do(http.MethodPost, "/api/posts", map[string]string{"content": "Look at my drawing"}, child)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	post := decodeJSON[models.Post](t, resp)
	require.Equal(t, models.ModerationPending, post.Status)

	resp = env.do(http.MethodPost, "/api/messages", map[string]any{"receiver_id": friend.ID, "content": "hey"}, child)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := decodeJSON[models.Message](t, resp)

	resp = env.do(http.MethodGet, "/api/moderation/queue", nil, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queue := decodeJSON[models.ModerationQueue](t, resp)
	assert.Len(t, queue.Posts, 1)
	assert.Len(t, queue.Messages, 1)
	assert.Empty(t, queue.ProfileChanges)

	resp = env.do(http.MethodGet, "/api/moderation/queue", nil, child)
	requireError(t, resp, http.StatusForbidden, models.CodeForbidden)

	t.Run("outsider cannot decide", func(t *testing.T) {
		resp := env.do(http.MethodPost, fmt.Sprintf("/api/moderation/posts/%d/approve", post.ID), nil, outsider)
		requireError(t, resp, http.StatusForbidden, models.CodeForbidden)
	})

	t.Run("approve once", func(t *testing.T) {
		resp := env.do(http.MethodPost, fmt.Sprintf("/api/moderation/posts/%d/approve", post.ID), nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decodeJSON[service.ModerationResult](t, resp)
		assert.Equal(t, models.EntityPost, result.EntityType)
		assert.Equal(t, models.ModerationApproved, result.Status)

		resp = env.do(http.MethodPost, fmt.Sprintf("/api/moderation/posts/%d/reject", post.ID), nil, parent)
		requireError(t, resp, http.StatusConflict, models.CodeAlreadyResolved)
	})

	t.Run("reject with default reason", func(t *testing.T) {
		resp := env.do(http.MethodPost, fmt.Sprintf("/api/moderation/messages/%d/reject", msg.ID), nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decodeJSON[service.ModerationResult](t, resp)
		assert.Equal(t, models.ModerationRejected, result.Status)
		assert.Equal(t, "Rejected by parent", result.Reason)

		var stored models.Message
		require.NoError(t, env.db.First(&stored, msg.ID).Error)
		assert.Equal(t, models.ModerationRejected, stored.Status)
	})

	t.Run("bad entity and missing item", func(t *testing.T) {
		resp := env.do(http.MethodPost, "/api/moderation/widgets/1/approve", nil, parent)
		requireError(t, resp, http.StatusBadRequest, models.CodeValidation)

		resp = env.do(http.MethodPost, "/api/moderation/posts/9999/approve", nil, parent)
		requireError(t, resp, http.StatusNotFound, models.CodeNotFound)
	})

	resp = env.do(http.MethodGet, "/api/moderation/queue", nil, parent)
	queue = decodeJSON[models.ModerationQueue](t, resp)
	assert.Empty(t, queue.Posts)
	assert.Empty(t, queue.Messages)
}

func TestRejectContent_CustomReason(t *testing.T) {
	env := newTestEnv(t)
	parent, child := testutil.CreateFamily(t, env.db, "Opal", "Pip")
	post := testutil.CreatePost(t, env.db, child, models.ModerationPending, true)

	resp := env.do(http.MethodPost, fmt.Sprintf("/api/moderation/post/%d/reject", post.ID),
		map[string]string{"reason": "Please leave out our address"}, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Please leave out our address", decodeJSON[service.ModerationResult](t, resp).Reason)
}

func TestProfileChanges(t *testing.T) {
	env := newTestEnv(t)
	parent, child := testutil.CreateFamily(t, env.db, "Ray", "Sky")

	resp := env.do(http.MethodPost, "/api/profile-changes", map[string]string{"display_name": "Skylar", "grade": "4"}, child)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	change := decodeJSON[models.ProfileChangeRequest](t, resp)
	require.NotNil(t, change.Proposed.DisplayName)
	assert.Equal(t, "Skylar", *change.Proposed.DisplayName)
	assert.Equal(t, models.ModerationPending, change.Status)

	resp = env.do(http.MethodPost, "/api/profile-changes", map[string]string{"display_name": "Skylar"}, parent)
	requireError(t, resp, http.StatusForbidden, models.CodeForbidden)

	resp = env.do(http.MethodPost, "/api/profile-changes", map[string]string{}, child)
	requireError(t, resp, http.StatusBadRequest, models.CodeValidation)

	resp = env.do(http.MethodGet, "/api/profile-changes", nil, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]models.ProfileChangeRequest](t, resp), 1)

	resp = env.do(http.MethodPost, fmt.Sprintf("/api/moderation/profile-changes/%d/approve", change.ID), nil, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Account
	require.NoError(t, env.db.First(&updated, child.ID).Error)
	assert.Equal(t, "Skylar", updated.DisplayName)
	assert.Equal(t, "4", updated.Grade)
}
