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

func TestFriendRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	a := testutil.CreateAccount(t, env.db, models.RoleChild, "Ari")
	b := testutil.CreateAccount(t, env.db, models.RoleChild, "Bo")

	resp := env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d", b.ID), nil, a)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	request := decodeJSON[models.Friendship](t, resp)
	assert.Equal(t, models.FriendshipStatusPending, request.Status)

	resp = env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d", b.ID), nil, a)
	requireError(t, resp, http.StatusBadRequest, models.CodeValidation)

	resp = env.do(http.MethodGet, "/api/friends/requests", nil, b)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]models.Friendship](t, resp), 1)

	resp = env.do(http.MethodGet, "/api/friends/requests/sent", nil, a)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]models.Friendship](t, resp), 1)

	// Only the addressee may accept.
	resp = env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d/accept", request.ID), nil, a)
	requireError(t, resp, http.StatusForbidden, models.CodeForbidden)

	resp = env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d/accept", request.ID), nil, b)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.FriendshipStatusAccepted, decodeJSON[models.Friendship](t, resp).Status)

	resp = env.do(http.MethodGet, "/api/friends", nil, a)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	friends := decodeJSON[[]models.Account](t, resp)
	require.Len(t, friends, 1)
	assert.Equal(t, b.ID, friends[0].ID)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/friends/%d", b.ID), nil, a)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/friends/%d", b.ID), nil, a)
	requireError(t, resp, http.StatusNotFound, models.CodeNotFound)
}

func TestRejectFriendRequest(t *testing.T) {
	env := newTestEnv(t)
	a := testutil.CreateAccount(t, env.db, models.RoleParent, "Cam")
	b := testutil.CreateAccount(t, env.db, models.RoleParent, "Dee")

	resp := env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d", b.ID), nil, a)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	request := decodeJSON[models.Friendship](t, resp)

	resp = env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d/reject", request.ID), nil, b)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/friends/requests", nil, b)
	assert.Empty(t, decodeJSON[[]models.Friendship](t, resp))
}

func TestFriendCodes(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateAccount(t, env.db, models.RoleChild, "Eli")
	first := testutil.CreateAccount(t, env.db, models.RoleChild, "Fen")
	second := testutil.CreateAccount(t, env.db, models.RoleChild, "Gus")

	resp := env.do(http.MethodPost, "/api/friends/codes", nil, owner)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	code := decodeJSON[models.FriendCode](t, resp)
	require.Len(t, code.Code, 8)

	resp = env.do(http.MethodPost, "/api/friends/codes", nil, owner)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, code.Code, decodeJSON[models.FriendCode](t, resp).Code, "an active code is reused")

	resp = env.do(http.MethodPost, "/api/friends/codes/redeem", map[string]string{"code": code.Code}, owner)
	requireError(t, resp, http.StatusBadRequest, models.CodeValidation)

	resp = env.do(http.MethodPost, "/api/friends/codes/redeem", map[string]string{"code": code.Code}, first)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	edge := decodeJSON[models.Friendship](t, resp)
	assert.Equal(t, models.FriendshipStatusAccepted, edge.Status)

	resp = env.do(http.MethodPost, "/api/friends/codes/redeem", map[string]string{"code": code.Code}, second)
	requireError(t, resp, http.StatusGone, models.CodeCodeExpired)

	resp = env.do(http.MethodPost, "/api/friends/codes/redeem", map[string]string{"code": "!!"}, second)
	requireError(t, resp, http.StatusNotFound, models.CodeCodeNotFound)
}
