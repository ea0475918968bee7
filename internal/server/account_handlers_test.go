package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"familynova/internal/models"
	"familynova/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentRoutes(t *testing.T) {
	env := newTestEnv(t)
	parent := testutil.CreateAccount(t, env.db, models.RoleParent, "Morgan")

	resp := env.do(http.MethodPost, "/api/parents/children", map[string]string{
		"email":        "sam@example.com",
		"password":     "Sunflower42",
		"display_name": "Sam",
		"school":       "Hillside",
		"grade":        "4",
	}, parent)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	child := decodeJSON[models.Account](t, resp)
	assert.Equal(t, models.RoleChild, child.Role)
	assert.Equal(t, "Hillside", child.School)

	t.Run("children are listed for their parent", func(t *testing.T) {
		resp := env.do(http.MethodGet, "/api/parents/children", nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		children := decodeJSON[[]models.Account](t, resp)
		require.Len(t, children, 1)
		assert.Equal(t, child.ID, children[0].ID)
	})

	t.Run("a child cannot create children", func(t *testing.T) {
		resp := env.do(http.MethodPost, "/api/parents/children", map[string]string{
			"email": "x@example.com", "password": "Sunflower42", "display_name": "X",
		}, &child)
		requireError(t, resp, http.StatusForbidden, models.CodeForbidden)
	})

	t.Run("link a second parent once", func(t *testing.T) {
		second := testutil.CreateAccount(t, env.db, models.RoleParent, "Alex")
		path := fmt.Sprintf("/api/parents/children/%d/parents", child.ID)

		resp := env.do(http.MethodPost, path, map[string]uint{"parent_id": second.ID}, parent)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = env.do(http.MethodPost, path, map[string]uint{"parent_id": second.ID}, parent)
		requireError(t, resp, http.StatusConflict, models.CodeAlreadyLinked)

		stranger := testutil.CreateAccount(t, env.db, models.RoleParent, "Stranger")
		resp = env.do(http.MethodPost, path, map[string]uint{"parent_id": stranger.ID}, stranger)
		requireError(t, resp, http.StatusForbidden, models.CodeForbidden)
	})

	t.Run("activity report", func(t *testing.T) {
		path := fmt.Sprintf("/api/parents/children/%d/activity", child.ID)

		resp := env.do(http.MethodGet, path+"?period=month", nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		report := decodeJSON[models.ActivityReport](t, resp)
		assert.Equal(t, models.PeriodMonth, report.Period)
		assert.Equal(t, child.ID, report.ChildID)

		resp = env.do(http.MethodGet, path, nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.PeriodWeek, decodeJSON[models.ActivityReport](t, resp).Period)

		resp = env.do(http.MethodGet, path+"?period=decade", nil, parent)
		requireError(t, resp, http.StatusBadRequest, models.CodeValidation)
	})

	t.Run("dashboard and connections", func(t *testing.T) {
		resp := env.do(http.MethodGet, "/api/parents/dashboard", nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeJSON[map[string]any](t, resp)
		assert.Len(t, body["children"], 1)

		resp = env.do(http.MethodGet, "/api/parents/connections", nil, parent)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(http.MethodGet, "/api/parents/connections", nil, &child)
		requireError(t, resp, http.StatusForbidden, models.CodeForbidden)
	})
}

func TestVerificationRoutes(t *testing.T) {
	env := newTestEnv(t)
	parent, child := testutil.CreateFamily(t, env.db, "Quinn", "Riley")

	t.Run("parent verifies own child", func(t *testing.T) {
		resp := env.do(http.MethodPost, fmt.Sprintf("/api/verification/parent/%d", child.ID), nil, parent)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		verified := decodeJSON[models.Account](t, resp)
		assert.True(t, verified.Verification.ParentVerified)
	})

	t.Run("other parents cannot verify", func(t *testing.T) {
		other := testutil.CreateAccount(t, env.db, models.RoleParent, "Other")
		resp := env.do(http.MethodPost, fmt.Sprintf("/api/verification/parent/%d", child.ID), nil, other)
		requireError(t, resp, http.StatusForbidden, models.CodeForbidden)
	})

	t.Run("school code is single use", func(t *testing.T) {
		require.NoError(t, env.db.Create(&models.SchoolCode{
			Code:      "OAK2026",
			School:    "Oak Primary",
			ExpiresAt: time.Now().Add(time.Hour),
		}).Error)

		resp := env.do(http.MethodPost, "/api/verification/school", map[string]string{"code": "oak2026"}, child)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		updated := decodeJSON[models.Account](t, resp)
		assert.True(t, updated.Verification.SchoolVerified)
		assert.True(t, updated.IsVerified())

		sibling := testutil.CreateAccount(t, env.db, models.RoleChild, "Sibling")
		resp = env.do(http.MethodPost, "/api/verification/school", map[string]string{"code": "OAK2026"}, sibling)
		requireError(t, resp, http.StatusGone, models.CodeCodeExpired)

		resp = env.do(http.MethodPost, "/api/verification/school", map[string]string{"code": "NOPE9999"}, sibling)
		requireError(t, resp, http.StatusNotFound, models.CodeCodeNotFound)
	})
}

func TestAccountSearch(t *testing.T) {
	env := newTestEnv(t)
	me := testutil.CreateAccount(t, env.db, models.RoleParent, "Casey")
	friend := testutil.CreateAccount(t, env.db, models.RoleParent, "Cassidy")
	testutil.MakeFriends(t, env.db, me, friend)

	resp := env.do(http.MethodGet, "/api/accounts/search?q=Cas", nil, me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeJSON[[]models.AccountSearchResult](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, friend.ID, results[0].ID)
	assert.True(t, results[0].IsFriend)

	resp = env.do(http.MethodGet, "/api/accounts/search?q=C", nil, me)
	requireError(t, resp, http.StatusBadRequest, models.CodeValidation)
}
