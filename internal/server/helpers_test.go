package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"familynova/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"childId", "child ID"},
		{"requestId", "request ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		query  string
		limit  float64
		offset float64
	}{
		{"", 25, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=-1&offset=-5", 25, 0},
		{"?limit=1000", maxPaginationLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			body := decodeJSON[map[string]float64](t, resp)
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

func TestParseID(t *testing.T) {
	app := fiber.New()
	app.Get("/children/:childId", func(c *fiber.Ctx) error {
		id, err := parseID(c, "childId")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	for _, raw := range []string{"abc", "0", "-3"} {
		t.Run(raw, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/children/"+raw, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			body := requireError(t, resp, http.StatusBadRequest, models.CodeValidation)
			assert.Equal(t, "Invalid child ID", body.Error)
		})
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/children/42", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.NewValidationError("bad"), http.StatusBadRequest},
		{models.NewUnauthorizedError("who"), http.StatusUnauthorized},
		{models.NewForbiddenError("no"), http.StatusForbidden},
		{models.NewNotFoundError("Post", 1), http.StatusNotFound},
		{models.NewAlreadyResolvedError("post", 1), http.StatusConflict},
		{models.NewNotFriendsError(), http.StatusForbidden},
		{models.NewAlreadyLinkedError(1, 2), http.StatusConflict},
		{models.NewCodeExpiredError(), http.StatusGone},
		{models.NewCodeNotFoundError(), http.StatusNotFound},
		{models.NewInternalError(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusForError(tt.err))
		})
	}
}

func TestMapServiceError_HidesInternalDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/plain", func(c *fiber.Ctx) error {
		return mapServiceError(c, errors.New("pq: connection refused"))
	})
	app.Get("/expired", func(c *fiber.Ctx) error {
		return mapServiceError(c, models.NewCodeExpiredError())
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/plain", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body := requireError(t, resp, http.StatusInternalServerError, models.CodeInternal)
	assert.Empty(t, body.Details)
	assert.NotContains(t, body.Error, "connection refused")

	resp2, err := app.Test(httptest.NewRequest(http.MethodGet, "/expired", nil))
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	requireError(t, resp2, http.StatusGone, models.CodeCodeExpired)
}
