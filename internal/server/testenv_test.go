package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"familynova/internal/cache"
	"familynova/internal/config"
	"familynova/internal/middleware"
	"familynova/internal/models"
	"familynova/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJWTSecret = "server-test-secret-0123456789abcdef0123456789"

type testEnv struct {
	t     *testing.T
	s     *Server
	app   *fiber.App
	db    *gorm.DB
	store *testutil.MemoryStore
	mr    *miniredis.Miniredis
	rdb   *redis.Client
}

// newTestEnv builds a full Server over in-memory SQLite, miniredis and a memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db := testutil.NewTestDB(t)
	store := testutil.NewMemoryStore()
	cfg := &config.Config{JWTSecret: testJWTSecret, Env: "test", ImageMaxUploadSizeMB: 5}

	s, err := NewServerWithDeps(cfg, db, rdb, store)
	require.NoError(t, err)

	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{t: t, s: s, app: s.App(), db: db, store: store, mr: mr, rdb: rdb}
}

func (e *testEnv) token(a *models.Account) string {
	e.t.Helper()
	tok, err := middleware.IssueToken(testJWTSecret, a.ID, string(a.Role))
	require.NoError(e.t, err)
	return tok
}

// do sends a JSON request as the given account (nil for anonymous).
func (e *testEnv) do(method, path string, body any, as *models.Account) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(as))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// requireError asserts an error response with the given status and code.
func requireError(t *testing.T, resp *http.Response, status int, code string) models.ErrorResponse {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decodeJSON[models.ErrorResponse](t, resp)
	require.Equal(t, code, body.Code)
	return body
}
