package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"familynova/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// middlewareApp mounts only the global middleware chain in front of a trivial /ping route.
func middlewareApp(t *testing.T, origins string) *fiber.App {
	t.Helper()
	srv := &Server{config: &config.Config{AllowedOrigins: origins}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.All("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func send(t *testing.T, app *fiber.App, method, origin string, headers ...string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		origin     string
		allowed    bool
	}{
		{name: "configured origin", configured: "https://app.familynova.test", origin: "https://app.familynova.test", allowed: true},
		{name: "unknown origin", configured: "https://app.familynova.test", origin: "https://evil.test", allowed: false},
		{name: "dev default", configured: "", origin: "http://localhost:5173", allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := send(t, middlewareApp(t, tt.configured), http.MethodGet, tt.origin)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			if tt.allowed {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestLimiter_RejectionKeepsCORSHeaders(t *testing.T) {
	const origin = "http://localhost:5173"
	app := middlewareApp(t, origin)

	for i := 0; i < 100; i++ {
		require.Equal(t, fiber.StatusOK, send(t, app, http.MethodGet, origin).StatusCode)
	}

	resp := send(t, app, http.MethodGet, origin)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, origin, resp.Header.Get("Access-Control-Allow-Origin"))

	// Preflights are not counted and still succeed once the budget is spent.
	resp = send(t, app, http.MethodOptions, origin, "Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, origin, resp.Header.Get("Access-Control-Allow-Origin"))
}
