package requestlog

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ddx-dashboard/backend/internal/middleware/auth"
)

func TestMiddlewareLogsRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	app := fiber.New()
	app.Use(Middleware(zap.New(core)))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	req := httptest.NewRequest("GET", "/missing", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "Request handled", entries[0].Message)
	assert.Equal(t, "Request rejected", entries[1].Message)
	assert.Equal(t, "abc-123", entries[1].ContextMap()["request_id"])
	assert.Equal(t, int64(fiber.StatusNotFound), entries[1].ContextMap()["status"])
}

func TestMiddlewareLogsAuthenticatedUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	app := fiber.New()
	app.Use(Middleware(zap.New(core)))
	app.Get("/me", func(c *fiber.Ctx) error {
		c.Locals(auth.LocalUserID, "instructor-1")
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "instructor-1", entries[0].ContextMap()["user_id"])
}
