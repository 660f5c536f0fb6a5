package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxBodyBytes: 64, ScreenedPrefixes: []string{"/api/v1/notes"}}))
	app.Post("/api/v1/notes/encode", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/api/v1/cases/x/refresh", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	app := newApp()

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"json ok", "/api/v1/notes/encode", "application/json", `{"topics":["ECG"]}`, fiber.StatusOK},
		{"charset suffix", "/api/v1/notes/encode", "application/json; charset=utf-8", `{}`, fiber.StatusOK},
		{"empty body skips checks", "/api/v1/cases/x/refresh", "", "", fiber.StatusOK},
		{"form rejected", "/api/v1/notes/encode", "application/x-www-form-urlencoded", "a=b", fiber.StatusUnsupportedMediaType},
		{"too large", "/api/v1/notes/encode", "application/json", `{"free_text":"` + strings.Repeat("x", 80) + `"}`, fiber.StatusRequestEntityTooLarge},
		{"script screened", "/api/v1/notes/encode", "application/json", `{"free_text":"<script>x</script>"}`, fiber.StatusBadRequest},
		{"unscreened path", "/api/v1/cases/x/refresh", "application/json", `{"a":"<script>"}`, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(t, app, tt.path, tt.contentType, tt.body))
		})
	}
}

func TestStruct(t *testing.T) {
	type request struct {
		Topics []string `validate:"required,min=1,max=3,dive,required"`
	}

	assert.NoError(t, Struct(request{Topics: []string{"ECG"}}))

	err := Struct(request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request.Topics failed required")

	err = Struct(request{Topics: []string{"a", "b", "c", "d"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max=3")
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hi", SanitizeString("  h\x00i \n"))
}
