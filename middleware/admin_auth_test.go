package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "admin-1",
		"email": "ops@example.com",
		"exp":   exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newAuthTestApp() *fiber.App {
	app := fiber.New()
	app.Get("/secured", AdminAuthMiddleware(testSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"admin_id":    c.Locals("admin_id"),
			"admin_email": c.Locals("admin_email"),
		})
	})
	return app
}

func TestAdminAuthMiddleware(t *testing.T) {
	app := newAuthTestApp()

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + signToken(t, testSecret, time.Now().Add(time.Hour)), 200},
		{"missing header", "", 401},
		{"no bearer prefix", signToken(t, testSecret, time.Now().Add(time.Hour)), 401},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", time.Now().Add(time.Hour)), 401},
		{"expired token", "Bearer " + signToken(t, testSecret, time.Now().Add(-time.Hour)), 401},
		{"garbage token", "Bearer not.a.jwt", 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/secured", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}
