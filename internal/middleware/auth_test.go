package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcyber/loan-tracker/internal/config"
)

func signed(t *testing.T, secret string, claims *JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(userID int) *JWTClaims {
	return &JWTClaims{
		UserID: userID,
		Email:  "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newAuthApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthRequired(cfg), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": GetUserID(c), "email": GetUserEmail(c)})
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	app := newAuthApp(cfg)

	expired := validClaims(7)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + signed(t, cfg.JWTSecret, validClaims(7)), fiber.StatusOK},
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, "other-secret", validClaims(7)), fiber.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, cfg.JWTSecret, expired), fiber.StatusUnauthorized},
		{"no principal", "Bearer " + signed(t, cfg.JWTSecret, validClaims(0)), fiber.StatusUnauthorized},
		{"garbage", "Bearer not.a.token", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGetUserIDWithoutAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		assert.Zero(t, GetUserID(c))
		assert.Empty(t, GetUserEmail(c))
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestParseTokenRejectsOtherSigningMethods(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(1)).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(cfg, token)
	assert.Error(t, err)
}
