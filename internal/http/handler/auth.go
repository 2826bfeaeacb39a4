package handler

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyHeader carries the shared secret on protected routes.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key does not match expected.
// An empty expected key is a server misconfiguration and rejects everything with 500.
func RequireAPIKey(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return writeError(c, fiber.StatusInternalServerError, "API_KEY_NOT_CONFIGURED", "API key not configured on the server")
		}
		if !validAPIKey(expected, c.Get(APIKeyHeader)) {
			return writeError(c, fiber.StatusUnauthorized, "INVALID_API_KEY", "invalid or missing API key")
		}
		return c.Next()
	}
}

func validAPIKey(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
