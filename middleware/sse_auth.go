package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lifesync/services"
)

// TokenValidator resolves an access token to a user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// StreamAuthMiddleware authenticates event-stream and websocket requests,
// which carry `token` and `device_id` as query parameters because clients
// cannot set headers on them.
func StreamAuthMiddleware(validator TokenValidator, logger zerolog.Logger) fiber.Handler {
	logger = logger.With().Str("component", "stream_auth").Logger()
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			logger.Warn().Err(err).Str("device_id", deviceID).Str("path", c.Path()).Msg("stream token rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", resp.UserID)
		c.Locals("device_id", resp.DeviceID)
		c.Locals("user_roles", resp.Roles)
		return c.Next()
	}
}
