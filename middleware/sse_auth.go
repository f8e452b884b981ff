// codeisles-arena/middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"codeisles-arena/services"
)

// TokenValidator is satisfied by services.AuthServiceClient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// StreamAuthMiddleware authenticates the battle stream routes.
//
// Requests relayed by the Gateway (valid bearer token plus X-User-ID) pass as usual. Browsers
// that cannot set headers on EventSource or WebSocket may instead send `token` and `device_id`
// query params, which are validated by the auth service when one is configured.
//
// Usage:
//
//	app.Get("/stream/battles", middleware.StreamAuthMiddleware(token, authClient), handler)
func StreamAuthMiddleware(gatewayToken string, validator TokenValidator) fiber.Handler {
	userContext := UserContextMiddleware()

	return func(c *fiber.Ctx) error {
		if validGatewayToken(c, gatewayToken) {
			return userContext(c)
		}

		if validator == nil {
			log.Warn().Str("path", c.Path()).Msg("🚫 [SSE_AUTH] no gateway token and no auth service configured")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			log.Warn().Str("path", c.Path()).Msg("[SSE_AUTH] ❌ missing token or device_id")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Warn().Err(err).
				Str("token_prefix", accessToken[:min(10, len(accessToken))]).
				Str("device_id", deviceID).
				Msg("[SSE_AUTH] ❌ validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(UserIDLocal, resp.UserID)
		c.Locals(DeviceIDLocal, resp.DeviceID)
		c.Locals(UserRolesLocal, resp.Roles)

		log.Debug().Str("user_id", resp.UserID).Str("device_id", resp.DeviceID).Msg("[SSE_AUTH] ✅ authenticated")
		return c.Next()
	}
}
