// codeisles-arena/middleware/gateway.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway.
// Paths under one of the bypass prefixes are left to their own authentication.
func GatewayAuthMiddleware(expectedToken string, bypass ...string) fiber.Handler {
	if expectedToken == "" {
		log.Fatal().Msg("❌ GAME_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range bypass {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		if !validGatewayToken(c, expectedToken) {
			log.Warn().Str("path", path).Msg("🚫 [GATEWAY_AUTH] missing or invalid gateway token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		log.Debug().Str("path", path).Msg("✅ [GATEWAY_AUTH] request from Gateway accepted")
		return c.Next()
	}
}

func validGatewayToken(c *fiber.Ctx, expectedToken string) bool {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return false
	}
	// Gateway may send the raw token without the "Bearer " prefix
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return token == expectedToken
}
