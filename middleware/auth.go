// codeisles-arena/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Fiber locals shared by every auth middleware.
const (
	UserIDLocal    = "user_id"
	UserNameLocal  = "user_name"
	UserRolesLocal = "user_roles"
	DeviceIDLocal  = "device_id"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Every route behind it needs a player, so a missing X-User-ID is rejected.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Warn().Str("path", c.Path()).Msg("❌ [USER_CTX] X-User-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		c.Locals(UserIDLocal, userID)
		c.Locals(UserNameLocal, strings.TrimSpace(c.Get("X-User-Name")))
		c.Locals(UserRolesLocal, splitRoles(c.Get("X-User-Roles")))

		return c.Next()
	}
}

func splitRoles(rolesStr string) []string {
	var roles []string
	for _, r := range strings.Split(rolesStr, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// UserID returns the player identity set by one of the auth middlewares.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDLocal).(string)
	return id
}

// UserName returns the display name forwarded by the Gateway, if any.
func UserName(c *fiber.Ctx) string {
	name, _ := c.Locals(UserNameLocal).(string)
	return name
}
