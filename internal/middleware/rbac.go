package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

// RequireRole ensures the resolved role of the caller is one of roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if parsed, ok := models.ParseRole(string(role)); ok {
			allowed[parsed] = struct{}{}
			names = append(names, string(parsed))
		}
	}
	message := fmt.Sprintf("requires role %s", strings.Join(names, " or "))

	return func(c *fiber.Ctx) error {
		value, _ := c.Locals("user_role").(string)
		role, ok := models.ParseRole(value)
		if !ok {
			return utils.SendError(c, fiber.StatusForbidden, message)
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, message)
		}
		return c.Next()
	}
}
