package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

func roleApp(role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Use(RequireRole(models.RoleTeacher))
	app.Post("/classes", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func TestRequireRoleAllowsTeachers(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/classes", nil)
	resp, err := roleApp("Teacher").Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	for _, role := range []string{"student", "admin", ""} {
		req := httptest.NewRequest(http.MethodPost, "/classes", nil)
		resp, err := roleApp(role).Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode, "role %q", role)
	}
}
