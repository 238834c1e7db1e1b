package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/store"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

const dashboardLocalsKey = "dashboard"

// SessionLookup finds the dashboard of a session.
type SessionLookup interface {
	Get(sessionID string) (*service.Dashboard, bool)
}

// Session attaches the dashboard named by the token's session id. It must run
// after JWTProtected.
func Session(sessions SessionLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, _ := c.Locals("session_id").(string)
		userID, _ := c.Locals("user_id").(string)
		if sessionID == "" || userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		dashboard, ok := sessions.Get(sessionID)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "session expired")
		}

		identity, signedIn := dashboard.Identity()
		if !signedIn || identity.ID != userID {
			return utils.SendError(c, fiber.StatusUnauthorized, "session expired")
		}

		c.Locals(dashboardLocalsKey, dashboard)
		return c.Next()
	}
}

// ResolveRole waits for the session's role lookup and exposes the role as
// user_role for RequireRole.
func ResolveRole(timeout time.Duration) fiber.Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return func(c *fiber.Ctx) error {
		dashboard, ok := DashboardFromContext(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		principal, err := dashboard.AwaitPrincipal(ctx)
		if err != nil {
			return utils.Fail(c, StatusForError(err, true), err.Error(), ErrorDetails(err))
		}

		c.Locals("user_role", string(principal.Role))
		return c.Next()
	}
}

// DashboardFromContext returns the dashboard attached by Session.
func DashboardFromContext(c *fiber.Ctx) (*service.Dashboard, bool) {
	dashboard, ok := c.Locals(dashboardLocalsKey).(*service.Dashboard)
	return dashboard, ok && dashboard != nil
}

// StatusForError maps a dashboard error to an HTTP status. Auth errors of an
// authenticated caller are permission problems.
func StatusForError(err error, authenticated bool) int {
	switch {
	case errors.Is(err, service.ErrAuth):
		if authenticated {
			return fiber.StatusForbidden
		}
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrRoleNotFound):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrStudentNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrBackend):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorDetails names the error kind for clients.
func ErrorDetails(err error) fiber.Map {
	kind := service.KindName(err)
	if kind == "" {
		return nil
	}
	return fiber.Map{"kind": kind}
}
