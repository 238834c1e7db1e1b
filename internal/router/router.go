package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/handler"
	"github.com/noah-isme/gema-homework-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	DashboardHandler *handler.DashboardHandler
	RosterHandler    *handler.RosterHandler
	Sessions         handler.SessionCounter

	JWTMiddleware     fiber.Handler
	SessionMiddleware fiber.Handler
	RoleMiddleware    fiber.Handler
	TeacherMiddleware fiber.Handler
	AuthRateLimit     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Sessions))

	authenticated := []fiber.Handler{orNext(deps.JWTMiddleware), orNext(deps.SessionMiddleware)}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth", orNext(deps.AuthRateLimit))
		deps.AuthHandler.Register(auth, authenticated...)
	}

	if deps.DashboardHandler != nil {
		dashboard := api.Group("/dashboard", authenticated...)
		deps.DashboardHandler.Register(dashboard)
	}

	if deps.RosterHandler != nil {
		teacher := append(append([]fiber.Handler{}, authenticated...), orNext(deps.RoleMiddleware), orNext(deps.TeacherMiddleware))
		classes := api.Group("/classes", teacher...)
		homeworks := api.Group("/homeworks", teacher...)
		deps.RosterHandler.Register(classes, homeworks)
	}
}

func orNext(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
