package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Sessions    int       `json:"sessions"`
	RefreshMode string    `json:"refresh_mode"`
}

// SessionCounter reports the number of open dashboard sessions.
type SessionCounter interface {
	Len() int
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, sessions SessionCounter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			RefreshMode: cfg.RefreshMode,
		}
		if sessions != nil {
			payload.Sessions = sessions.Len()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
