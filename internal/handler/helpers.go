package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func userIDFromContext(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return strings.TrimSpace(id)
}

func sessionIDFromContext(c *fiber.Ctx) string {
	id, _ := c.Locals("session_id").(string)
	return strings.TrimSpace(id)
}

// sendServiceError logs err and writes it with the status of its kind. The
// message is the human-readable text of the error.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	status := middleware.StatusForError(err, userIDFromContext(c) != "")

	event := requestLogger(logger, c).Warn()
	if status >= fiber.StatusInternalServerError {
		event = requestLogger(logger, c).Error()
	}
	event.Err(err).Str("action", action).Int("status", status).Msg("request failed")

	message := err.Error()
	if service.KindName(err) == "" {
		message = "internal server error"
	}
	return utils.Fail(c, status, message, middleware.ErrorDetails(err))
}

// bindAndValidate parses the body into payload and validates it. The returned
// error is safe to show to clients.
func bindAndValidate(c *fiber.Ctx, validate *validator.Validate, payload interface{}) error {
	if err := c.BodyParser(payload); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(payload); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func sendBadRequest(c *fiber.Ctx, err error) error {
	return utils.Fail(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"kind": "validation"})
}

func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err.Error()
	}

	parts := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		parts = append(parts, strings.ToLower(fieldErr.Field())+" failed "+fieldErr.Tag())
	}
	return "invalid " + strings.Join(parts, ", ")
}

func sendUnauthenticated(c *fiber.Ctx) error {
	return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
}
