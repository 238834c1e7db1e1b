package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

// AuthHandler signs principals up, in and out. Every sign-in opens a new
// dashboard session bound to the issued token.
type AuthHandler struct {
	hub       *service.SessionHub
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthHandler constructs the auth handler.
func NewAuthHandler(hub *service.SessionHub, validator *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		hub:       hub,
		validator: validator,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register attaches the auth routes. protected guards logout.
func (h *AuthHandler) Register(router fiber.Router, protected ...fiber.Handler) {
	router.Post("/signup", h.signUp)
	router.Post("/login", h.login)
	router.Post("/logout", append(protected, h.logout)...)
}

func (h *AuthHandler) signUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return sendBadRequest(c, err)
	}

	result, err := h.hub.SignUp(middleware.RequestContext(c), req.Email, req.Password, req.Role)
	if err != nil {
		return sendServiceError(c, h.logger, err, "signup")
	}

	requestLogger(h.logger, c).Info().Str("session_id", result.Dashboard.ID).Msg("signed up")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "signed up", sessionResponse(result))
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return sendBadRequest(c, err)
	}

	result, err := h.hub.SignIn(middleware.RequestContext(c), req.Email, req.Password)
	if err != nil {
		return sendServiceError(c, h.logger, err, "login")
	}

	return utils.SendSuccess(c, "signed in", sessionResponse(result))
}

func (h *AuthHandler) logout(c *fiber.Ctx) error {
	sessionID := sessionIDFromContext(c)
	if sessionID == "" {
		return sendUnauthenticated(c)
	}

	h.hub.SignOut(sessionID)
	return utils.SendSuccess(c, "signed out", nil)
}

func sessionResponse(result service.SessionResult) dto.SessionResponse {
	return dto.SessionResponse{
		Token:       result.Token,
		ExpiresAt:   result.ExpiresAt,
		SessionID:   result.Dashboard.ID,
		PrincipalID: result.Identity.ID,
		View:        result.Dashboard.Snapshot(),
	}
}
