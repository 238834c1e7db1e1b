package handler_test

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
)

func TestAuthHandlerSignUpOpensSession(t *testing.T) {
	app := newTestApp(t)

	session := app.signUp(t, "teacher@x.com", models.RoleTeacher)
	require.NotEmpty(t, session.Token)
	require.NotEmpty(t, session.SessionID)
	require.NotEmpty(t, session.PrincipalID)
	require.Equal(t, 1, app.hub.Len())

	view := app.waitForView(t, session.Token, func(v dto.DashboardView) bool {
		return v.State == "teacher_active"
	})
	require.Equal(t, "teacher@x.com", view.Email)
	require.Equal(t, "teacher", view.Role)
}

func TestAuthHandlerSignUpValidation(t *testing.T) {
	app := newTestApp(t)

	status, payload := app.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{
		Email:    "teacher@x.com",
		Password: testPassword,
		Role:     "admin",
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, payload.Success)
	require.Equal(t, "validation", payload.Details["kind"])

	status, _ = app.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{
		Email:    "not-an-email",
		Password: testPassword,
		Role:     "student",
	})
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestAuthHandlerRejectsDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "student@x.com", models.RoleStudent)

	status, payload := app.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{
		Email:    "student@x.com",
		Password: testPassword,
		Role:     "teacher",
	})
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "The email address is already in use by another account.", payload.Message)
	require.Equal(t, "auth", payload.Details["kind"])
}

func TestAuthHandlerLoginAndLogout(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "student@x.com", models.RoleStudent)

	status, payload := app.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Email:    "student@x.com",
		Password: "wrong-password",
	})
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "Invalid email or password.", payload.Message)

	status, payload = app.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Email:    "student@x.com",
		Password: testPassword,
	})
	require.Equal(t, fiber.StatusOK, status)

	var session dto.SessionResponse
	decodeData(t, payload, &session)
	require.Equal(t, 2, app.hub.Len())

	status, _ = app.do(t, http.MethodPost, "/api/v1/auth/logout", session.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 1, app.hub.Len())

	status, payload = app.do(t, http.MethodGet, "/api/v1/dashboard", session.Token, nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "session expired", payload.Message)
}

func TestAuthHandlerLogoutRequiresToken(t *testing.T) {
	app := newTestApp(t)

	status, payload := app.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "authorization header missing", payload.Message)

	status, payload = app.do(t, http.MethodPost, "/api/v1/auth/logout", "garbage", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "invalid token", payload.Message)
}
