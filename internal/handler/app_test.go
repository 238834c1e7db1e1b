package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/handler"
	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/repository"
	"github.com/noah-isme/gema-homework-api/internal/router"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

const testPassword = "secret123"

type testApp struct {
	app   *fiber.App
	hub   *service.SessionHub
	store *store.GormStore
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details map[string]any  `json:"details"`
}

func newTestApp(t *testing.T, mutate ...func(cfg *config.Config)) *testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Credential{}, &models.Document{}))

	cfg := config.Config{
		AppName:            "Homework Sync API",
		AppEnv:             "test",
		JWTSecret:          "test-secret",
		JWTTTL:             time.Hour,
		HomeworkVisibility: config.VisibilityClassScoped,
		RefreshMode:        config.RefreshLive,
		SessionIdleTTL:     30 * time.Minute,
		AuthRateLimit:      1000,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	logger := zerolog.New(io.Discard)
	documents := store.NewGormStore(repository.NewDocumentRepository(db), nil, "", nil, logger)
	credentials := service.NewCredentialService(repository.NewCredentialRepository(db), cfg.JWTSecret, cfg.JWTTTL, logger)
	hub := service.NewSessionHub(documents, credentials, cfg, logger)
	t.Cleanup(hub.Close)

	validate := validator.New(validator.WithRequiredStructEnabled())
	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(hub, validate, logger),
		DashboardHandler:  handler.NewDashboardHandler(time.Second, logger),
		RosterHandler:     handler.NewRosterHandler(validate, logger),
		Sessions:          hub,
		JWTMiddleware:     middleware.JWTProtected(credentials),
		SessionMiddleware: middleware.Session(hub),
		RoleMiddleware:    middleware.ResolveRole(3 * time.Second),
		TeacherMiddleware: middleware.RequireRole(models.RoleTeacher),
		AuthRateLimit:     middleware.RateLimit("auth", cfg.AuthRateLimit, time.Minute),
	})

	return &testApp{app: app, hub: hub, store: documents}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func (a *testApp) signUp(t *testing.T, email string, role models.Role) dto.SessionResponse {
	t.Helper()

	status, payload := a.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{
		Email:    email,
		Password: testPassword,
		Role:     string(role),
	})
	require.Equal(t, fiber.StatusCreated, status, payload.Message)

	var session dto.SessionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &session))
	return session
}

func (a *testApp) view(t *testing.T, token string) dto.DashboardView {
	t.Helper()

	status, payload := a.do(t, http.MethodGet, "/api/v1/dashboard", token, nil)
	require.Equal(t, fiber.StatusOK, status, payload.Message)

	var view dto.DashboardView
	require.NoError(t, json.Unmarshal(payload.Data, &view))
	return view
}

func (a *testApp) waitForView(t *testing.T, token string, condition func(dto.DashboardView) bool) dto.DashboardView {
	t.Helper()

	var last dto.DashboardView
	require.Eventually(t, func() bool {
		view, ok := a.tryView(token)
		if !ok {
			return false
		}
		last = view
		return condition(view)
	}, 3*time.Second, 20*time.Millisecond, "view never reached expected state")
	return last
}

func (a *testApp) tryView(token string) (dto.DashboardView, bool) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := a.app.Test(req, -1)
	if err != nil {
		return dto.DashboardView{}, false
	}
	defer resp.Body.Close()

	var payload struct {
		Data dto.DashboardView `json:"data"`
	}
	if resp.StatusCode != fiber.StatusOK || json.NewDecoder(resp.Body).Decode(&payload) != nil {
		return dto.DashboardView{}, false
	}
	return payload.Data, true
}

func decodeData(t *testing.T, payload envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, out))
}
