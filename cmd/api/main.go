package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/database"
	"github.com/noah-isme/gema-homework-api/internal/handler"
	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/repository"
	"github.com/noah-isme/gema-homework-api/internal/router"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/store"
	firestorestore "github.com/noah-isme/gema-homework-api/internal/store/firestore"
)

const roleResolutionTimeout = 5 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(&models.Credential{}, &models.Document{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	var documents store.DocumentStore
	switch cfg.DocumentBackend {
	case config.DocumentsFirestore:
		firestoreStore, err := firestorestore.Connect(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to firestore")
		}
		defer firestoreStore.Close()
		documents = firestoreStore
	default:
		sqlStore := store.NewGormStore(repository.NewDocumentRepository(db), redisClient, cfg.RealtimeChannelBase, natsConn, logger)
		if err := sqlStore.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start change relay")
		}
		documents = sqlStore
	}

	credentials := service.NewCredentialService(repository.NewCredentialRepository(db), cfg.JWTSecret, cfg.JWTTTL, logger)
	hub := service.NewSessionHub(documents, credentials, cfg, logger)
	hub.Start(ctx)
	defer hub.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(hub, validate, logger),
		DashboardHandler:  handler.NewDashboardHandler(cfg.WebsocketKeepAlive, logger),
		RosterHandler:     handler.NewRosterHandler(validate, logger),
		Sessions:          hub,
		JWTMiddleware:     middleware.JWTProtected(credentials),
		SessionMiddleware: middleware.Session(hub),
		RoleMiddleware:    middleware.ResolveRole(roleResolutionTimeout),
		TeacherMiddleware: middleware.RequireRole(models.RoleTeacher),
		AuthRateLimit:     middleware.RateLimit("auth", cfg.AuthRateLimit, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Error().Err(err).Msg("server stopped listening")
			stop()
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Str("documents", cfg.DocumentBackend).Msg("server started")
	waitForShutdown(ctx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
