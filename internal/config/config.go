package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Homework visibility modes.
const (
	VisibilityClassScoped = "class_scoped"
	VisibilityGlobal      = "global"
)

// Refresh modes for dashboard projections.
const (
	RefreshLive   = "live"
	RefreshManual = "manual"
)

// Document backends.
const (
	DocumentsSQL       = "sql"
	DocumentsFirestore = "firestore"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                  string
	AppEnv                   string
	AppPort                  string
	DatabaseDriver           string
	DatabaseURL              string
	DocumentBackend          string
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	RedisURL                 string
	NATSURL                  string
	RealtimeChannelBase      string
	JWTSecret                string
	JWTTTL                   time.Duration
	HomeworkVisibility       string
	RefreshMode              string
	BackendTimeout           time.Duration
	SessionIdleTTL           time.Duration
	WebsocketKeepAlive       time.Duration
	AuthRateLimit            int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HOMEWORK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Homework Sync API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("documents.backend", DocumentsSQL)
	v.SetDefault("realtime.channel_base", "homework")
	v.SetDefault("jwt.ttl", "12h")
	v.SetDefault("homework.visibility", VisibilityClassScoped)
	v.SetDefault("sync.refresh_mode", RefreshLive)
	v.SetDefault("sync.backend_timeout", "0s")
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("ws.keepalive", "30s")
	v.SetDefault("auth.rate_limit", 10)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	durations := map[string]time.Duration{}
	for _, key := range []string{"jwt.ttl", "sync.backend_timeout", "session.idle_ttl", "ws.keepalive"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		DatabaseDriver:           strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:              v.GetString("database.url"),
		DocumentBackend:          strings.ToLower(v.GetString("documents.backend")),
		FirestoreProjectID:       v.GetString("firestore.project_id"),
		FirestoreCredentialsFile: v.GetString("firestore.credentials_file"),
		RedisURL:                 v.GetString("redis.url"),
		NATSURL:                  v.GetString("nats.url"),
		RealtimeChannelBase:      v.GetString("realtime.channel_base"),
		JWTSecret:                v.GetString("jwt.secret"),
		JWTTTL:                   durations["jwt.ttl"],
		HomeworkVisibility:       strings.ToLower(v.GetString("homework.visibility")),
		RefreshMode:              strings.ToLower(v.GetString("sync.refresh_mode")),
		BackendTimeout:           durations["sync.backend_timeout"],
		SessionIdleTTL:           durations["session.idle_ttl"],
		WebsocketKeepAlive:       durations["ws.keepalive"],
		AuthRateLimit:            v.GetInt("auth.rate_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.HomeworkVisibility {
	case VisibilityClassScoped, VisibilityGlobal:
	default:
		return Config{}, fmt.Errorf("unsupported homework visibility %q", cfg.HomeworkVisibility)
	}

	switch cfg.RefreshMode {
	case RefreshLive, RefreshManual:
	default:
		return Config{}, fmt.Errorf("unsupported refresh mode %q", cfg.RefreshMode)
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.DocumentBackend {
	case DocumentsSQL:
	case DocumentsFirestore:
		if cfg.FirestoreProjectID == "" {
			return Config{}, fmt.Errorf("firestore project id must be provided")
		}
	default:
		return Config{}, fmt.Errorf("unsupported document backend %q", cfg.DocumentBackend)
	}

	if cfg.JWTTTL == 0 {
		cfg.JWTTTL = 12 * time.Hour
	}

	if cfg.WebsocketKeepAlive == 0 {
		cfg.WebsocketKeepAlive = 30 * time.Second
	}

	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 10
	}

	return cfg, nil
}
