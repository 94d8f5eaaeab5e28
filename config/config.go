package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

type Config struct {
	Database   DatabaseConfig
	Invitation InvitationConfig
	Pushover   PushoverConfig
}

type DatabaseConfig struct {
	Driver         string `env:"DB_DRIVER"`
	DSN            string `env:"DB_DSN"`
	ValkeyAddr     string `env:"VALKEY_ADDR"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`
	ValkeyKey      string `env:"VALKEY_KEY"`
}

type InvitationConfig struct {
	Addr                  string `env:"INVITATION_ADDR"`
	AllowedOrigins        string `env:"INVITATION_ALLOWED_ORIGINS"`
	AssetsDir             string `env:"INVITATION_ASSETS_DIR"`
	BackgroundJobsEnabled bool   `env:"BACKGROUND_JOBS_ENABLED"`
	BasePath              string `env:"INVITATION_BASE_PATH"`
	ContentPath           string `env:"INVITATION_CONTENT"`
	DataDir               string `env:"INVITATION_DATA_DIR"`
	LogLevel              string `env:"LOG_LEVEL"`
	SessionSecret         string `env:"INVITATION_SESSION_SECRET"`
	SessionTTLMinutes     int    `env:"INVITATION_SESSION_TTL"`
}

type PushoverConfig struct {
	DigestHours int    `env:"PUSHOVER_DIGEST_HOURS"`
	Recipient   string `env:"PUSHOVER_RECIPIENT"`
	Token       string `env:"PUSHOVER_TOKEN"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "invitation.db",
		},
		Invitation: InvitationConfig{
			Addr:                  ":8080",
			AllowedOrigins:        "http://localhost:8080",
			AssetsDir:             "assets",
			BackgroundJobsEnabled: true,
			DataDir:               ".",
			LogLevel:              "info",
			SessionTTLMinutes:     120,
		},
		Pushover: PushoverConfig{
			DigestHours: 24,
		},
	}
}

// Load layers environment variables over the defaults. Credentials are
// passed through untouched.
func Load() (Config, error) {
	cfg := Default()
	err := config.New().
		AddFeeder(feeder.Env{}).
		AddStruct(&cfg).
		Feed()
	if err != nil {
		return cfg, err
	}
	cfg.Invitation.BasePath = NormaliseBasePath(cfg.Invitation.BasePath)
	return cfg, nil
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Invitation.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}

func (c *Config) SessionTTL() time.Duration {
	if c.Invitation.SessionTTLMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Invitation.SessionTTLMinutes) * time.Minute
}

func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.Invitation.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c *Config) PushoverEnabled() bool {
	return c.Pushover.Token != "" && c.Pushover.Recipient != ""
}

// NormaliseBasePath turns "", "/" and "wedding/" into "", "" and "/wedding"
// so it can be glued in front of any absolute path.
func NormaliseBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// AssetURL prefixes an asset reference with the base path.
func AssetURL(basePath, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return NormaliseBasePath(basePath) + "/static/" + strings.TrimLeft(ref, "/")
}
