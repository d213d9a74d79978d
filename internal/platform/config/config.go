package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	SourceDir      = "dir"
	SourcePostgres = "postgres"

	ProviderNone      = "none"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	ConfigSource string `env:"CONFIG_SOURCE" default:"dir"`
	ConfigDir    string `env:"CONFIG_DIR" default:"./users"`
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`

	ChunkLimit           int           `env:"CHUNK_LIMIT" default:"70"`
	ChunkDelay           time.Duration `env:"CHUNK_DELAY" default:"1s"`
	SendTimeout          time.Duration `env:"SEND_TIMEOUT" default:"10s"`
	MatchBroadcasterByID bool          `env:"MATCH_BROADCASTER_BY_ID" default:"false"`
	InfoRequestWindow    time.Duration `env:"INFO_REQUEST_WINDOW" default:"10s"`
	ReplyTimezone        string        `env:"REPLY_TIMEZONE" default:"Local"`

	AIProvider      string        `env:"AI_PROVIDER" default:"none"`
	AIBaseURL       string        `env:"AI_BASE_URL" default:"http://localhost:11434"`
	AIModel         string        `env:"AI_MODEL"`
	AIAPIKey        string        `env:"AI_API_KEY"`
	AITimeout       time.Duration `env:"AI_TIMEOUT" default:"15s"`
	AIMaxReplyRunes int           `env:"AI_MAX_REPLY_RUNES" default:"200"`

	ActionsEnabled bool          `env:"ACTIONS_ENABLED" default:"false"`
	ActionTimeout  time.Duration `env:"ACTION_TIMEOUT" default:"30s"`

	WSAllowedOrigins    []string `env:"WS_ALLOWED_ORIGINS"`
	WSRateLimit         float64  `env:"WS_RATE_LIMIT" default:"5"`
	WSRateBurst         int      `env:"WS_RATE_BURST" default:"10"`
	WSReadLimit         int64    `env:"WS_READ_LIMIT" default:"65536"`
	WSMaxConnections    int      `env:"WS_MAX_CONNECTIONS" default:"1000"`
	WSMaxConnectionsIP  int      `env:"WS_MAX_CONNECTIONS_PER_IP" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether localhost origins and other conveniences are enabled.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Location is the time zone of the time and date placeholders in replies.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReplyTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func validate(cfg *Config) error {
	switch cfg.ConfigSource {
	case SourceDir:
		if cfg.ConfigDir == "" {
			return errors.New("CONFIG_DIR is required when CONFIG_SOURCE=dir")
		}
	case SourcePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CONFIG_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("CONFIG_SOURCE must be %q or %q, got %q", SourceDir, SourcePostgres, cfg.ConfigSource)
	}

	switch cfg.AIProvider {
	case ProviderNone, ProviderOllama:
	case ProviderAnthropic:
		if cfg.AIAPIKey == "" {
			return errors.New("AI_API_KEY is required when AI_PROVIDER=anthropic")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be one of none, ollama, anthropic, got %q", cfg.AIProvider)
	}
	if cfg.AIProvider != ProviderNone && cfg.AIModel == "" {
		return fmt.Errorf("AI_MODEL is required when AI_PROVIDER=%s", cfg.AIProvider)
	}

	if cfg.ChunkLimit < 1 {
		return fmt.Errorf("CHUNK_LIMIT must be positive, got %d", cfg.ChunkLimit)
	}
	if cfg.ChunkDelay < 0 {
		return errors.New("CHUNK_DELAY must not be negative")
	}
	if cfg.AITimeout <= 0 || cfg.ActionTimeout <= 0 || cfg.InfoRequestWindow <= 0 || cfg.SendTimeout <= 0 {
		return errors.New("AI_TIMEOUT, ACTION_TIMEOUT, INFO_REQUEST_WINDOW and SEND_TIMEOUT must be positive")
	}

	if _, err := time.LoadLocation(cfg.ReplyTimezone); err != nil {
		return fmt.Errorf("invalid REPLY_TIMEZONE %q: %w", cfg.ReplyTimezone, err)
	}
	if cfg.WSRateLimit <= 0 || cfg.WSRateBurst < 1 {
		return errors.New("WS_RATE_LIMIT and WS_RATE_BURST must be positive")
	}

	return nil
}
