package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"globalchat/pkg/database"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database    DatabaseConfig
	HTTP        HTTPConfig
	WebSocket   WebSocketConfig
	Translation TranslationConfig
	Auth        AuthConfig
	Router      RouterConfig
	Log         LogConfig
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver          string        `env:"GLOBALCHAT_DATABASE_DRIVER" validate:"oneof=sqlite postgres"`
	Path            string        `env:"GLOBALCHAT_DATABASE_PATH" validate:"required_if=Driver sqlite"`
	DSN             string        `env:"GLOBALCHAT_DATABASE_DSN" validate:"required_if=Driver postgres"`
	MaxConnections  int           `env:"GLOBALCHAT_DATABASE_MAX_CONNECTIONS" validate:"gt=0"`
	ConnMaxLifetime time.Duration `env:"GLOBALCHAT_DATABASE_CONN_MAX_LIFETIME" validate:"gt=0"`
	WriteRetryDelay time.Duration `env:"GLOBALCHAT_DATABASE_WRITE_RETRY_DELAY" validate:"gte=0"`
}

// HTTPConfig covers the listener shared by the API and the websocket endpoint
type HTTPConfig struct {
	Host            string        `env:"GLOBALCHAT_HTTP_HOST" validate:"required"`
	Port            int           `env:"GLOBALCHAT_HTTP_PORT" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `env:"GLOBALCHAT_HTTP_READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"GLOBALCHAT_HTTP_WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"GLOBALCHAT_HTTP_SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// WebSocketConfig tunes per-connection pumps
type WebSocketConfig struct {
	PingInterval  time.Duration `env:"GLOBALCHAT_WEBSOCKET_PING_INTERVAL" validate:"gt=0"`
	ReadTimeout   time.Duration `env:"GLOBALCHAT_WEBSOCKET_READ_TIMEOUT" validate:"gtfield=PingInterval"`
	WriteTimeout  time.Duration `env:"GLOBALCHAT_WEBSOCKET_WRITE_TIMEOUT" validate:"gt=0"`
	BufferSize    int           `env:"GLOBALCHAT_WEBSOCKET_BUFFER_SIZE" validate:"gt=0"`
	HistoryLimit  int           `env:"GLOBALCHAT_WEBSOCKET_HISTORY_LIMIT" validate:"gte=0,lte=100"`
	MaxFrameBytes int64         `env:"GLOBALCHAT_WEBSOCKET_MAX_FRAME_BYTES" validate:"gt=0"`
}

// TranslationConfig points at an OpenAI-compatible chat-completions endpoint
type TranslationConfig struct {
	Enabled               bool          `env:"GLOBALCHAT_TRANSLATION_ENABLED"`
	BaseURL               string        `env:"GLOBALCHAT_TRANSLATION_BASE_URL" validate:"required_if=Enabled true"`
	APIKey                string        `env:"GLOBALCHAT_TRANSLATION_API_KEY"`
	Model                 string        `env:"GLOBALCHAT_TRANSLATION_MODEL" validate:"required_if=Enabled true"`
	Temperature           float64       `env:"GLOBALCHAT_TRANSLATION_TEMPERATURE" validate:"gte=0,lte=2"`
	Timeout               time.Duration `env:"GLOBALCHAT_TRANSLATION_TIMEOUT" validate:"gt=0"`
	MaxParallel           int           `env:"GLOBALCHAT_TRANSLATION_MAX_PARALLEL" validate:"gt=0"`
	DetectMissingLanguage bool          `env:"GLOBALCHAT_TRANSLATION_DETECT_MISSING_LANGUAGE"`
}

// AuthConfig holds token signing parameters
type AuthConfig struct {
	Secret       string        `env:"GLOBALCHAT_AUTH_SECRET" validate:"min=16"`
	Issuer       string        `env:"GLOBALCHAT_AUTH_ISSUER" validate:"required"`
	TokenTTL     time.Duration `env:"GLOBALCHAT_AUTH_TOKEN_TTL" validate:"gt=0"`
	UserCacheTTL time.Duration `env:"GLOBALCHAT_AUTH_USER_CACHE_TTL" validate:"gte=0"`
}

// RouterConfig bounds inbound traffic
type RouterConfig struct {
	MaxContentLength   int           `env:"GLOBALCHAT_ROUTER_MAX_CONTENT_LENGTH" validate:"gt=0"`
	RateLimitPerMinute int           `env:"GLOBALCHAT_ROUTER_RATE_LIMIT_PER_MINUTE" validate:"gte=0"`
	LaneSize           int           `env:"GLOBALCHAT_ROUTER_LANE_SIZE" validate:"gt=0"`
	RouteTimeout       time.Duration `env:"GLOBALCHAT_ROUTER_ROUTE_TIMEOUT" validate:"gt=0"`
}

// LogConfig selects the slog level and the fallback locale for notices
type LogConfig struct {
	Level         string `env:"GLOBALCHAT_LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	DefaultLocale string `env:"GLOBALCHAT_DEFAULT_LOCALE" validate:"required,bcp47_language_tag"`
}

const devSecret = "globalchat-dev-secret-change-me"

// FUNCTIONAL DISCOVERY: Production-ready defaults, SQLite on local disk,
// HTTP on the standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          database.DriverSQLite,
			Path:            "./data/globalchat.db",
			MaxConnections:  10,
			ConnMaxLifetime: time.Hour,
			WriteRetryDelay: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:  30 * time.Second,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  10 * time.Second,
			BufferSize:    100,
			HistoryLimit:  50,
			MaxFrameBytes: 64 * 1024,
		},
		Translation: TranslationConfig{
			Enabled:     true,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			Timeout:     10 * time.Second,
			MaxParallel: 8,
		},
		Auth: AuthConfig{
			Secret:       devSecret,
			Issuer:       "globalchat",
			TokenTTL:     24 * time.Hour,
			UserCacheTTL: time.Minute,
		},
		Router: RouterConfig{
			MaxContentLength:   4000,
			RateLimitPerMinute: 100,
			LaneSize:           64,
			RouteTimeout:       30 * time.Second,
		},
		Log: LogConfig{
			Level:         "INFO",
			DefaultLocale: "en",
		},
	}
}

var validate = validator.New()

// Validate checks every section and reports the first offending field
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, f.Namespace(), f.ActualTag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with the built-in secret
func (c *Config) UsesDevSecret() bool {
	return c.Auth.Secret == devSecret
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// StorageConfig maps the database section onto the storage layer's config
func (c *Config) StorageConfig() *database.Config {
	cfg := database.DefaultConfig()
	cfg.Driver = c.Database.Driver
	cfg.DatabasePath = c.Database.Path
	cfg.DSN = c.Database.DSN
	cfg.MaxConnections = c.Database.MaxConnections
	cfg.ConnMaxLifetime = c.Database.ConnMaxLifetime
	cfg.WriteRetryDelay = c.Database.WriteRetryDelay
	return cfg
}

// LoadFromEnv applies GLOBALCHAT_* environment variables (and a .env file in
// the working directory, when present) on top of the defaults
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FUNCTIONAL DISCOVERY: Variables already set in the process environment win over .env
func applyEnv(config *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if _, err := env.UnmarshalFromEnviron(config); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// LoadFromFile reads a TOML file on top of the defaults
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}
	if err := file.apply(config); err != nil {
		return fmt.Errorf("invalid value in %s: %w", filepath, err)
	}
	return nil
}

// LoadConfigWithPrecedence resolves defaults, then the file (when a path is
// given), then the environment, and validates the result once
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := DefaultConfig()

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
