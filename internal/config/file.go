package config

import (
	"fmt"
	"time"
)

// ConfigFile represents the TOML structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for file parsing to handle duration strings
// and to tell unset keys apart from zero values
type ConfigFile struct {
	Database    *DatabaseConfigFile    `toml:"database"`
	HTTP        *HTTPConfigFile        `toml:"http"`
	WebSocket   *WebSocketConfigFile   `toml:"websocket"`
	Translation *TranslationConfigFile `toml:"translation"`
	Auth        *AuthConfigFile        `toml:"auth"`
	Router      *RouterConfigFile      `toml:"router"`
	Log         *LogConfigFile         `toml:"log"`
}

type DatabaseConfigFile struct {
	Driver          string `toml:"driver"`
	Path            string `toml:"path"`
	DSN             string `toml:"dsn"`
	MaxConnections  int    `toml:"max_connections"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	WriteRetryDelay string `toml:"write_retry_delay"`
}

type HTTPConfigFile struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval  string `toml:"ping_interval"`
	ReadTimeout   string `toml:"read_timeout"`
	WriteTimeout  string `toml:"write_timeout"`
	BufferSize    int    `toml:"buffer_size"`
	HistoryLimit  *int   `toml:"history_limit"`
	MaxFrameBytes int64  `toml:"max_frame_bytes"`
}

type TranslationConfigFile struct {
	Enabled               *bool    `toml:"enabled"`
	BaseURL               string   `toml:"base_url"`
	APIKey                string   `toml:"api_key"`
	Model                 string   `toml:"model"`
	Temperature           *float64 `toml:"temperature"`
	Timeout               string   `toml:"timeout"`
	MaxParallel           int      `toml:"max_parallel"`
	DetectMissingLanguage *bool    `toml:"detect_missing_language"`
}

type AuthConfigFile struct {
	Secret       string `toml:"secret"`
	Issuer       string `toml:"issuer"`
	TokenTTL     string `toml:"token_ttl"`
	UserCacheTTL string `toml:"user_cache_ttl"`
}

type RouterConfigFile struct {
	MaxContentLength   int    `toml:"max_content_length"`
	RateLimitPerMinute *int   `toml:"rate_limit_per_minute"`
	LaneSize           int    `toml:"lane_size"`
	RouteTimeout       string `toml:"route_timeout"`
}

type LogConfigFile struct {
	Level         string `toml:"level"`
	DefaultLocale string `toml:"default_locale"`
}

// apply overlays every key present in the file onto config
func (f *ConfigFile) apply(config *Config) error {
	if d := f.Database; d != nil {
		setString(&config.Database.Driver, d.Driver)
		setString(&config.Database.Path, d.Path)
		setString(&config.Database.DSN, d.DSN)
		setInt(&config.Database.MaxConnections, d.MaxConnections)
		if err := setDuration(&config.Database.ConnMaxLifetime, "database.conn_max_lifetime", d.ConnMaxLifetime); err != nil {
			return err
		}
		if err := setDuration(&config.Database.WriteRetryDelay, "database.write_retry_delay", d.WriteRetryDelay); err != nil {
			return err
		}
	}

	if h := f.HTTP; h != nil {
		setString(&config.HTTP.Host, h.Host)
		setInt(&config.HTTP.Port, h.Port)
		for _, d := range []struct {
			dst  *time.Duration
			name string
			raw  string
		}{
			{&config.HTTP.ReadTimeout, "http.read_timeout", h.ReadTimeout},
			{&config.HTTP.WriteTimeout, "http.write_timeout", h.WriteTimeout},
			{&config.HTTP.ShutdownTimeout, "http.shutdown_timeout", h.ShutdownTimeout},
		} {
			if err := setDuration(d.dst, d.name, d.raw); err != nil {
				return err
			}
		}
	}

	if w := f.WebSocket; w != nil {
		setInt(&config.WebSocket.BufferSize, w.BufferSize)
		if w.HistoryLimit != nil {
			config.WebSocket.HistoryLimit = *w.HistoryLimit
		}
		if w.MaxFrameBytes > 0 {
			config.WebSocket.MaxFrameBytes = w.MaxFrameBytes
		}
		for _, d := range []struct {
			dst  *time.Duration
			name string
			raw  string
		}{
			{&config.WebSocket.PingInterval, "websocket.ping_interval", w.PingInterval},
			{&config.WebSocket.ReadTimeout, "websocket.read_timeout", w.ReadTimeout},
			{&config.WebSocket.WriteTimeout, "websocket.write_timeout", w.WriteTimeout},
		} {
			if err := setDuration(d.dst, d.name, d.raw); err != nil {
				return err
			}
		}
	}

	if t := f.Translation; t != nil {
		if t.Enabled != nil {
			config.Translation.Enabled = *t.Enabled
		}
		setString(&config.Translation.BaseURL, t.BaseURL)
		setString(&config.Translation.APIKey, t.APIKey)
		setString(&config.Translation.Model, t.Model)
		if t.Temperature != nil {
			config.Translation.Temperature = *t.Temperature
		}
		setInt(&config.Translation.MaxParallel, t.MaxParallel)
		if t.DetectMissingLanguage != nil {
			config.Translation.DetectMissingLanguage = *t.DetectMissingLanguage
		}
		if err := setDuration(&config.Translation.Timeout, "translation.timeout", t.Timeout); err != nil {
			return err
		}
	}

	if a := f.Auth; a != nil {
		setString(&config.Auth.Secret, a.Secret)
		setString(&config.Auth.Issuer, a.Issuer)
		if err := setDuration(&config.Auth.TokenTTL, "auth.token_ttl", a.TokenTTL); err != nil {
			return err
		}
		if err := setDuration(&config.Auth.UserCacheTTL, "auth.user_cache_ttl", a.UserCacheTTL); err != nil {
			return err
		}
	}

	if r := f.Router; r != nil {
		setInt(&config.Router.MaxContentLength, r.MaxContentLength)
		if r.RateLimitPerMinute != nil {
			config.Router.RateLimitPerMinute = *r.RateLimitPerMinute
		}
		setInt(&config.Router.LaneSize, r.LaneSize)
		if err := setDuration(&config.Router.RouteTimeout, "router.route_timeout", r.RouteTimeout); err != nil {
			return err
		}
	}

	if l := f.Log; l != nil {
		setString(&config.Log.Level, l.Level)
		setString(&config.Log.DefaultLocale, l.DefaultLocale)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w %s=%q: %v", ErrInvalidDuration, name, raw, err)
	}
	*dst = d
	return nil
}
