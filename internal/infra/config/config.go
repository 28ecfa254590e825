// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Playback PlaybackConfig `yaml:"playback"`
	Resolver ResolverConfig `yaml:"resolver"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr      string      `yaml:"addr" default:":8080"`
	PublicURL string      `yaml:"public_url" default:"http://localhost:8080" validate:"url"`
	Token     string      `yaml:"token"`
	Hooks     HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// BackendConfig represents the audio lookup/stream backend configuration.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url" default:"http://localhost:5501" validate:"url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"10000" validate:"gte=100,lte=120000"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// PlaybackConfig represents playback session configuration.
type PlaybackConfig struct {
	PrefetchDepth      int     `yaml:"prefetch_depth" default:"2" validate:"gte=0,lte=10"`
	PrefetchRatePerSec float64 `yaml:"prefetch_rate_per_sec" default:"4" validate:"gt=0"`
	PrefetchBurst      int     `yaml:"prefetch_burst" default:"2" validate:"gte=1"`
	ResolveTimeoutMs   int     `yaml:"resolve_timeout_ms" default:"20000" validate:"gte=100"`
	WarmTimeoutMs      int     `yaml:"warm_timeout_ms" default:"30000" validate:"gte=100"`
	EventBuffer        int     `yaml:"event_buffer" default:"32" validate:"gte=1"`
}

// ResolverConfig selects the audio resolution strategy.
type ResolverConfig struct {
	Type     string         `yaml:"type" default:"lookup" validate:"oneof=lookup stream"`
	Settings map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying env overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("AUDIO_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("PLAYER_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// BackendTimeout returns the backend request timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutMs) * time.Millisecond
}

// ResolveTimeout returns the per-attempt resolution timeout.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Playback.ResolveTimeoutMs) * time.Millisecond
}

// WarmTimeout returns the per-request prefetch timeout.
func (c *Config) WarmTimeout() time.Duration {
	return time.Duration(c.Playback.WarmTimeoutMs) * time.Millisecond
}

// HasUserToken reports whether user-scoped catalog endpoints are available.
func (c *Config) HasUserToken() bool {
	return c.Spotify.RefreshToken != ""
}
