// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Player   PlayerConfig   `yaml:"player"`
	Audio    AudioConfig    `yaml:"audio"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
}

// LoggingConfig represents logger configuration.
type LoggingConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// PlayerConfig represents session controller tuning.
type PlayerConfig struct {
	NavDebounceMs     int `yaml:"nav_debounce_ms" default:"500" validate:"gte=0,lte=5000"`
	HeartbeatSec      int `yaml:"heartbeat_sec" default:"5" validate:"gte=1,lte=60"`
	SnapshotTTLMin    int `yaml:"snapshot_ttl_min" default:"60" validate:"gte=1"`
	PersistThrottleMs int `yaml:"persist_throttle_ms" default:"500" validate:"gte=0,lte=10000"`
	DefaultVolume     int `yaml:"default_volume" default:"70" validate:"gte=0,lte=100"`
}

// AudioConfig represents the audio transport backend.
type AudioConfig struct {
	Backend BackendConfig `yaml:"backend"`
}

// BackendConfig represents a single transport backend configuration.
type BackendConfig struct {
	Type     string         `yaml:"type" default:"clock"`
	Settings map[string]any `yaml:"settings"`
}

// CatalogConfig represents the playlist/track catalog collaborator.
type CatalogConfig struct {
	Spotify SpotifyConfig `yaml:"spotify"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Enabled reports whether Spotify credentials are configured.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// StorageConfig represents local storage paths.
type StorageConfig struct {
	StateDir   string `yaml:"state_dir" default:".mixgrove/state"`
	SettingsDB string `yaml:"settings_db" default:".mixgrove/settings.db"`
}

// TrackingConfig represents play-tracking configuration. With no API URL
// configured, plays are only logged.
type TrackingConfig struct {
	UserID       string `yaml:"user_id"`
	APIURL       string `yaml:"api_url" validate:"omitempty,url"`
	APIToken     string `yaml:"api_token"`
	MinListenSec int    `yaml:"min_listen_sec" default:"30" validate:"gte=1,lte=600"`
}

// Enabled reports whether a play-count backend is configured.
func (c TrackingConfig) Enabled() bool {
	return c.APIURL != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given.
func Default() (*Config, error) {
	var cfg Config
	cfg.overrideFromEnv()
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Catalog.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Catalog.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Catalog.Spotify.RefreshToken = v
	}
	if v := os.Getenv("MIXGROVE_USER_ID"); v != "" {
		c.Tracking.UserID = v
	}
	if v := os.Getenv("MIXGROVE_API_TOKEN"); v != "" {
		c.Tracking.APIToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	switch c.Audio.Backend.Type {
	case "clock", "speaker":
	default:
		return errors.Newf("unsupported audio backend type: %s", c.Audio.Backend.Type)
	}

	return nil
}
