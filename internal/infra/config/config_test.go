package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 500, cfg.Player.NavDebounceMs)
	assert.Equal(t, 5, cfg.Player.HeartbeatSec)
	assert.Equal(t, 60, cfg.Player.SnapshotTTLMin)
	assert.Equal(t, 500, cfg.Player.PersistThrottleMs)
	assert.Equal(t, 70, cfg.Player.DefaultVolume)
	assert.Equal(t, "clock", cfg.Audio.Backend.Type)
	assert.Equal(t, 30, cfg.Tracking.MinListenSec)
	assert.False(t, cfg.Catalog.Spotify.Enabled())
	assert.False(t, cfg.Tracking.Enabled())
}

func TestLoad(t *testing.T) {
	yaml := `
logging:
  level: debug
player:
  nav_debounce_ms: 250
  default_volume: 50
audio:
  backend:
    type: speaker
    settings:
      buffer_ms: 200
catalog:
  spotify:
    client_id: cid
    client_secret: secret
    refresh_token: token
    market: JP
tracking:
  user_id: user1
  api_url: https://api.mixgrove.example.com
`
	path := filepath.Join(t.TempDir(), "player.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 250, cfg.Player.NavDebounceMs)
	assert.Equal(t, 50, cfg.Player.DefaultVolume)
	// Unset fields still get their defaults.
	assert.Equal(t, 5, cfg.Player.HeartbeatSec)

	assert.Equal(t, "speaker", cfg.Audio.Backend.Type)
	assert.Equal(t, 200, cfg.Audio.Backend.Settings["buffer_ms"])

	assert.True(t, cfg.Catalog.Spotify.Enabled())
	assert.Equal(t, "JP", cfg.Catalog.Spotify.Market)

	assert.True(t, cfg.Tracking.Enabled())
	assert.Equal(t, "user1", cfg.Tracking.UserID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unsupported audio backend",
			mutate:  func(c *Config) { c.Audio.Backend.Type = "gstreamer" },
			wantErr: true,
			errMsg:  "audio backend",
		},
		{
			name:    "volume out of range",
			mutate:  func(c *Config) { c.Player.DefaultVolume = 150 },
			wantErr: true,
			errMsg:  "DefaultVolume",
		},
		{
			name:    "debounce out of range",
			mutate:  func(c *Config) { c.Player.NavDebounceMs = 60000 },
			wantErr: true,
			errMsg:  "NavDebounceMs",
		},
		{
			name:    "bad market code",
			mutate:  func(c *Config) { c.Catalog.Spotify.Market = "JPN" },
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name:    "bad tracking url",
			mutate:  func(c *Config) { c.Tracking.APIURL = "not a url" },
			wantErr: true,
			errMsg:  "APIURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "env-cid")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "env-token")
	t.Setenv("MIXGROVE_USER_ID", "env-user")
	t.Setenv("MIXGROVE_API_TOKEN", "env-api-token")

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "env-cid", cfg.Catalog.Spotify.ClientID)
	assert.Equal(t, "env-secret", cfg.Catalog.Spotify.ClientSecret)
	assert.Equal(t, "env-token", cfg.Catalog.Spotify.RefreshToken)
	assert.Equal(t, "env-user", cfg.Tracking.UserID)
	assert.Equal(t, "env-api-token", cfg.Tracking.APIToken)
	assert.True(t, cfg.Catalog.Spotify.Enabled())
}
