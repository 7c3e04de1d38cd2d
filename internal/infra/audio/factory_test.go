package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgrove/player/internal/infra/config"
)

func TestNewTransportFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AudioConfig
		wantErr bool
	}{
		{
			name: "clock backend",
			cfg: config.AudioConfig{Backend: config.BackendConfig{
				Type:     "clock",
				Settings: map[string]any{"default_track_sec": 120, "tick_ms": 100},
			}},
		},
		{
			name: "empty type defaults to clock",
			cfg:  config.AudioConfig{},
		},
		{
			name: "unsupported backend",
			cfg: config.AudioConfig{Backend: config.BackendConfig{
				Type: "pipewire",
			}},
			wantErr: true,
		},
		{
			name: "bad clock settings",
			cfg: config.AudioConfig{Backend: config.BackendConfig{
				Type:     "clock",
				Settings: map[string]any{"tick_ms": "soon"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransportFromConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tr)
			tr.Close()
		})
	}
}
