package audio

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/mixgrove/player/internal/app/playback"
	"github.com/mixgrove/player/internal/infra/config"
)

type clockSettings struct {
	DefaultTrackSec int `mapstructure:"default_track_sec"`
	TickMs          int `mapstructure:"tick_ms"`
}

type speakerSettings struct {
	BufferMs int `mapstructure:"buffer_ms"`
}

// NewTransportFromConfig creates a transport backend from configuration.
func NewTransportFromConfig(cfg config.AudioConfig) (playback.Transport, error) {
	zlog.Debug().Msgf("creating audio backend: type=%s settings=%+v", cfg.Backend.Type, cfg.Backend.Settings)

	switch cfg.Backend.Type {
	case "clock", "":
		var s clockSettings
		if err := mapstructure.Decode(cfg.Backend.Settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid clock backend settings")
		}
		return NewClock(ClockConfig{
			DefaultTrackDuration: time.Duration(s.DefaultTrackSec) * time.Second,
			Tick:                 time.Duration(s.TickMs) * time.Millisecond,
		}), nil

	case "speaker":
		if !SpeakerAvailable {
			return nil, errors.New("speaker backend not available in this build")
		}
		var s speakerSettings
		if err := mapstructure.Decode(cfg.Backend.Settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid speaker backend settings")
		}
		return NewSpeaker(SpeakerConfig{
			Buffer: time.Duration(s.BufferMs) * time.Millisecond,
		}), nil

	default:
		return nil, errors.Newf("unsupported audio backend type: %s", cfg.Backend.Type)
	}
}
