//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mixgrove/player/internal/app/playback"
)

// SpeakerAvailable indicates whether local audio output is supported in
// this build.
const SpeakerAvailable = false

// SpeakerConfig holds speaker transport configuration.
type SpeakerConfig struct {
	Buffer time.Duration
}

// Speaker is unavailable in builds without audio support. Every operation
// is a no-op and Load fails.
type Speaker struct {
	eventCh chan playback.Event
}

// NewSpeaker creates a non-functional speaker transport; callers should
// check SpeakerAvailable and fall back to the clock transport.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	return &Speaker{eventCh: make(chan playback.Event)}
}

func (s *Speaker) Load(ctx context.Context, url string) error {
	return errors.New("speaker transport not available in this build")
}

func (s *Speaker) Play() error {
	return errors.New("speaker transport not available in this build")
}

func (s *Speaker) Pause()                        {}
func (s *Speaker) Seek(seconds float64)          {}
func (s *Speaker) SetVolume(v float64)           {}
func (s *Speaker) CurrentTime() float64          { return 0 }
func (s *Speaker) Duration() float64             { return 0 }
func (s *Speaker) Events() <-chan playback.Event { return s.eventCh }
func (s *Speaker) Close()                        {}
