//go:build (linux && cgo) || windows || darwin

package audio

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/mixgrove/player/internal/app/playback"
)

// SpeakerAvailable indicates whether local audio output is supported in
// this build.
const SpeakerAvailable = true

// SpeakerConfig holds speaker transport configuration.
type SpeakerConfig struct {
	Buffer time.Duration // Speaker buffer size
}

// Speaker is a Transport that plays mp3 audio on the local audio device
// using beep. Tracks are fetched over HTTP into memory before decoding.
type Speaker struct {
	mu sync.Mutex

	config      SpeakerConfig
	httpClient  *http.Client
	initialized bool
	sampleRate  beep.SampleRate

	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	volume    *effects.Volume
	loadedURL string

	tickerCancel func()

	eventCh chan playback.Event
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSpeaker creates a new speaker transport.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Speaker{
		config:     cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sampleRate: beep.SampleRate(44100),
		eventCh:    make(chan playback.Event, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Load fetches the track audio and prepares it for playback, replacing any
// previously loaded track.
func (s *Speaker) Load(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build audio request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to fetch audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("failed to fetch audio: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read audio body")
	}

	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		return errors.Wrap(err, "failed to decode audio")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	if !s.initialized {
		if err := speaker.Init(s.sampleRate, s.sampleRate.N(s.config.Buffer)); err != nil {
			streamer.Close()
			return errors.Wrap(err, "failed to initialize speaker")
		}
		s.initialized = true
	}

	s.streamer = streamer
	s.format = format
	s.loadedURL = url

	resampled := beep.Resample(4, format.SampleRate, s.sampleRate, streamer)
	s.volume = &effects.Volume{Streamer: resampled, Base: 2}
	s.ctrl = &beep.Ctrl{Streamer: s.volume, Paused: true}

	s.sendLocked(playback.Event{
		Type:     playback.EventMetadataLoaded,
		Duration: s.durationLocked(),
	})
	return nil
}

// Play starts or resumes playback.
func (s *Speaker) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return errors.New("no track loaded")
	}

	speaker.Lock()
	alreadyStarted := !s.ctrl.Paused
	s.ctrl.Paused = false
	speaker.Unlock()

	if !alreadyStarted && s.loadedURL != "" {
		// First Play after Load: hand the streamer to the speaker with an
		// end-of-track callback.
		ctrl := s.ctrl
		speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
			// Run in a separate goroutine: the callback fires inside the
			// speaker's mixer and must not re-enter the speaker lock.
			go s.onTrackDone(ctrl)
		})))
		s.loadedURL = ""
	}

	s.startTickerLocked()
	return nil
}

// Pause pauses playback, keeping the position.
func (s *Speaker) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		speaker.Unlock()
	}
	s.stopTickerLocked()
}

// Seek moves the playback position.
func (s *Speaker) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return
	}

	speaker.Lock()
	defer speaker.Unlock()
	_ = s.streamer.Seek(s.format.SampleRate.N(time.Duration(seconds * float64(time.Second))))
}

// SetVolume sets the output volume in [0.0, 1.0].
func (s *Speaker) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.volume == nil {
		return
	}

	speaker.Lock()
	defer speaker.Unlock()
	if v <= 0 {
		s.volume.Silent = true
		return
	}
	s.volume.Silent = false
	s.volume.Volume = math.Log2(v)
}

// CurrentTime returns the playback position in seconds.
func (s *Speaker) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := s.streamer.Position()
	speaker.Unlock()
	return s.format.SampleRate.D(pos).Seconds()
}

// Duration returns the track duration in seconds.
func (s *Speaker) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

// Events returns the transport event channel.
func (s *Speaker) Events() <-chan playback.Event {
	return s.eventCh
}

// Close releases transport resources.
func (s *Speaker) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
}

func (s *Speaker) durationLocked() float64 {
	if s.streamer == nil {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Len()).Seconds()
}

// onTrackDone fires when the speaker drains the streamer.
func (s *Speaker) onTrackDone(ctrl *beep.Ctrl) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A newer track may already have replaced this one.
	if s.ctrl != ctrl {
		return
	}

	dur := s.durationLocked()
	s.stopLocked()
	s.sendLocked(playback.Event{
		Type:     playback.EventEnded,
		Position: dur,
		Duration: dur,
	})
}

// stopLocked tears down the current streamer. Must be called with the lock
// held.
func (s *Speaker) stopLocked() {
	s.stopTickerLocked()
	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		speaker.Unlock()
	}
	if s.streamer != nil {
		s.streamer.Close()
		s.streamer = nil
	}
	s.ctrl = nil
	s.volume = nil
	s.loadedURL = ""
}

func (s *Speaker) startTickerLocked() {
	s.stopTickerLocked()
	ctx, cancel := context.WithCancel(s.ctx)
	s.tickerCancel = cancel

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.emitTimeUpdate()
			}
		}
	}()
}

func (s *Speaker) emitTimeUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return
	}

	speaker.Lock()
	pos := s.format.SampleRate.D(s.streamer.Position()).Seconds()
	speaker.Unlock()

	s.sendLocked(playback.Event{
		Type:     playback.EventTimeUpdate,
		Position: pos,
		Duration: s.durationLocked(),
	})
}

func (s *Speaker) stopTickerLocked() {
	if s.tickerCancel != nil {
		s.tickerCancel()
		s.tickerCancel = nil
	}
}

// sendLocked sends an event without blocking.
func (s *Speaker) sendLocked(e playback.Event) {
	select {
	case s.eventCh <- e:
	case <-s.ctx.Done():
	default:
	}
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
