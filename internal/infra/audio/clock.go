// Package audio provides Transport implementations for the session
// controller: a wall-clock simulated transport and a local speaker
// transport.
package audio

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mixgrove/player/internal/app/playback"
)

// ClockConfig holds clock transport configuration.
type ClockConfig struct {
	DefaultTrackDuration time.Duration // Assumed track length when unknown
	Tick                 time.Duration // Interval between timeupdate events
}

// Clock is a Transport that simulates playback against the wall clock
// without producing sound. It is used for headless runs and as the default
// backend when no audio device is available.
type Clock struct {
	mu sync.Mutex

	config ClockConfig

	loaded   bool
	playing  bool
	duration float64 // seconds
	elapsed  float64 // seconds accumulated before startedAt
	started  time.Time

	tickerCancel func()
	volume       float64

	eventCh chan playback.Event
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewClock creates a new clock transport.
func NewClock(cfg ClockConfig) *Clock {
	if cfg.DefaultTrackDuration <= 0 {
		cfg.DefaultTrackDuration = 3 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Clock{
		config:  cfg,
		volume:  1.0,
		eventCh: make(chan playback.Event, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load prepares a simulated track. The URL is accepted but never fetched.
func (c *Clock) Load(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTickerLocked()
	c.loaded = true
	c.playing = false
	c.elapsed = 0
	c.duration = c.config.DefaultTrackDuration.Seconds()

	zlog.Debug().Msgf("audio(clock): loaded url=%s duration=%.0fs", url, c.duration)

	c.sendLocked(playback.Event{
		Type:     playback.EventMetadataLoaded,
		Duration: c.duration,
	})
	return nil
}

// Play starts or resumes the simulated clock.
func (c *Clock) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded || c.playing {
		return nil
	}

	c.playing = true
	c.started = time.Now()
	c.startTickerLocked()
	return nil
}

// Pause freezes the simulated position.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}
	c.elapsed += time.Since(c.started).Seconds()
	c.playing = false
	c.stopTickerLocked()
}

// Seek moves the simulated position.
func (c *Clock) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if c.duration > 0 && seconds > c.duration {
		seconds = c.duration
	}
	c.elapsed = seconds
	c.started = time.Now()
}

// SetVolume records the volume; the clock produces no sound.
func (c *Clock) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
}

// CurrentTime returns the simulated position in seconds.
func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// Duration returns the simulated track duration in seconds.
func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Events returns the transport event channel.
func (c *Clock) Events() <-chan playback.Event {
	return c.eventCh
}

// Close releases the transport.
func (c *Clock) Close() {
	c.mu.Lock()
	c.stopTickerLocked()
	c.mu.Unlock()
	c.cancel()
}

func (c *Clock) positionLocked() float64 {
	pos := c.elapsed
	if c.playing {
		pos += time.Since(c.started).Seconds()
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	return pos
}

// startTickerLocked starts the timeupdate loop. Must be called with the
// lock held and any previous ticker stopped.
func (c *Clock) startTickerLocked() {
	ctx, cancel := context.WithCancel(c.ctx)
	c.tickerCancel = cancel

	go func() {
		ticker := time.NewTicker(c.config.Tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.tick() {
					return
				}
			}
		}
	}()
}

// tick emits a timeupdate and, at the end of the track, the ended event.
// Returns true when the track finished and the loop should exit.
func (c *Clock) tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return true
	}

	pos := c.positionLocked()
	if c.duration > 0 && pos >= c.duration {
		c.playing = false
		c.elapsed = 0
		c.stopTickerLocked()
		c.sendLocked(playback.Event{
			Type:     playback.EventEnded,
			Position: c.duration,
			Duration: c.duration,
		})
		return true
	}

	c.sendLocked(playback.Event{
		Type:     playback.EventTimeUpdate,
		Position: pos,
		Duration: c.duration,
	})
	return false
}

func (c *Clock) stopTickerLocked() {
	if c.tickerCancel != nil {
		c.tickerCancel()
		c.tickerCancel = nil
	}
}

// sendLocked sends an event without blocking.
func (c *Clock) sendLocked(e playback.Event) {
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		// Channel full, drop event
	}
}
