package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgrove/player/internal/app/playback"
)

func waitEvent(t *testing.T, c *Clock, want playback.EventType) playback.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
			return playback.Event{}
		}
	}
}

func TestClockLoadEmitsMetadata(t *testing.T) {
	c := NewClock(ClockConfig{DefaultTrackDuration: 2 * time.Second})
	defer c.Close()

	require.NoError(t, c.Load(context.Background(), "clock://track"))

	ev := waitEvent(t, c, playback.EventMetadataLoaded)
	assert.Equal(t, 2.0, ev.Duration)
	assert.Equal(t, 2.0, c.Duration())
	assert.Equal(t, 0.0, c.CurrentTime())
}

func TestClockPlayAdvancesAndEnds(t *testing.T) {
	c := NewClock(ClockConfig{
		DefaultTrackDuration: 100 * time.Millisecond,
		Tick:                 10 * time.Millisecond,
	})
	defer c.Close()

	require.NoError(t, c.Load(context.Background(), "clock://track"))
	require.NoError(t, c.Play())

	waitEvent(t, c, playback.EventTimeUpdate)
	ev := waitEvent(t, c, playback.EventEnded)
	assert.Equal(t, ev.Duration, ev.Position)

	// Ended track stays loaded so it can be replayed from the start.
	require.NoError(t, c.Play())
	waitEvent(t, c, playback.EventTimeUpdate)
}

func TestClockEndCancelsTicker(t *testing.T) {
	c := NewClock(ClockConfig{
		DefaultTrackDuration: 100 * time.Millisecond,
		Tick:                 10 * time.Millisecond,
	})
	defer c.Close()

	require.NoError(t, c.Load(context.Background(), "clock://track"))
	require.NoError(t, c.Play())

	// Wrap the ticker cancel so we can observe it firing when the track
	// runs out; otherwise the derived context lives on until Close.
	canceled := make(chan struct{})
	c.mu.Lock()
	orig := c.tickerCancel
	c.tickerCancel = func() {
		close(canceled)
		orig()
	}
	c.mu.Unlock()

	waitEvent(t, c, playback.EventEnded)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("ticker context not canceled at end of track")
	}
	c.mu.Lock()
	assert.Nil(t, c.tickerCancel)
	c.mu.Unlock()
}

func TestClockPauseFreezesPosition(t *testing.T) {
	c := NewClock(ClockConfig{
		DefaultTrackDuration: 10 * time.Second,
		Tick:                 10 * time.Millisecond,
	})
	defer c.Close()

	require.NoError(t, c.Load(context.Background(), "clock://track"))
	require.NoError(t, c.Play())
	time.Sleep(50 * time.Millisecond)
	c.Pause()

	pos := c.CurrentTime()
	assert.Greater(t, pos, 0.0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, pos, c.CurrentTime())
}

func TestClockSeek(t *testing.T) {
	c := NewClock(ClockConfig{DefaultTrackDuration: 10 * time.Second})
	defer c.Close()

	require.NoError(t, c.Load(context.Background(), "clock://track"))

	c.Seek(4)
	assert.Equal(t, 4.0, c.CurrentTime())

	// Clamped to the track bounds.
	c.Seek(-5)
	assert.Equal(t, 0.0, c.CurrentTime())
	c.Seek(99)
	assert.Equal(t, 10.0, c.CurrentTime())
}

func TestClockPlayWithoutLoad(t *testing.T) {
	c := NewClock(ClockConfig{})
	defer c.Close()

	// Nothing loaded, Play is a no-op.
	require.NoError(t, c.Play())
	assert.Equal(t, 0.0, c.CurrentTime())
}
