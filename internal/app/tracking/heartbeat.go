package tracking

import (
	"context"
	"sync"
	"time"
)

// Heartbeat periodically asks the Reporter to evaluate the ongoing play.
// At most one timer is ever active: starting a heartbeat for a new track
// first clears any existing one.
type Heartbeat struct {
	mu sync.Mutex

	reporter Reporter
	interval time.Duration
	userID   string

	cancel  context.CancelFunc
	trackID string
}

// NewHeartbeat creates a heartbeat driving the given reporter.
func NewHeartbeat(reporter Reporter, interval time.Duration, userID string) *Heartbeat {
	return &Heartbeat{
		reporter: reporter,
		interval: interval,
		userID:   userID,
	}
}

// Start begins the periodic check for the given track, stopping any
// heartbeat that is already running.
func (h *Heartbeat) Start(trackID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.trackID = trackID

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.reporter.CheckAndRecordPlay(ctx, trackID, h.userID)
			}
		}
	}()
}

// Stop clears the active heartbeat, if any.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Heartbeat) stopLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.trackID = ""
}

// ActiveTrack returns the track the heartbeat is currently running for,
// or "" if no heartbeat is active.
func (h *Heartbeat) ActiveTrack() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trackID
}
