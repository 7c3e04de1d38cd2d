package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mixgrove/player/internal/app/playback"
	"github.com/mixgrove/player/internal/app/queue"
	"github.com/mixgrove/player/internal/domain/playlist"
	"github.com/mixgrove/player/internal/domain/track"
)

const (
	snapshotKey      = "playback_session"
	settingVolumeKey = "player_volume"
)

// Snapshot is the persisted form of a playback session. It carries enough
// to rebuild the queue after a restart; volume is stored separately as a
// long-lived setting.
type Snapshot struct {
	PlaylistID      string   `json:"playlistId"`
	TrackID         string   `json:"trackId"`
	TrackIndex      int      `json:"trackIndex"`
	PositionSeconds float64  `json:"positionSeconds"`
	IsPlaying       bool     `json:"isPlaying"`
	ShuffleMode     bool     `json:"shuffleMode"`
	RepeatMode      string   `json:"repeatMode"`
	QueueTrackIDs   []string `json:"queueTrackIds"`
	Timestamp       int64    `json:"timestamp"` // unix milliseconds
}

// markDirty schedules a snapshot write. Writes are throttled so that
// high-frequency callers (the transport's time updates) produce at most
// one write per throttle window.
func (c *Controller) markDirty() {
	if c.config.PersistThrottle <= 0 {
		if err := c.Flush(); err != nil {
			zlog.Warn().Msgf("failed to persist session snapshot: %v", err)
		}
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if c.persistTimer != nil {
		return
	}
	c.persistTimer = time.AfterFunc(c.config.PersistThrottle, func() {
		c.persistMu.Lock()
		defer c.persistMu.Unlock()
		c.persistTimer = nil
		if err := c.flushLocked(); err != nil {
			zlog.Warn().Msgf("failed to persist session snapshot: %v", err)
		}
	})
}

// stopPersistTimer cancels any pending throttled write.
func (c *Controller) stopPersistTimer() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if c.persistTimer != nil {
		c.persistTimer.Stop()
		c.persistTimer = nil
	}
}

// Flush writes the current session snapshot immediately, bypassing the
// throttle. With no active session it is a no-op.
func (c *Controller) Flush() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	return c.flushLocked()
}

// flushLocked captures and writes the snapshot. persistMu must be held:
// keeping the capture and the store write under the same lock that Stop
// takes for its delete means a throttled flush caught in flight cannot
// write back a snapshot the user just stopped.
func (c *Controller) flushLocked() error {
	c.mu.RLock()
	if c.active == nil || c.current == nil {
		c.mu.RUnlock()
		return nil
	}
	snap := Snapshot{
		PlaylistID:      c.active.ID,
		TrackID:         c.current.ID,
		TrackIndex:      c.currentIndex,
		PositionSeconds: c.position,
		IsPlaying:       c.isPlaying,
		ShuffleMode:     c.shuffle,
		RepeatMode:      c.repeat.String(),
		QueueTrackIDs:   queueIDsLocked(c.queueTracks),
		Timestamp:       time.Now().UnixMilli(),
	}
	c.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session snapshot")
	}
	if err := c.sessions.Set(snapshotKey, string(data)); err != nil {
		return errors.Wrap(err, "failed to write session snapshot")
	}
	return nil
}

func queueIDsLocked(tracks []track.Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

// Restore rebuilds the session from the persisted snapshot. It runs at
// most once per controller; later calls are no-ops. The restored session
// always comes up paused, and any failure along the way clears the
// snapshot and leaves the session empty rather than half-restored.
func (c *Controller) Restore(ctx context.Context) {
	c.restoreOnce.Do(func() {
		if err := c.restore(ctx); err != nil {
			zlog.Warn().Msgf("session restore failed, starting empty: %v", err)
			c.discardSnapshot()
		}
	})
}

func (c *Controller) restore(ctx context.Context) error {
	raw, ok, err := c.sessions.Get(snapshotKey)
	if err != nil {
		return errors.Wrap(err, "failed to read session snapshot")
	}
	if !ok {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return errors.Wrap(err, "failed to decode session snapshot")
	}

	age := time.Since(time.UnixMilli(snap.Timestamp))
	if age > c.config.SnapshotTTL {
		zlog.Info().Msgf("session snapshot is stale (age=%s), discarding", age.Round(time.Second))
		c.discardSnapshot()
		return nil
	}

	// Single-track sessions are ephemeral and not restored.
	if playlist.IsSyntheticID(snap.PlaylistID) {
		c.discardSnapshot()
		return nil
	}

	pl, err := c.fetcher.GetPlaylistWithTracks(ctx, snap.PlaylistID)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch playlist %s", snap.PlaylistID)
	}
	if pl == nil || len(pl.Tracks) == 0 {
		zlog.Info().Msgf("snapshot playlist %s no longer available, discarding", snap.PlaylistID)
		c.discardSnapshot()
		return nil
	}

	srcIdx := pl.IndexOf(snap.TrackID)
	if srcIdx < 0 {
		zlog.Info().Msgf("snapshot track %s no longer in playlist %s, discarding",
			snap.TrackID, snap.PlaylistID)
		c.discardSnapshot()
		return nil
	}

	// A fresh shuffle order is built on restore; the exact old order is
	// not reproducible and only the anchored track matters.
	q, idx, err := queue.Build(pl.Tracks, srcIdx, snap.ShuffleMode)
	if err != nil {
		return err
	}

	rep := playback.ParseRepeatMode(snap.RepeatMode)

	t := q[idx]
	if !t.HasAudio() {
		return errors.Wrapf(track.ErrNoAudioLocator, "track %s", t.ID)
	}
	url, err := c.resolver.ResolveAudioURL(ctx, t.AudioLocator)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve audio for track %s", t.ID)
	}
	if err := c.transport.Load(ctx, url); err != nil {
		return errors.Wrapf(err, "failed to load track %s", t.ID)
	}
	if snap.PositionSeconds > 0 {
		c.transport.Seek(snap.PositionSeconds)
	}

	c.mu.Lock()
	c.nextLoadSeqLocked()
	c.active = pl
	c.queueTracks = q
	c.currentIndex = idx
	c.current = &t
	c.shuffle = snap.ShuffleMode
	c.repeat = rep
	c.position = snap.PositionSeconds
	// Never resume audio on the user's behalf after a restart.
	c.isPlaying = false
	if t.Duration > 0 {
		c.progress = snap.PositionSeconds / t.Duration.Seconds() * 100
	}
	c.mu.Unlock()

	zlog.Info().Msgf("session restored: playlist=%s track=%s position=%.1fs",
		pl.ID, t.ID, snap.PositionSeconds)
	c.notifyChange(ChangeQueue)
	return nil
}

func (c *Controller) discardSnapshot() {
	if err := c.sessions.Delete(snapshotKey); err != nil {
		zlog.Warn().Msgf("failed to delete session snapshot: %v", err)
	}
}
