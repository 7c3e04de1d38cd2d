// Package session provides the playback session controller, the single
// facade through which the UI drives playback.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mixgrove/player/internal/app/playback"
	"github.com/mixgrove/player/internal/app/queue"
	"github.com/mixgrove/player/internal/app/tracking"
	"github.com/mixgrove/player/internal/domain/playlist"
	"github.com/mixgrove/player/internal/domain/track"
	"github.com/mixgrove/player/internal/infra/store"
)

// Errors
var (
	ErrNoTrack       = errors.New("no track active")
	ErrEmptyPlaylist = errors.New("playlist is empty")
)

// AudioResolver resolves a raw audio locator into a playable URL.
type AudioResolver interface {
	ResolveAudioURL(ctx context.Context, locator string) (string, error)
}

// PlaylistFetcher retrieves a playlist with its tracks. A missing playlist
// is reported as (nil, nil). Used only during session restore.
type PlaylistFetcher interface {
	GetPlaylistWithTracks(ctx context.Context, id string) (*playlist.Playlist, error)
}

// Config holds session controller configuration.
type Config struct {
	NavDebounce       time.Duration // Window in which repeated next/previous calls are dropped
	HeartbeatInterval time.Duration // Play-tracking heartbeat interval
	SnapshotTTL       time.Duration // Snapshot staleness threshold
	PersistThrottle   time.Duration // Minimum spacing between snapshot writes
	DefaultVolume     int           // Volume used when no setting is stored
	UserID            string        // User reported to the play tracker
}

// Deps holds the controller's collaborators. The transport is owned
// exclusively by the controller once passed in.
type Deps struct {
	Transport playback.Transport
	Resolver  AudioResolver
	Fetcher   PlaylistFetcher
	Tracker   tracking.Reporter
	Sessions  store.SessionStore
	Settings  store.Settings
}

// Status is a point-in-time view of the session for UI consumers.
type Status struct {
	Track        *track.Track
	TrackIndex   int
	QueueSize    int
	PlaylistID   string
	PlaylistName string
	IsPlaying    bool
	Shuffle      bool
	Repeat       playback.RepeatMode
	Progress     float64 // 0-100
	Position     float64 // seconds
	Volume       int     // 0-100
}

// Controller owns the playback session: the active playlist, the derived
// queue, transport state, play tracking, and snapshot persistence. Exactly
// one instance exists per running client.
type Controller struct {
	mu sync.RWMutex

	config    Config
	transport playback.Transport
	resolver  AudioResolver
	fetcher   PlaylistFetcher
	tracker   tracking.Reporter
	heartbeat *tracking.Heartbeat
	sessions  store.SessionStore
	settings  store.Settings
	notifier  *Notifier

	// Session state
	active       *playlist.Playlist
	current      *track.Track
	currentIndex int
	queueTracks  []track.Track
	isPlaying    bool
	shuffle      bool
	repeat       playback.RepeatMode
	progress     float64 // derived 0-100, never persisted
	position     float64 // seconds, kept for the snapshot
	volume       int

	// loadSeq tags each load operation; a load commits its result only if
	// its tag is still the latest, so a stale in-flight load can never
	// overwrite the state of a newer one.
	loadSeq uint64

	// navUntil implements the next/previous debounce window.
	navUntil time.Time

	persistMu    sync.Mutex
	persistTimer *time.Timer

	restoreOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates the session controller and starts its transport
// event loop. The stored volume setting is applied immediately.
func NewController(cfg Config, deps Deps) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		config:    cfg,
		transport: deps.Transport,
		resolver:  deps.Resolver,
		fetcher:   deps.Fetcher,
		tracker:   deps.Tracker,
		heartbeat: tracking.NewHeartbeat(deps.Tracker, cfg.HeartbeatInterval, cfg.UserID),
		sessions:  deps.Sessions,
		settings:  deps.Settings,
		notifier:  NewNotifier(),
		volume:    cfg.DefaultVolume,
		ctx:       ctx,
		cancel:    cancel,
	}

	if v, ok, err := deps.Settings.GetInt(settingVolumeKey); err != nil {
		zlog.Warn().Msgf("failed to read stored volume: %v", err)
	} else if ok {
		c.volume = lo.Clamp(v, 0, 100)
	}
	c.transport.SetVolume(float64(c.volume) / 100)

	go c.eventLoop()

	return c
}

// Notifier returns the change notifier for UI subscriptions.
func (c *Controller) Notifier() *Notifier {
	return c.notifier
}

// notifyChange broadcasts the current session status to all subscribers.
func (c *Controller) notifyChange(t ChangeType) {
	c.mu.RLock()
	status := c.statusLocked()
	c.mu.RUnlock()

	c.notifier.Broadcast(&Notification{Type: t, Status: status})
}

// PlayPlaylist replaces the session with the given playlist and starts
// playback at startIndex. An out-of-range index is tolerated and reset to
// 0 with a warning.
func (c *Controller) PlayPlaylist(ctx context.Context, pl *playlist.Playlist, startIndex int) error {
	if pl == nil || len(pl.Tracks) == 0 {
		return ErrEmptyPlaylist
	}
	if startIndex < 0 || startIndex >= len(pl.Tracks) {
		zlog.Warn().Msgf("start index %d out of range for playlist %s (%d tracks), using 0",
			startIndex, pl.ID, len(pl.Tracks))
		startIndex = 0
	}

	c.mu.Lock()
	// The replaced track's tracking needs a stop only if it was playing.
	prevID := ""
	if c.current != nil && c.isPlaying {
		prevID = c.current.ID
	}

	q, idx, err := queue.Build(pl.Tracks, startIndex, c.shuffle)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	seq := c.nextLoadSeqLocked()
	c.active = pl
	c.queueTracks = q
	c.currentIndex = idx
	t := q[idx]
	c.current = &t
	c.isPlaying = false
	c.progress = 0
	c.position = 0
	c.mu.Unlock()

	c.notifyChange(ChangeQueue)
	return c.startTrack(ctx, t, prevID, seq)
}

// PlayTrack plays a single arbitrary track by wrapping it in a synthetic
// playlist, sharing the playlist code path.
func (c *Controller) PlayTrack(ctx context.Context, t track.Track) error {
	return c.PlayPlaylist(ctx, playlist.Synthetic(t), 0)
}

// Next advances to the next track. At the end of the queue it wraps when
// repeat is set to playlist, and otherwise pauses in place so the session
// stays visible. Calls arriving inside the debounce window are dropped.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	if !c.beginNavigationLocked() {
		c.mu.Unlock()
		zlog.Debug().Msg("next dropped: navigation in flight")
		return nil
	}
	prevID := ""
	if c.isPlaying {
		prevID = c.current.ID
	}
	c.mu.Unlock()

	return c.advance(ctx, prevID)
}

// Previous moves to the previous track, or restarts the current track when
// already at the beginning of the queue. Calls arriving inside the
// debounce window are dropped.
func (c *Controller) Previous(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	if !c.beginNavigationLocked() {
		c.mu.Unlock()
		zlog.Debug().Msg("previous dropped: navigation in flight")
		return nil
	}

	idx, ok := queue.PrevIndex(c.currentIndex)
	if !ok {
		// No wraparound: restart the current track instead.
		c.position = 0
		c.progress = 0
		c.mu.Unlock()
		c.transport.Seek(0)
		c.markDirty()
		return nil
	}

	prevID := ""
	if c.isPlaying {
		prevID = c.current.ID
	}
	seq := c.nextLoadSeqLocked()
	c.currentIndex = idx
	t := c.queueTracks[idx]
	c.current = &t
	c.isPlaying = false
	c.progress = 0
	c.position = 0
	c.mu.Unlock()

	c.notifyChange(ChangeTrack)
	return c.startTrack(ctx, t, prevID, seq)
}

// Pause pauses playback and the play-tracking heartbeat.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	if !c.isPlaying {
		c.mu.Unlock()
		return nil
	}
	c.isPlaying = false
	curID := c.current.ID
	c.mu.Unlock()

	c.transport.Pause()
	c.heartbeat.Stop()
	c.tracker.OnPlayStop(curID)
	c.markDirty()
	c.notifyChange(ChangeState)
	return nil
}

// Resume resumes playback and the play-tracking heartbeat.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	if c.isPlaying {
		c.mu.Unlock()
		return nil
	}
	curID := c.current.ID
	c.mu.Unlock()

	if err := c.transport.Play(); err != nil {
		zlog.Error().Msgf("failed to resume playback: %v", err)
		return errors.Wrap(err, "failed to resume playback")
	}

	c.mu.Lock()
	c.isPlaying = true
	c.mu.Unlock()

	c.tracker.OnPlayStart(curID)
	c.heartbeat.Start(curID)
	c.markDirty()
	c.notifyChange(ChangeState)
	return nil
}

// Seek moves the playback position; the queue position is unaffected.
func (c *Controller) Seek(seconds float64) {
	c.transport.Seek(seconds)

	c.mu.Lock()
	c.position = seconds
	c.mu.Unlock()
	c.markDirty()
}

// ToggleShuffle flips shuffle mode. With a track active the queue is
// rebuilt immediately, anchored on the playing track, without reloading or
// restarting playback.
func (c *Controller) ToggleShuffle() {
	c.mu.Lock()
	c.shuffle = !c.shuffle

	if c.current != nil && c.active != nil {
		srcIdx := c.active.IndexOf(c.current.ID)
		if srcIdx < 0 {
			srcIdx = 0
		}

		if c.shuffle {
			if q, idx, err := queue.Build(c.active.Tracks, srcIdx, true); err == nil {
				c.queueTracks = q
				c.currentIndex = idx
			}
		} else {
			q := make([]track.Track, len(c.active.Tracks))
			copy(q, c.active.Tracks)
			c.queueTracks = q
			c.currentIndex = srcIdx
		}
	}
	enabled := c.shuffle
	c.mu.Unlock()

	zlog.Info().Msgf("shuffle mode: enabled=%t", enabled)
	c.markDirty()
	c.notifyChange(ChangeMode)
}

// CycleRepeat cycles repeat mode: off -> playlist -> track -> off.
func (c *Controller) CycleRepeat() playback.RepeatMode {
	c.mu.Lock()
	c.repeat = c.repeat.Cycle()
	mode := c.repeat
	c.mu.Unlock()

	zlog.Info().Msgf("repeat mode: %s", mode)
	c.markDirty()
	c.notifyChange(ChangeMode)
	return mode
}

// UpdatePlaylist applies an edited version of the active playlist. The
// current track keeps playing at its new index; if it was removed from the
// playlist the session is stopped.
func (c *Controller) UpdatePlaylist(pl *playlist.Playlist) error {
	c.mu.Lock()
	if pl == nil || c.active == nil || pl.ID != c.active.ID {
		c.mu.Unlock()
		return nil
	}

	curID := ""
	if c.current != nil {
		curID = c.current.ID
	}
	found := pl.IndexOf(curID)
	if curID == "" || found < 0 {
		c.mu.Unlock()
		zlog.Info().Msgf("current track removed from playlist %s, stopping", pl.ID)
		return c.Stop()
	}

	c.active = pl
	if c.shuffle {
		if q, idx, err := queue.Build(pl.Tracks, found, true); err == nil {
			c.queueTracks = q
			c.currentIndex = idx
		}
	} else {
		q := make([]track.Track, len(pl.Tracks))
		copy(q, pl.Tracks)
		c.queueTracks = q
		c.currentIndex = found
	}
	c.mu.Unlock()

	c.markDirty()
	c.notifyChange(ChangeQueue)
	return nil
}

// SetVolume clamps the volume to [0,100], applies it to the transport and
// persists it independently of the session snapshot.
func (c *Controller) SetVolume(v int) {
	v = lo.Clamp(v, 0, 100)

	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()

	c.transport.SetVolume(float64(v) / 100)

	if err := c.settings.SetInt(settingVolumeKey, v); err != nil {
		// Persistence failures never interrupt playback.
		zlog.Warn().Msgf("failed to persist volume: %v", err)
	}
	c.notifyChange(ChangeVolume)
}

// Stop pauses the transport, clears the whole session and deletes the
// persisted snapshot. The volume setting is kept.
func (c *Controller) Stop() error {
	c.mu.Lock()
	curID := ""
	if c.current != nil && c.isPlaying {
		curID = c.current.ID
	}
	// Invalidate any in-flight load so it cannot resurrect the session.
	c.nextLoadSeqLocked()
	c.active = nil
	c.current = nil
	c.queueTracks = nil
	c.currentIndex = 0
	c.isPlaying = false
	c.progress = 0
	c.position = 0
	c.mu.Unlock()

	c.transport.Pause()
	c.heartbeat.Stop()
	if curID != "" {
		c.tracker.OnPlayStop(curID)
	}

	// The delete shares persistMu with the flush path, so a throttled
	// write already in flight completes before the snapshot is removed
	// and can never run after it.
	c.persistMu.Lock()
	if c.persistTimer != nil {
		c.persistTimer.Stop()
		c.persistTimer = nil
	}
	if err := c.sessions.Delete(snapshotKey); err != nil {
		zlog.Warn().Msgf("failed to delete session snapshot: %v", err)
	}
	c.persistMu.Unlock()

	c.notifyChange(ChangeQueue)
	return nil
}

// Close flushes the snapshot unconditionally and releases all resources.
// The final flush must not rely on the throttled path: the process may be
// terminating.
func (c *Controller) Close() {
	c.stopPersistTimer()
	if err := c.Flush(); err != nil {
		zlog.Warn().Msgf("failed to flush session snapshot: %v", err)
	}
	c.cancel()
	c.heartbeat.Stop()
	c.transport.Close()
	c.notifier.Close()
}

// --- Getters ---

// CurrentTrack returns the currently active track.
func (c *Controller) CurrentTrack() (track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return track.Track{}, false
	}
	return *c.current, true
}

// ActivePlaylist returns the active playlist, or nil.
func (c *Controller) ActivePlaylist() *playlist.Playlist {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Queue returns a copy of the playback queue in effect.
func (c *Controller) Queue() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q := make([]track.Track, len(c.queueTracks))
	copy(q, c.queueTracks)
	return q
}

// CurrentIndex returns the position of the current track in the queue.
func (c *Controller) CurrentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentIndex
}

// IsPlaying returns the transport flag.
func (c *Controller) IsPlaying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isPlaying
}

// State returns the coarse playback state.
func (c *Controller) State() playback.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.current == nil:
		return playback.StateIdle
	case c.isPlaying:
		return playback.StatePlaying
	default:
		return playback.StatePaused
	}
}

// ShuffleEnabled returns the shuffle flag.
func (c *Controller) ShuffleEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shuffle
}

// Repeat returns the repeat mode.
func (c *Controller) Repeat() playback.RepeatMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repeat
}

// Progress returns the elapsed percentage of the current track.
func (c *Controller) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// Volume returns the volume in [0,100].
func (c *Controller) Volume() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.volume
}

// Status returns a consistent snapshot of the whole session.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

// statusLocked builds a Status. Must be called with the lock held.
func (c *Controller) statusLocked() Status {
	s := Status{
		TrackIndex: c.currentIndex,
		QueueSize:  len(c.queueTracks),
		IsPlaying:  c.isPlaying,
		Shuffle:    c.shuffle,
		Repeat:     c.repeat,
		Progress:   c.progress,
		Position:   c.position,
		Volume:     c.volume,
	}
	if c.current != nil {
		t := *c.current
		s.Track = &t
	}
	if c.active != nil {
		s.PlaylistID = c.active.ID
		s.PlaylistName = c.active.Name
	}
	return s
}

// --- Internal transitions ---

// beginNavigationLocked implements the debounce window: the first call in
// the window claims it, later calls are dropped. Must be called with the
// lock held.
func (c *Controller) beginNavigationLocked() bool {
	now := time.Now()
	if now.Before(c.navUntil) {
		return false
	}
	c.navUntil = now.Add(c.config.NavDebounce)
	return true
}

// nextLoadSeqLocked issues a fresh load sequence number. Must be called
// with the lock held.
func (c *Controller) nextLoadSeqLocked() uint64 {
	c.loadSeq++
	return c.loadSeq
}

// advance moves to the next queue position. prevID is the track being
// replaced; pass "" when its tracking has already been stopped.
func (c *Controller) advance(ctx context.Context, prevID string) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil
	}

	idx, ok := queue.NextIndex(len(c.queueTracks), c.currentIndex, c.repeat)
	if !ok {
		// End of the queue without playlist repeat: pause in place so the
		// session (and the mini-player) stays intact.
		c.isPlaying = false
		c.mu.Unlock()

		c.transport.Pause()
		c.heartbeat.Stop()
		if prevID != "" {
			c.tracker.OnPlayStop(prevID)
		}
		c.markDirty()
		c.notifyChange(ChangeState)
		return nil
	}

	seq := c.nextLoadSeqLocked()
	c.currentIndex = idx
	t := c.queueTracks[idx]
	c.current = &t
	c.isPlaying = false
	c.progress = 0
	c.position = 0
	c.mu.Unlock()

	c.notifyChange(ChangeTrack)
	return c.startTrack(ctx, t, prevID, seq)
}

// startTrack resolves, loads and plays t. prevID is the track being
// replaced ("" when none, or when its tracking is already stopped). seq is
// the load sequence issued for this operation; results are committed only
// while it is still the latest.
func (c *Controller) startTrack(ctx context.Context, t track.Track, prevID string, seq uint64) error {
	if prevID != "" {
		c.heartbeat.Stop()
		c.tracker.OnPlayStop(prevID)
	}

	if !t.HasAudio() {
		zlog.Error().Msgf("track %s has no audio locator", t.ID)
		return errors.Wrapf(track.ErrNoAudioLocator, "track %s", t.ID)
	}

	url, err := c.resolver.ResolveAudioURL(ctx, t.AudioLocator)
	if err != nil {
		c.failLoad(seq, err)
		return errors.Wrapf(err, "failed to resolve audio for track %s", t.ID)
	}

	// A newer load may have been issued while resolving; don't touch the
	// transport on behalf of a stale operation.
	if !c.isLatestLoad(seq) {
		zlog.Debug().Msgf("load superseded before transport load: track=%s", t.ID)
		return nil
	}

	if err := c.transport.Load(ctx, url); err != nil {
		c.failLoad(seq, err)
		return errors.Wrapf(err, "failed to load track %s", t.ID)
	}
	if err := c.transport.Play(); err != nil {
		c.failLoad(seq, err)
		return errors.Wrapf(err, "failed to play track %s", t.ID)
	}

	c.mu.Lock()
	if c.loadSeq != seq {
		c.mu.Unlock()
		zlog.Debug().Msgf("load superseded after start: track=%s", t.ID)
		return nil
	}
	c.isPlaying = true
	c.mu.Unlock()

	c.tracker.OnPlayStart(t.ID)
	c.heartbeat.Start(t.ID)
	c.markDirty()
	c.notifyChange(ChangeState)

	zlog.Info().Msgf("playing track: id=%s title=%s", t.ID, t.Title)
	return nil
}

// failLoad records a load failure: playback degrades to paused, no retry.
func (c *Controller) failLoad(seq uint64, err error) {
	zlog.Error().Msgf("load failed: %v", err)

	c.mu.Lock()
	if c.loadSeq == seq {
		c.isPlaying = false
	}
	c.mu.Unlock()
	c.notifyChange(ChangeState)
}

func (c *Controller) isLatestLoad(seq uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadSeq == seq
}

// --- Transport event handling ---

// eventLoop consumes transport events until the controller is closed.
func (c *Controller) eventLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session event loop panicked: %v", r)
			go c.eventLoop()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.transport.Events():
			if !ok {
				return
			}
			c.handleTransportEvent(ev)
		}
	}
}

func (c *Controller) handleTransportEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventTimeUpdate:
		c.mu.Lock()
		c.position = ev.Position
		if ev.Duration > 0 {
			c.progress = ev.Position / ev.Duration * 100
		}
		c.mu.Unlock()
		c.markDirty()

	case playback.EventMetadataLoaded:
		c.mu.Lock()
		if c.current != nil && ev.Duration > 0 {
			c.current.Duration = time.Duration(ev.Duration * float64(time.Second))
		}
		c.mu.Unlock()

	case playback.EventError:
		zlog.Error().Msgf("transport error: %v", ev.Err)
		c.mu.Lock()
		curID := ""
		if c.current != nil && c.isPlaying {
			curID = c.current.ID
		}
		c.isPlaying = false
		c.mu.Unlock()

		c.heartbeat.Stop()
		if curID != "" {
			c.tracker.OnPlayStop(curID)
		}
		c.notifyChange(ChangeState)

	case playback.EventEnded:
		c.onTrackEnded()
	}
}

// onTrackEnded reacts to the transport finishing a track. With repeat set
// to track the same track replays; otherwise the session advances with the
// usual end-of-queue handling.
func (c *Controller) onTrackEnded() {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	endedID := c.current.ID
	rep := c.repeat
	c.mu.Unlock()

	c.heartbeat.Stop()
	c.tracker.OnPlayStop(endedID)

	if rep == playback.RepeatTrack {
		c.replayCurrent(endedID)
		return
	}

	if err := c.advance(c.ctx, ""); err != nil {
		zlog.Error().Msgf("failed to advance after track end: %v", err)
	}
}

// replayCurrent restarts the track that just ended without advancing the
// queue. Transports that tear down their stream on end are reloaded.
func (c *Controller) replayCurrent(trackID string) {
	c.transport.Seek(0)
	if err := c.transport.Play(); err == nil {
		c.mu.Lock()
		c.isPlaying = true
		c.progress = 0
		c.position = 0
		c.mu.Unlock()

		c.tracker.OnPlayStart(trackID)
		c.heartbeat.Start(trackID)
		c.markDirty()
		return
	}

	c.mu.Lock()
	if c.current == nil || c.current.ID != trackID {
		c.mu.Unlock()
		return
	}
	t := *c.current
	seq := c.nextLoadSeqLocked()
	c.isPlaying = false
	c.progress = 0
	c.position = 0
	c.mu.Unlock()

	if err := c.startTrack(c.ctx, t, "", seq); err != nil {
		zlog.Error().Msgf("failed to replay track %s: %v", trackID, err)
	}
}
