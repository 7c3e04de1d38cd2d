package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgrove/player/internal/app/playback"
	"github.com/mixgrove/player/internal/domain/playlist"
	"github.com/mixgrove/player/internal/infra/store"
)

// newRestoreRig builds a controller over an existing session store, with a
// fetcher that can serve the given playlists.
func newRestoreRig(t *testing.T, sessions store.SessionStore, playlists ...*playlist.Playlist) *testRig {
	t.Helper()

	byID := make(map[string]*playlist.Playlist, len(playlists))
	for _, pl := range playlists {
		byID[pl.ID] = pl
	}

	rig := &testRig{
		transport: newFakeTransport(),
		tracker:   &recordingTracker{},
		settings:  store.NewMemorySettings(),
	}
	rig.ctrl = NewController(Config{
		HeartbeatInterval: 10 * time.Millisecond,
		SnapshotTTL:       time.Hour,
		DefaultVolume:     70,
		UserID:            "user1",
	}, Deps{
		Transport: rig.transport,
		Resolver:  fakeResolver{},
		Fetcher:   fakeFetcher{playlists: byID},
		Tracker:   rig.tracker,
		Sessions:  sessions,
		Settings:  rig.settings,
	})
	t.Cleanup(rig.ctrl.Close)
	return rig
}

func putSnapshot(t *testing.T, sessions store.SessionStore, snap Snapshot) {
	t.Helper()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, sessions.Set("playback_session", string(data)))
}

func TestFlushWritesSnapshot(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	require.NoError(t, rig.ctrl.PlayPlaylist(ctx, testPlaylist("pl1", "a", "b", "c"), 1))
	require.NoError(t, rig.ctrl.Flush())

	raw, ok, err := rig.sessions.Get("playback_session")
	require.NoError(t, err)
	require.True(t, ok)

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	assert.Equal(t, "pl1", snap.PlaylistID)
	assert.Equal(t, "b", snap.TrackID)
	assert.Equal(t, 1, snap.TrackIndex)
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, "off", snap.RepeatMode)
	assert.Equal(t, []string{"a", "b", "c"}, snap.QueueTrackIDs)
	assert.InDelta(t, time.Now().UnixMilli(), snap.Timestamp, float64(5*time.Second/time.Millisecond))
}

func TestFlushWithoutSessionIsNoop(t *testing.T) {
	rig := newTestRig(t, nil)

	require.NoError(t, rig.ctrl.Flush())
	_, ok, err := rig.sessions.Get("playback_session")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore(t *testing.T) {
	sessions := store.NewMemoryStore()
	pl := testPlaylist("pl1", "a", "b", "c")
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:      "pl1",
		TrackID:         "b",
		TrackIndex:      1,
		PositionSeconds: 42.5,
		IsPlaying:       true, // was playing when saved
		RepeatMode:      "playlist",
		QueueTrackIDs:   []string{"a", "b", "c"},
		Timestamp:       time.Now().UnixMilli(),
	})

	rig := newRestoreRig(t, sessions, pl)
	rig.ctrl.Restore(context.Background())

	cur, ok := rig.ctrl.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "b", cur.ID)
	assert.Equal(t, 1, rig.ctrl.CurrentIndex())
	assert.Equal(t, playback.RepeatPlaylist, rig.ctrl.Repeat())
	assert.Equal(t, 42.5, rig.ctrl.Status().Position)

	// Restored sessions never autoplay, whatever the snapshot says.
	assert.False(t, rig.ctrl.IsPlaying())
	assert.Empty(t, rig.tracker.startedTracks())

	// The track was loaded and positioned, ready for Resume.
	assert.Equal(t, []string{"resolved:audio/b"}, rig.transport.loadedURLs())
	assert.Equal(t, []float64{42.5}, rig.transport.seekCalls())
}

func TestRestoreRunsOnce(t *testing.T) {
	sessions := store.NewMemoryStore()
	pl := testPlaylist("pl1", "a", "b")
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:    "pl1",
		TrackID:       "a",
		QueueTrackIDs: []string{"a", "b"},
		Timestamp:     time.Now().UnixMilli(),
	})

	rig := newRestoreRig(t, sessions, pl)
	ctx := context.Background()
	rig.ctrl.Restore(ctx)
	rig.ctrl.Restore(ctx)

	assert.Equal(t, []string{"resolved:audio/a"}, rig.transport.loadedURLs())
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	rig := newRestoreRig(t, store.NewMemoryStore())
	rig.ctrl.Restore(context.Background())

	_, ok := rig.ctrl.CurrentTrack()
	assert.False(t, ok)
}

func TestRestoreDiscardsStaleSnapshot(t *testing.T) {
	sessions := store.NewMemoryStore()
	pl := testPlaylist("pl1", "a")
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:    "pl1",
		TrackID:       "a",
		QueueTrackIDs: []string{"a"},
		Timestamp:     time.Now().Add(-2 * time.Hour).UnixMilli(),
	})

	rig := newRestoreRig(t, sessions, pl)
	rig.ctrl.Restore(context.Background())

	_, ok := rig.ctrl.CurrentTrack()
	assert.False(t, ok)
	assert.Empty(t, rig.transport.loadedURLs())

	_, exists, err := sessions.Get("playback_session")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRestoreDiscardsSyntheticPlaylist(t *testing.T) {
	sessions := store.NewMemoryStore()
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:    "single:3f1e9d2c",
		TrackID:       "a",
		QueueTrackIDs: []string{"a"},
		Timestamp:     time.Now().UnixMilli(),
	})

	rig := newRestoreRig(t, sessions)
	rig.ctrl.Restore(context.Background())

	_, ok := rig.ctrl.CurrentTrack()
	assert.False(t, ok)

	_, exists, _ := sessions.Get("playback_session")
	assert.False(t, exists)
}

func TestRestoreDiscardsMissingPlaylist(t *testing.T) {
	sessions := store.NewMemoryStore()
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:    "deleted",
		TrackID:       "a",
		QueueTrackIDs: []string{"a"},
		Timestamp:     time.Now().UnixMilli(),
	})

	rig := newRestoreRig(t, sessions) // fetcher knows no playlists
	rig.ctrl.Restore(context.Background())

	_, ok := rig.ctrl.CurrentTrack()
	assert.False(t, ok)

	_, exists, _ := sessions.Get("playback_session")
	assert.False(t, exists)
}

func TestRestoreDiscardsRemovedTrack(t *testing.T) {
	sessions := store.NewMemoryStore()
	pl := testPlaylist("pl1", "x", "y")
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:    "pl1",
		TrackID:       "gone",
		QueueTrackIDs: []string{"gone", "x", "y"},
		Timestamp:     time.Now().UnixMilli(),
	})

	rig := newRestoreRig(t, sessions, pl)
	rig.ctrl.Restore(context.Background())

	_, ok := rig.ctrl.CurrentTrack()
	assert.False(t, ok)

	_, exists, _ := sessions.Get("playback_session")
	assert.False(t, exists)
}

func TestRestoreFetchFailureLeavesSessionEmpty(t *testing.T) {
	sessions := store.NewMemoryStore()
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:    "pl1",
		TrackID:       "a",
		QueueTrackIDs: []string{"a"},
		Timestamp:     time.Now().UnixMilli(),
	})

	rig := &testRig{
		transport: newFakeTransport(),
		tracker:   &recordingTracker{},
		settings:  store.NewMemorySettings(),
	}
	rig.ctrl = NewController(Config{
		HeartbeatInterval: 10 * time.Millisecond,
		SnapshotTTL:       time.Hour,
		DefaultVolume:     70,
	}, Deps{
		Transport: rig.transport,
		Resolver:  fakeResolver{},
		Fetcher:   fakeFetcher{err: assert.AnError},
		Tracker:   rig.tracker,
		Sessions:  sessions,
		Settings:  rig.settings,
	})
	t.Cleanup(rig.ctrl.Close)

	rig.ctrl.Restore(context.Background())

	_, ok := rig.ctrl.CurrentTrack()
	assert.False(t, ok)
	assert.False(t, rig.ctrl.IsPlaying())

	// Failed restores clear the snapshot so the next start is clean.
	_, exists, _ := sessions.Get("playback_session")
	assert.False(t, exists)
}

func TestThrottledPersistence(t *testing.T) {
	rig := newTestRig(t, func(c *Config) { c.PersistThrottle = 30 * time.Millisecond })
	ctx := context.Background()

	require.NoError(t, rig.ctrl.PlayPlaylist(ctx, testPlaylist("pl1", "a"), 0))

	// Nothing on disk until the throttle window elapses.
	_, ok, err := rig.sessions.Get("playback_session")
	require.NoError(t, err)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		_, ok, _ := rig.sessions.Get("playback_session")
		return ok
	}, time.Second, 5*time.Millisecond)
}

// gatedStore blocks Set until released, so a test can hold a snapshot
// write in flight.
type gatedStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(key, value string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryStore.Set(key, value)
}

func TestStopWinsOverInFlightFlush(t *testing.T) {
	gated := &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}, 4),
		release:     make(chan struct{}),
	}

	rig := &testRig{
		transport: newFakeTransport(),
		tracker:   &recordingTracker{},
		settings:  store.NewMemorySettings(),
	}
	rig.ctrl = NewController(Config{
		HeartbeatInterval: 10 * time.Millisecond,
		SnapshotTTL:       time.Hour,
		PersistThrottle:   5 * time.Millisecond,
		DefaultVolume:     70,
	}, Deps{
		Transport: rig.transport,
		Resolver:  fakeResolver{},
		Fetcher:   fakeFetcher{},
		Tracker:   rig.tracker,
		Sessions:  gated,
		Settings:  rig.settings,
	})
	t.Cleanup(rig.ctrl.Close)

	require.NoError(t, rig.ctrl.PlayPlaylist(context.Background(), testPlaylist("pl1", "a"), 0))

	// Wait for the throttled flush to reach the store, then stop the
	// session while that write is still in flight.
	select {
	case <-gated.entered:
	case <-time.After(time.Second):
		t.Fatal("throttled flush never reached the store")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gated.release)
	}()
	require.NoError(t, rig.ctrl.Stop())

	// Stop deleted the snapshot; the flush it raced must not bring it
	// back, or a later restart would restore a stopped session.
	_, ok, err := gated.MemoryStore.Get("playback_session")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreWithShuffleAnchorsTrack(t *testing.T) {
	sessions := store.NewMemoryStore()
	pl := testPlaylist("pl1", "a", "b", "c", "d", "e", "f")
	putSnapshot(t, sessions, Snapshot{
		PlaylistID:      "pl1",
		TrackID:         "c",
		TrackIndex:      0,
		PositionSeconds: 12,
		ShuffleMode:     true,
		QueueTrackIDs:   []string{"c", "f", "a", "e", "b", "d"},
		Timestamp:       time.Now().UnixMilli(),
	})

	rig := newRestoreRig(t, sessions, pl)
	rig.ctrl.Restore(context.Background())

	// A fresh shuffle order is built, anchored on the restored track.
	require.True(t, rig.ctrl.ShuffleEnabled())
	cur, ok := rig.ctrl.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "c", cur.ID)
	assert.Equal(t, 0, rig.ctrl.CurrentIndex())

	st := rig.ctrl.Status()
	assert.Equal(t, 6, st.QueueSize)

	rig.ctrl.mu.RLock()
	got := (&playlist.Playlist{Tracks: rig.ctrl.queueTracks}).TrackIDs()
	rig.ctrl.mu.RUnlock()
	assert.Equal(t, "c", got[0])
	assert.ElementsMatch(t, pl.TrackIDs(), got)

	assert.False(t, rig.ctrl.IsPlaying())
	assert.Equal(t, []string{"resolved:audio/c"}, rig.transport.loadedURLs())
}

func TestCloseFlushesSnapshot(t *testing.T) {
	sessions := store.NewMemoryStore()

	rig := &testRig{
		transport: newFakeTransport(),
		tracker:   &recordingTracker{},
		sessions:  sessions,
		settings:  store.NewMemorySettings(),
	}
	rig.ctrl = NewController(Config{
		HeartbeatInterval: 10 * time.Millisecond,
		SnapshotTTL:       time.Hour,
		PersistThrottle:   time.Minute, // would never fire on its own
		DefaultVolume:     70,
	}, Deps{
		Transport: rig.transport,
		Resolver:  fakeResolver{},
		Fetcher:   fakeFetcher{},
		Tracker:   rig.tracker,
		Sessions:  sessions,
		Settings:  rig.settings,
	})

	require.NoError(t, rig.ctrl.PlayPlaylist(context.Background(), testPlaylist("pl1", "a"), 0))
	rig.ctrl.Close()

	_, ok, err := sessions.Get("playback_session")
	require.NoError(t, err)
	assert.True(t, ok)
}
