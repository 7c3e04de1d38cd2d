package playcount

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndRecordPlay(t *testing.T) {
	var calls atomic.Int32

	// Mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/plays", r.URL.Path)
		assert.Equal(t, "Bearer test_token", r.Header.Get("Authorization"))

		var req recordPlayRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "track1", req.TrackID)
		assert.Equal(t, "user1", req.UserID)

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := New(Config{
		BaseURL:   server.URL,
		APIToken:  "test_token",
		MinListen: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	client.OnPlayStart("track1")

	// Below the listen threshold nothing is recorded.
	client.CheckAndRecordPlay(ctx, "track1", "user1")
	assert.Equal(t, int32(0), calls.Load())

	time.Sleep(20 * time.Millisecond)

	client.CheckAndRecordPlay(ctx, "track1", "user1")
	assert.Equal(t, int32(1), calls.Load())

	// Already recorded for this session, later heartbeats are no-ops.
	client.CheckAndRecordPlay(ctx, "track1", "user1")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheckAndRecordPlayAfterStop(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, MinListen: time.Millisecond})
	require.NoError(t, err)

	ctx := context.Background()
	client.OnPlayStart("track1")
	client.OnPlayStop("track1")

	time.Sleep(5 * time.Millisecond)

	// No open session, nothing to record.
	client.CheckAndRecordPlay(ctx, "track1", "user1")
	assert.Equal(t, int32(0), calls.Load())
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
