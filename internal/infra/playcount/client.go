// Package playcount reports plays to the community platform's play-count
// API. It implements the tracking.Reporter contract: whether a play counts
// is decided here, not in the player core.
package playcount

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// DefaultMinListen is the continuous listen time after which a play counts.
const DefaultMinListen = 30 * time.Second

// playSession tracks one continuous playback of a track.
type playSession struct {
	trackID   string
	startedAt time.Time
	recorded  bool
}

// Client posts play counts to the platform API. A play is recorded at most
// once per continuous playback; pausing or changing tracks resets the
// accumulated listen time.
type Client struct {
	baseURL    string
	apiToken   string
	minListen  time.Duration
	httpClient *http.Client

	mu      sync.Mutex
	session *playSession
}

// Config represents play-count client configuration.
type Config struct {
	BaseURL   string
	APIToken  string
	MinListen time.Duration
}

// recordPlayRequest is the request body for POST /api/plays.
type recordPlayRequest struct {
	TrackID  string `json:"trackId"`
	UserID   string `json:"userId"`
	PlayedAt int64  `json:"playedAt"` // unix milliseconds
}

// apiError represents an error response from the platform API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New creates a new play-count client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("play-count API base URL is required")
	}
	minListen := cfg.MinListen
	if minListen <= 0 {
		minListen = DefaultMinListen
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		minListen:  minListen,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// OnPlayStart opens a play session for the track. A previous session for
// another track is discarded.
func (c *Client) OnPlayStart(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &playSession{
		trackID:   trackID,
		startedAt: time.Now(),
	}
}

// OnPlayStop closes the play session. Listen time does not accumulate
// across a pause.
func (c *Client) OnPlayStop(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.trackID == trackID {
		c.session = nil
	}
}

// CheckAndRecordPlay records the play once the session has accumulated the
// minimum listen time. Failures are logged and dropped; the heartbeat will
// not call again for an already-recorded session.
func (c *Client) CheckAndRecordPlay(ctx context.Context, trackID, userID string) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.trackID != trackID || s.recorded {
		c.mu.Unlock()
		return
	}
	if time.Since(s.startedAt) < c.minListen {
		c.mu.Unlock()
		return
	}
	s.recorded = true
	c.mu.Unlock()

	if err := c.recordPlay(ctx, trackID, userID); err != nil {
		zlog.Warn().Msgf("failed to record play for track %s: %v", trackID, err)
	}
}

// recordPlay posts one play count to the platform.
func (c *Client) recordPlay(ctx context.Context, trackID, userID string) error {
	body, err := json.Marshal(recordPlayRequest{
		TrackID:  trackID,
		UserID:   userID,
		PlayedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/plays", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
			return errors.Errorf("play-count API error %d: %s", apiErr.Code, apiErr.Message)
		}
		return errors.Errorf("play-count API returned status %d", resp.StatusCode)
	}

	zlog.Debug().Msgf("recorded play: track_id=%s user_id=%s", trackID, userID)
	return nil
}
