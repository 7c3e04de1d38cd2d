// Package tracking provides the play-tracking collaborator contract and the
// periodic heartbeat that drives it.
package tracking

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// Reporter is the external play-tracking collaborator. All calls are
// fire-and-forget; the player core never consumes a result and never retries.
// Whether a play actually counts (dedup, minimum listen time) is the
// reporter's policy, opaque to this core.
type Reporter interface {
	// OnPlayStart signals that the track began playing.
	OnPlayStart(trackID string)

	// OnPlayStop signals that the track stopped playing (pause, track
	// change, or end).
	OnPlayStop(trackID string)

	// CheckAndRecordPlay asks the collaborator to evaluate whether the
	// ongoing play should be counted. Called periodically by the heartbeat.
	CheckAndRecordPlay(ctx context.Context, trackID, userID string)
}

// LogReporter is a Reporter that only logs. Used by the demo binary and as
// a safe default when no tracking backend is configured.
type LogReporter struct{}

func (LogReporter) OnPlayStart(trackID string) {
	zlog.Debug().Msgf("tracking: play start: track_id=%s", trackID)
}

func (LogReporter) OnPlayStop(trackID string) {
	zlog.Debug().Msgf("tracking: play stop: track_id=%s", trackID)
}

func (LogReporter) CheckAndRecordPlay(ctx context.Context, trackID, userID string) {
	zlog.Debug().Msgf("tracking: heartbeat check: track_id=%s user_id=%s", trackID, userID)
}
