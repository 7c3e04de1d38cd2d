package playback

import "context"

// EventType represents a transport event type.
type EventType int

const (
	EventEnded          EventType = iota // Track finished playing
	EventTimeUpdate                      // Playback position advanced
	EventError                           // Transport error during playback
	EventMetadataLoaded                  // Track metadata became available
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEnded:
		return "ended"
	case EventTimeUpdate:
		return "timeupdate"
	case EventError:
		return "error"
	case EventMetadataLoaded:
		return "metadata_loaded"
	default:
		return "unknown"
	}
}

// Event represents an event emitted by the audio transport.
type Event struct {
	Type     EventType
	Position float64 // Current position in seconds
	Duration float64 // Track duration in seconds (when known)
	Err      error   // Set for EventError
}

// Transport is the audio-output primitive. Exactly one instance exists per
// process, owned exclusively by the session controller; no other component
// may drive it directly.
type Transport interface {
	// Load prepares the audio at the given playable URL. It replaces any
	// previously loaded track.
	Load(ctx context.Context, url string) error

	// Play starts or resumes playback of the loaded track.
	Play() error

	// Pause pauses playback, keeping the current position.
	Pause()

	// Seek moves the playback position to the given offset in seconds.
	Seek(seconds float64)

	// SetVolume sets the output volume in the range [0.0, 1.0].
	SetVolume(v float64)

	// CurrentTime returns the current playback position in seconds.
	CurrentTime() float64

	// Duration returns the loaded track's duration in seconds, or 0 if
	// unknown.
	Duration() float64

	// Events returns the transport event channel.
	Events() <-chan Event

	// Close releases transport resources.
	Close()
}
