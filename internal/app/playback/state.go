// Package playback defines playback state and the audio transport contract.
package playback

// State represents the transport playback state.
type State int

const (
	StateIdle    State = iota // No track loaded
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode represents the queue repeat behavior.
type RepeatMode int

const (
	RepeatOff      RepeatMode = iota // Stop advancing at the end of the queue
	RepeatPlaylist                   // Wrap to the first track at the end
	RepeatTrack                      // Replay the current track on end
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatPlaylist:
		return "playlist"
	case RepeatTrack:
		return "track"
	default:
		return "unknown"
	}
}

// Cycle returns the next repeat mode in the off -> playlist -> track cycle.
func (m RepeatMode) Cycle() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatPlaylist
	case RepeatPlaylist:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// ParseRepeatMode converts a string to a RepeatMode.
func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "playlist":
		return RepeatPlaylist
	case "track":
		return RepeatTrack
	default:
		return RepeatOff
	}
}
