// Package playlist provides the Playlist domain entity.
package playlist

import (
	"strings"

	"github.com/google/uuid"

	"github.com/mixgrove/player/internal/domain/track"
)

// syntheticIDPrefix marks playlists fabricated around a single track.
// They exist only in memory and can never be refetched from the catalog.
const syntheticIDPrefix = "single:"

// Playlist represents an ordered collection of tracks.
type Playlist struct {
	ID          string        // Playlist ID
	Name        string        // Playlist name
	Description string        // Playlist description
	Tracks      []track.Track // Tracks in playlist order
}

// Synthetic wraps a single track in a throwaway playlist so that playing an
// arbitrary track shares the playlist code path.
func Synthetic(t track.Track) *Playlist {
	return &Playlist{
		ID:     syntheticIDPrefix + uuid.New().String(),
		Name:   t.Title,
		Tracks: []track.Track{t},
	}
}

// IsSyntheticID reports whether the given playlist ID denotes a synthetic
// single-track playlist.
func IsSyntheticID(id string) bool {
	return strings.HasPrefix(id, syntheticIDPrefix)
}

// IsSynthetic reports whether the playlist is a synthetic single-track one.
func (p *Playlist) IsSynthetic() bool {
	return IsSyntheticID(p.ID)
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// IndexOf returns the position of the track with the given ID, or -1.
func (p *Playlist) IndexOf(trackID string) int {
	for i, t := range p.Tracks {
		if t.ID == trackID {
			return i
		}
	}
	return -1
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.Tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}
