// Package track provides the Track domain entity.
package track

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

var ErrNoAudioLocator = errors.New("track has no audio locator")

// Track represents a playable track entity.
// Immutable to the player core except for Duration, which may be filled in
// from transport metadata once the audio is loaded.
type Track struct {
	ID           string        // Track ID
	Title        string        // Track title
	Artists      []string      // Artist names
	Album        string        // Album name
	ArtworkURL   string        // Cover art URL
	AudioLocator string        // Canonical audio URL or storage key
	Duration     time.Duration // Track duration (zero if unknown)
}

// HasAudio returns true if the track carries a usable audio locator.
func (t *Track) HasAudio() bool {
	return t.AudioLocator != ""
}

// rawMetadata mirrors the loosely-typed track records produced by the
// platform backend. Historically the audio locator has been stored under
// several different field names, so all of them are accepted here.
type rawMetadata struct {
	ID         string   `mapstructure:"id"`
	Title      string   `mapstructure:"title"`
	Artists    []string `mapstructure:"artists"`
	Album      string   `mapstructure:"album"`
	ArtworkURL string   `mapstructure:"artwork_url"`
	DurationMs int      `mapstructure:"duration_ms"`

	AudioURL  string `mapstructure:"audio_url"`
	FileURL   string `mapstructure:"file_url"`
	StreamURL string `mapstructure:"stream_url"`
	Locator   string `mapstructure:"locator"`
}

// FromMetadata builds a Track from a loosely-typed metadata record,
// normalizing the ambiguous audio locator field names to the single
// canonical AudioLocator. Normalization happens once here; the rest of the
// core never falls back to alternative field names.
func FromMetadata(m map[string]any) (Track, error) {
	var raw rawMetadata
	if err := mapstructure.Decode(m, &raw); err != nil {
		return Track{}, errors.Wrap(err, "failed to decode track metadata")
	}

	if raw.ID == "" {
		return Track{}, errors.New("track metadata has no id")
	}

	locator := raw.AudioURL
	for _, candidate := range []string{raw.FileURL, raw.StreamURL, raw.Locator} {
		if locator != "" {
			break
		}
		locator = candidate
	}
	if locator == "" {
		return Track{}, errors.Wrapf(ErrNoAudioLocator, "track %s", raw.ID)
	}

	return Track{
		ID:           raw.ID,
		Title:        raw.Title,
		Artists:      raw.Artists,
		Album:        raw.Album,
		ArtworkURL:   raw.ArtworkURL,
		AudioLocator: locator,
		Duration:     time.Duration(raw.DurationMs) * time.Millisecond,
	}, nil
}
