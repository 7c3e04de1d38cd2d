// Package queue derives the playback order from a source track list.
package queue

import (
	"math/rand"

	"github.com/cockroachdb/errors"

	"github.com/mixgrove/player/internal/app/playback"
	"github.com/mixgrove/player/internal/domain/track"
)

// Errors
var (
	ErrEmptyTracks     = errors.New("track list is empty")
	ErrIndexOutOfRange = errors.New("start index out of range")
)

// Build produces the ordered sequence of tracks to play.
//
// With shuffle off the source order is preserved and the start index passed
// through. With shuffle on, the track at startIndex is anchored at position
// 0 and the remainder is uniformly shuffled; the track the user explicitly
// chose must start playing regardless of shuffle order.
func Build(tracks []track.Track, startIndex int, shuffle bool) ([]track.Track, int, error) {
	if len(tracks) == 0 {
		return nil, 0, ErrEmptyTracks
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return nil, 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", startIndex, len(tracks))
	}

	if !shuffle {
		q := make([]track.Track, len(tracks))
		copy(q, tracks)
		return q, startIndex, nil
	}

	rest := make([]track.Track, 0, len(tracks)-1)
	rest = append(rest, tracks[:startIndex]...)
	rest = append(rest, tracks[startIndex+1:]...)
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	q := make([]track.Track, 0, len(tracks))
	q = append(q, tracks[startIndex])
	q = append(q, rest...)
	return q, 0, nil
}

// NextIndex returns the index of the track that follows currentIndex.
// At the end of the queue it wraps to 0 only when repeat is set to
// playlist; otherwise there is no next track.
func NextIndex(length, currentIndex int, repeat playback.RepeatMode) (int, bool) {
	if length == 0 {
		return 0, false
	}
	if currentIndex+1 < length {
		return currentIndex + 1, true
	}
	if repeat == playback.RepeatPlaylist {
		return 0, true
	}
	return 0, false
}

// PrevIndex returns the index of the track preceding currentIndex.
// There is no wraparound for previous.
func PrevIndex(currentIndex int) (int, bool) {
	if currentIndex <= 0 {
		return 0, false
	}
	return currentIndex - 1, true
}
