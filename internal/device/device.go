// Package device acquires and releases media input streams.
//
// A Stream bundles the live Tracks produced by one acquisition request and is
// exclusively owned by the capture session that requested it. Stopping a track
// is idempotent; StopTracks releases every track the stream holds. Acquisition
// failures are classified into the error taxonomy in errors.go.
package device

import (
	"context"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/murmurhq/murmur-capture/internal/types"
)

// TrackKind identifies the media a track carries.
type TrackKind string

const (
	// TrackAudio is a microphone input track.
	TrackAudio TrackKind = "audio"
	// TrackVideo is a camera input track.
	TrackVideo TrackKind = "video"
)

// Track is one live hardware input. Reader delivers raw samples (s16le audio)
// or frames (rgb24 video) until the track is stopped.
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string

	// Dimensions returns the actual video resolution when known.
	// Audio tracks report ok == false.
	Dimensions() (width, height int, ok bool)

	Reader() io.Reader

	// Stop releases the track. Stopping an already-stopped track is a no-op.
	Stop()
	Stopped() bool
}

// Stream is the exclusively owned result of one acquisition.
type Stream struct {
	id     string
	tracks []Track
}

// NewStream bundles tracks under one stream identity.
func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// Tracks returns every track in the stream.
func (s *Stream) Tracks() []Track { return s.tracks }

// AudioTracks returns the stream's audio tracks.
func (s *Stream) AudioTracks() []Track { return s.tracksOf(TrackAudio) }

// VideoTracks returns the stream's video tracks.
func (s *Stream) VideoTracks() []Track { return s.tracksOf(TrackVideo) }

func (s *Stream) tracksOf(kind TrackKind) []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// StopTracks stops every track in the stream. Safe to call repeatedly.
func (s *Stream) StopTracks() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Constraints describe one acquisition request. Resolution bounds the video
// request best-effort; the delivered size is read back from the track.
type Constraints struct {
	Audio      bool
	Video      bool
	Resolution types.ResolutionHint
}

// ConstraintsFor derives the acquisition request for a modality.
func ConstraintsFor(m types.Modality, hint types.ResolutionHint) Constraints {
	return Constraints{
		Audio:      m.NeedsAudio(),
		Video:      m.NeedsVideo(),
		Resolution: hint,
	}
}

// Acquirer requests device streams and lists capture devices.
type Acquirer interface {
	// Acquire opens the tracks the constraints require. The context bounds
	// the acquisition attempt only; returned tracks outlive it.
	Acquire(ctx context.Context, c Constraints) (*Stream, error)

	// Devices lists the capture devices visible to this backend.
	Devices(ctx context.Context) ([]types.DeviceInfo, error)
}

var streamSeq atomic.Int64

func nextStreamID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(streamSeq.Add(1), 10)
}
