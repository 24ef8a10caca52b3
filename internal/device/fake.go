package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/types"
)

// FakeAcquirer is an in-memory Acquirer with scriptable outcomes. It backs
// the "sim" capture backend and deterministic tests: permission denial,
// missing devices, audio-only streams for video requests, and gated
// acquisition for exercising cancellation.
type FakeAcquirer struct {
	mu           sync.Mutex
	failWith     error
	omitVideo    bool
	dims         *[2]int // nil: derive from constraints; {0,0}: unknown
	samples      map[TrackKind][]byte
	gate         chan struct{}
	devices      []types.DeviceInfo
	acquired     []*Stream
	acquireCalls int
}

// NewFakeAcquirer returns a fake that grants every request with one track per
// requested kind.
func NewFakeAcquirer() *FakeAcquirer {
	return &FakeAcquirer{samples: make(map[TrackKind][]byte)}
}

// FailWith makes subsequent Acquire calls return err. Pass nil to clear.
func (f *FakeAcquirer) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

// OmitVideoTrack makes video requests succeed with an audio-only stream,
// simulating a device layer that grants the request without a usable camera.
func (f *FakeAcquirer) OmitVideoTrack(omit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitVideo = omit
}

// SetDimensions fixes the video track's reported resolution. Zero for both
// simulates a track with unavailable native dimensions.
func (f *FakeAcquirer) SetDimensions(width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dims = &[2]int{width, height}
}

// SetSampleData scripts the bytes served by tracks of the given kind.
// Unscripted tracks serve an endless deterministic byte pattern.
func (f *FakeAcquirer) SetSampleData(kind TrackKind, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[kind] = data
}

// SetDevices replaces the device list returned by Devices.
func (f *FakeAcquirer) SetDevices(devices []types.DeviceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

// GateAcquire blocks the next Acquire calls until the returned release func
// runs, so tests can cancel a session while acquisition is in flight.
func (f *FakeAcquirer) GateAcquire() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gate = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// AcquireCalls reports how many times Acquire ran.
func (f *FakeAcquirer) AcquireCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquireCalls
}

// AcquiredStreams returns every stream handed out, in order.
func (f *FakeAcquirer) AcquiredStreams() []*Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Stream(nil), f.acquired...)
}

// TrackCount reports the total number of tracks handed out.
func (f *FakeAcquirer) TrackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.acquired {
		n += len(s.Tracks())
	}
	return n
}

// OpenTrackCount reports how many handed-out tracks are not yet stopped.
// A clean teardown leaves this at zero.
func (f *FakeAcquirer) OpenTrackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.acquired {
		for _, t := range s.Tracks() {
			if !t.Stopped() {
				n++
			}
		}
	}
	return n
}

// Acquire implements Acquirer.
func (f *FakeAcquirer) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	f.mu.Lock()
	f.acquireCalls++
	gate := f.gate
	failWith := f.failWith
	omitVideo := f.omitVideo
	dims := f.dims
	audioData := f.samples[TrackAudio]
	videoData := f.samples[TrackVideo]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failWith != nil {
		return nil, failWith
	}
	if !c.Audio && !c.Video {
		return nil, errors.New("constraints request no tracks")
	}

	var tracks []Track
	if c.Audio {
		tracks = append(tracks, newFakeTrack(TrackAudio, "Simulated Microphone", audioData, 0, 0))
	}
	if c.Video && !omitVideo {
		width, height := c.Resolution.Target()
		if dims != nil {
			width, height = dims[0], dims[1]
		}
		tracks = append(tracks, newFakeTrack(TrackVideo, "Simulated Camera", videoData, width, height))
	}

	stream := NewStream(nextStreamID("sim"), tracks...)
	f.mu.Lock()
	f.acquired = append(f.acquired, stream)
	f.mu.Unlock()
	return stream, nil
}

// Devices implements Acquirer.
func (f *FakeAcquirer) Devices(_ context.Context) ([]types.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devices != nil {
		return append([]types.DeviceInfo(nil), f.devices...), nil
	}
	return []types.DeviceInfo{
		{ID: "sim-mic", Name: "Simulated Microphone", Kind: string(TrackAudio)},
		{ID: "sim-cam", Name: "Simulated Camera", Kind: string(TrackVideo)},
	}, nil
}

// FakeTrack is the track implementation handed out by FakeAcquirer.
type FakeTrack struct {
	id     string
	label  string
	kind   TrackKind
	width  int
	height int
	data   []byte

	mu        sync.Mutex
	reader    io.Reader
	stopped   bool
	stopCalls int
}

func newFakeTrack(kind TrackKind, label string, data []byte, width, height int) *FakeTrack {
	return &FakeTrack{
		id:     nextStreamID("track"),
		label:  label,
		kind:   kind,
		width:  width,
		height: height,
		data:   data,
	}
}

// ID implements Track.
func (t *FakeTrack) ID() string { return t.id }

// Kind implements Track.
func (t *FakeTrack) Kind() TrackKind { return t.kind }

// Label implements Track.
func (t *FakeTrack) Label() string { return t.label }

// Dimensions implements Track.
func (t *FakeTrack) Dimensions() (int, int, bool) {
	if t.kind != TrackVideo || t.width <= 0 || t.height <= 0 {
		return 0, 0, false
	}
	return t.width, t.height, true
}

// Reader implements Track. Scripted data is served once; unscripted tracks
// serve an endless deterministic pattern so frame reads never starve.
func (t *FakeTrack) Reader() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reader == nil {
		if t.data != nil {
			t.reader = bytes.NewReader(t.data)
		} else {
			t.reader = &patternReader{}
		}
	}
	return t.reader
}

// Stop implements Track. Repeat calls are counted but have no further effect.
func (t *FakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopCalls++
	t.stopped = true
}

// Stopped implements Track.
func (t *FakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// StopCalls reports how many times Stop ran, including idempotent repeats.
func (t *FakeTrack) StopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCalls
}

// patternReader yields an endless incrementing byte sequence.
type patternReader struct {
	next byte
}

func (r *patternReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}
