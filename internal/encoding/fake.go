package encoding

import (
	"context"
	"fmt"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/device"
)

// FakeFactory builds FakeEncoders and can be scripted to fail construction,
// either only when an explicit format is requested (exercising the
// default-options fallback) or unconditionally.
type FakeFactory struct {
	mu                 sync.Mutex
	failExplicitFormat bool
	failAlways         bool
	attempts           []Options
	last               *FakeEncoder
}

// NewFakeFactory returns a factory whose encoders must be driven by Emit.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{}
}

// FailExplicitFormat makes construction fail whenever options carry a format,
// so only the default-options fallback succeeds.
func (f *FakeFactory) FailExplicitFormat(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failExplicitFormat = fail
}

// FailAlways makes every construction attempt fail.
func (f *FakeFactory) FailAlways(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAlways = fail
}

// Attempts returns the options of every construction attempt, in order.
func (f *FakeFactory) Attempts() []Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Options(nil), f.attempts...)
}

// Last returns the most recently constructed encoder, nil if none.
func (f *FakeFactory) Last() *FakeEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// New implements Factory.
func (f *FakeFactory) New(stream *device.Stream, opts Options) (Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, opts)

	if f.failAlways || (f.failExplicitFormat && opts.Format != nil) {
		return nil, fmt.Errorf("scripted failure: %w", ErrConstruction)
	}

	mime := "audio/webm"
	if len(stream.VideoTracks()) > 0 {
		mime = "video/webm"
	}
	if opts.Format != nil {
		mime = opts.Format.Container()
	}
	e := &FakeEncoder{
		mime:   mime,
		chunks: make(chan Chunk, 64),
	}
	f.last = e
	return e, nil
}

// FakeEncoder emits chunks on demand via Emit and ends on Stop, Close, or a
// scripted failure.
type FakeEncoder struct {
	mime string

	mu         sync.Mutex
	chunks     chan Chunk
	started    bool
	ended      bool
	err        error
	finalFlush []byte
}

// SetFinalFlush scripts one last chunk delivered during Stop, mimicking an
// encoder whose final data event fires on flush.
func (e *FakeEncoder) SetFinalFlush(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalFlush = append([]byte(nil), data...)
}

// Emit delivers one data event. Empty and post-stop emissions are dropped.
func (e *FakeEncoder) Emit(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended || !e.started || len(data) == 0 {
		return
	}
	e.chunks <- Chunk{Data: append([]byte(nil), data...), MimeType: e.mime}
}

// FailNow simulates the encoder dying mid-recording: the chunk channel closes
// without a stop request and Err reports the cause.
func (e *FakeEncoder) FailNow(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return
	}
	e.err = err
	e.ended = true
	close(e.chunks)
}

// Start implements Encoder.
func (e *FakeEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return fmt.Errorf("encoder already ended: %w", ErrConstruction)
	}
	e.started = true
	return nil
}

// Chunks implements Encoder.
func (e *FakeEncoder) Chunks() <-chan Chunk {
	return e.chunks
}

// Stop implements Encoder.
func (e *FakeEncoder) Stop(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return nil
	}
	if len(e.finalFlush) > 0 {
		e.chunks <- Chunk{Data: e.finalFlush, MimeType: e.mime}
		e.finalFlush = nil
	}
	e.ended = true
	close(e.chunks)
	return nil
}

// Close implements Encoder.
func (e *FakeEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return
	}
	e.ended = true
	close(e.chunks)
}

// Err implements Encoder.
func (e *FakeEncoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// EffectiveMimeType implements Encoder.
func (e *FakeEncoder) EffectiveMimeType() string { return e.mime }

// Ended reports whether the encoder has stopped delivering chunks.
func (e *FakeEncoder) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}
