// Package capture drives one acquire, preview, capture or record, finalize,
// release lifecycle per session. The session is the exclusive owner of its
// device stream and encoder; every exit path releases them before a terminal
// state is reported.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murmurhq/murmur-capture/internal/artifact"
	"github.com/murmurhq/murmur-capture/internal/device"
	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// Operation errors. Invalid-state rejections keep the session untouched.
var (
	// ErrInvalidState rejects an operation the current state does not allow.
	ErrInvalidState = errors.New("operation not valid for session state")

	// ErrCancelled reports that a cancel or reset interrupted the operation.
	ErrCancelled = errors.New("session cancelled")

	// ErrNoSession reports that the manager holds no active session.
	ErrNoSession = errors.New("no active session")
)

// Options configure one capture session.
type Options struct {
	Modality   types.Modality
	Resolution types.ResolutionHint

	// Candidates overrides the built-in format priority list. Nil uses the
	// modality defaults; irrelevant for photo sessions.
	Candidates []encoding.Format

	// PhotoQuality is the JPEG quality for photo captures, defaulting to 90.
	PhotoQuality int

	// Clock defaults to time.Now.
	Clock Clock

	// Preview defaults to the headless no-op surface.
	Preview Preview
}

// Session is the state machine owning one capture lifecycle. All operations
// are safe for concurrent use; operations invalid for the current state are
// rejected rather than queued.
type Session struct {
	id       string
	modality types.Modality
	opts     Options

	acquirer device.Acquirer
	factory  encoding.Factory
	prober   encoding.Prober
	preview  Preview
	clock    Clock

	mu            sync.RWMutex
	state         types.SessionState
	generation    int
	stream        *device.Stream
	encoder       encoding.Encoder
	negotiated    *encoding.Format
	chunks        *artifact.Accumulator
	elapsed       elapsedTracker
	lastErr       *types.ErrorInfo
	artifact      *artifact.Artifact
	collectDone   chan struct{}
	stopRequested bool
}

// NewSession creates an idle session for the given modality.
func NewSession(acquirer device.Acquirer, factory encoding.Factory, prober encoding.Prober, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	preview := opts.Preview
	if preview == nil {
		preview = NopPreview()
	}
	if opts.PhotoQuality <= 0 || opts.PhotoQuality > 100 {
		opts.PhotoQuality = 90
	}
	return &Session{
		id:       uuid.NewString(),
		modality: opts.Modality,
		opts:     opts,
		acquirer: acquirer,
		factory:  factory,
		prober:   prober,
		preview:  preview,
		clock:    clock,
		state:    types.StateIdle,
		chunks:   artifact.NewAccumulator(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Modality returns the session's capture modality.
func (s *Session) Modality() types.Modality { return s.modality }

// State returns the current session state.
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Elapsed returns the whole seconds recorded so far. The value freezes when
// recording ends and zeroes only on reset.
func (s *Session) Elapsed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed.Seconds(s.clock())
}

// LastError returns the classified error of a failed session, nil otherwise.
func (s *Session) LastError() *types.ErrorInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Artifact returns the artifact produced by a completed session.
func (s *Session) Artifact() *artifact.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifact
}

// Status summarizes the session for the control surface.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.SessionStatus{
		ID:             s.id,
		Modality:       s.modality,
		State:          s.state,
		ElapsedSeconds: s.elapsed.Seconds(s.clock()),
		ChunkCount:     s.chunks.Count(),
		BufferedBytes:  s.chunks.BufferedBytes(),
		LastError:      s.lastErr,
	}
	switch {
	case s.negotiated != nil:
		st.Format = s.negotiated.MimeType
	case s.encoder != nil:
		st.Format = s.encoder.EffectiveMimeType()
	}
	if s.artifact != nil {
		st.Artifact = s.artifact.Info("")
	}
	return st
}

// Start acquires the device stream and brings the session live. Only an idle
// session may start; a session already requesting or holding a stream never
// acquires a second one.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != types.StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session is %s: %w", state, ErrInvalidState)
	}
	s.setStateLocked(types.StateRequesting)
	gen := s.generation
	s.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, types.AcquireTimeout)
	defer cancel()
	stream, err := s.acquirer.Acquire(acquireCtx, device.ConstraintsFor(s.modality, s.opts.Resolution))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state != types.StateRequesting {
		// Cancelled while the acquisition was in flight. A late stream is
		// released immediately, never bound.
		if stream != nil {
			stream.StopTracks()
		}
		return ErrCancelled
	}
	if err != nil {
		s.failLocked(util.WrapError("acquire device stream", err))
		return err
	}

	s.stream = stream
	if s.modality.NeedsVideo() && len(stream.VideoTracks()) == 0 {
		// Granted at the device layer but unusable: stop the stream's tracks
		// before the error is reported.
		err := device.ErrNoVideoTrack
		s.failLocked(err)
		return err
	}
	if err := s.preview.Attach(stream); err != nil {
		err = util.WrapError("bind preview surface", err)
		s.failLocked(err)
		return err
	}

	s.setStateLocked(types.StateLive)
	slog.Info("session live", "session", s.id, "modality", s.modality, "stream", stream.ID(), "tracks", len(stream.Tracks()))
	return nil
}

// CapturePhoto grabs the current frame of a live photo session, producing a
// JPEG artifact. The device stream is released immediately after the grab
// succeeds.
func (s *Session) CapturePhoto(ctx context.Context) (*artifact.Artifact, error) {
	s.mu.Lock()
	if s.modality != types.ModalityPhoto {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s session cannot capture a photo: %w", s.modality, ErrInvalidState)
	}
	if s.state != types.StateLive {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("session is %s: %w", state, ErrInvalidState)
	}
	stream := s.stream
	gen := s.generation
	s.mu.Unlock()

	readyCtx, cancel := context.WithTimeout(ctx, types.ReadyTimeout)
	defer cancel()
	if err := s.preview.Ready(readyCtx); err != nil {
		err = util.WrapError("wait for preview", err)
		s.failAfter(gen, err)
		return nil, err
	}

	frame, err := grabFrame(stream, s.opts.PhotoQuality)
	if err != nil {
		s.failAfter(gen, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state != types.StateLive {
		return nil, ErrCancelled
	}
	art := artifact.NewPhoto(frame, s.clock())
	s.artifact = art
	s.releaseLocked()
	s.setStateLocked(types.StateCompleted)
	slog.Info("photo captured", "session", s.id, "artifact", art.SuggestedName, "bytes", len(art.Bytes))
	return art, nil
}

// StartRecording negotiates a format, constructs the encoder, and begins
// accumulating chunks. An unsupported explicit format never kills the
// session: construction is retried once with default options before the
// failure is surfaced.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if !s.modality.Recordable() {
		s.mu.Unlock()
		return fmt.Errorf("%s session cannot record: %w", s.modality, ErrInvalidState)
	}
	if s.state != types.StateLive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session is %s: %w", state, ErrInvalidState)
	}
	stream := s.stream
	gen := s.generation
	s.mu.Unlock()

	candidates := s.opts.Candidates
	if candidates == nil {
		candidates = encoding.DefaultCandidates(s.modality)
	}
	negotiated := encoding.Negotiate(s.prober, candidates)
	if negotiated == nil {
		slog.Info("no candidate format supported, using encoder defaults", "session", s.id)
	}

	enc, err := s.factory.New(stream, encoding.Options{Format: negotiated})
	if err != nil && negotiated != nil {
		slog.Warn("encoder rejected negotiated format, retrying with defaults",
			"session", s.id, "format", negotiated.MimeType, "error", err)
		negotiated = nil
		enc, err = s.factory.New(stream, encoding.Options{})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state != types.StateLive {
		if enc != nil {
			enc.Close()
		}
		if s.generation != gen {
			return ErrCancelled
		}
		return fmt.Errorf("session is %s: %w", s.state, ErrInvalidState)
	}
	if err != nil {
		s.failLocked(err)
		return err
	}
	if err := enc.Start(); err != nil {
		enc.Close()
		s.failLocked(err)
		return err
	}

	s.encoder = enc
	s.negotiated = negotiated
	s.stopRequested = false
	s.chunks.Reset()
	s.collectDone = make(chan struct{})
	s.elapsed.Start(s.clock())
	s.setStateLocked(types.StateRecording)

	go s.collect(enc, s.chunks, gen, s.collectDone)

	slog.Info("recording started", "session", s.id, "format", enc.EffectiveMimeType())
	return nil
}

// collect drains the encoder's chunks in arrival order into the accumulator
// it was spawned with. When the channel closes without a stop request, the
// encoder died and the session fails.
func (s *Session) collect(enc encoding.Encoder, acc *artifact.Accumulator, gen int, done chan struct{}) {
	defer close(done)
	for c := range enc.Chunks() {
		acc.Append(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.stopRequested || s.state != types.StateRecording {
		return
	}
	err := enc.Err()
	if err == nil {
		err = errors.New("encoder ended unexpectedly")
	}
	s.failLocked(err)
}

// StopRecording flushes the encoder, assembles the accumulated chunks into
// one artifact, and releases all resources. Calling it on a session that is
// not recording is a no-op: no error, no state change, no double release.
func (s *Session) StopRecording(ctx context.Context) (*artifact.Artifact, error) {
	s.mu.Lock()
	if s.state != types.StateRecording {
		s.mu.Unlock()
		return nil, nil
	}
	s.setStateLocked(types.StateFinalizing)
	s.stopRequested = true
	s.elapsed.Freeze(s.clock())
	enc := s.encoder
	done := s.collectDone
	gen := s.generation
	s.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, types.FlushTimeout)
	defer cancel()
	stopErr := enc.Stop(flushCtx)

	select {
	case <-done:
	case <-flushCtx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state != types.StateFinalizing {
		return nil, ErrCancelled
	}
	if stopErr != nil {
		stopErr = util.WrapError("finalize recording", stopErr)
		s.failLocked(stopErr)
		return nil, stopErr
	}

	art := s.chunks.Assemble(s.modality, s.negotiated, s.clock())
	s.artifact = art
	s.chunks.Reset()
	s.releaseLocked()
	s.setStateLocked(types.StateCompleted)
	slog.Info("recording completed", "session", s.id,
		"artifact", art.SuggestedName, "mime", art.MimeType, "bytes", len(art.Bytes))
	return art, nil
}

// Cancel aborts the session from any state and returns it to idle, releasing
// everything it holds. Cancelling during an in-flight acquisition is safe:
// the late stream is released the moment it resolves.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Reset returns a terminal session to idle, clearing chunks, the last error,
// and the elapsed counter. It is the only way to reuse the session object.
// Resetting twice is the same as resetting once.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.state == types.StateIdle {
		return
	}
	s.generation++
	s.releaseLocked()
	// A collector still draining a closed encoder appends to the orphaned
	// accumulator, never the reused session.
	s.chunks = artifact.NewAccumulator()
	s.elapsed.Reset()
	s.lastErr = nil
	s.artifact = nil
	s.negotiated = nil
	s.stopRequested = false
	s.setStateLocked(types.StateIdle)
}

// releaseLocked is the single teardown path: it stops every device track
// (idempotent per track), closes the encoder handle, freezes the elapsed
// counter, and detaches the preview. No code path reports Failed or
// Completed without it having run. Caller holds s.mu.
func (s *Session) releaseLocked() {
	if s.encoder != nil {
		s.encoder.Close()
		s.encoder = nil
	}
	if s.stream != nil {
		s.stream.StopTracks()
		s.stream = nil
	}
	s.elapsed.Freeze(s.clock())
	s.preview.Detach()
}

// failLocked releases resources and records the classified error. Teardown
// always precedes the Failed report. Caller holds s.mu.
func (s *Session) failLocked(err error) {
	s.releaseLocked()
	kind := classify(err)
	s.lastErr = &types.ErrorInfo{Kind: kind, Message: kind.Message(), Detail: err.Error()}
	s.setStateLocked(types.StateFailed)
	slog.Error("session failed", "session", s.id, "modality", s.modality, "kind", kind, "error", err)
}

// failAfter fails the session for an error discovered outside the lock,
// unless a cancel or reset got there first.
func (s *Session) failAfter(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state.IsTerminal() || s.state == types.StateIdle {
		return
	}
	s.failLocked(err)
}

func (s *Session) setStateLocked(to types.SessionState) {
	if s.state == to {
		return
	}
	if !types.CanTransition(s.state, to) {
		slog.Warn("irregular session transition", "session", s.id, "from", s.state, "to", to)
	}
	slog.Debug("session state", "session", s.id, "from", s.state, "to", to)
	s.state = to
}

// classify maps an operation error to its user-visible kind: encoder
// construction first, then the acquisition taxonomy, else unknown.
func classify(err error) types.ErrorKind {
	if errors.Is(err, encoding.ErrConstruction) {
		return types.ErrorEncoderConstruction
	}
	return device.Classify(err)
}
