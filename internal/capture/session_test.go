package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurhq/murmur-capture/internal/device"
	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/types"
)

// fakeClock is a deterministic clock advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testRig bundles a session with scriptable collaborators.
type testRig struct {
	acquirer *device.FakeAcquirer
	factory  *encoding.FakeFactory
	preview  *FakePreview
	clock    *fakeClock
	session  *Session
}

func newTestRig(modality types.Modality, mutate ...func(*Options)) *testRig {
	prober := encoding.NewStaticProber("audio/webm;codecs=opus", "video/webm;codecs=vp8")
	return newTestRigWithProber(modality, prober, mutate...)
}

func newTestRigWithProber(modality types.Modality, prober encoding.Prober, mutate ...func(*Options)) *testRig {
	rig := &testRig{
		acquirer: device.NewFakeAcquirer(),
		factory:  encoding.NewFakeFactory(),
		preview:  NewFakePreview(),
		clock:    newFakeClock(),
	}
	opts := Options{Modality: modality, Clock: rig.clock.Now, Preview: rig.preview}
	for _, m := range mutate {
		m(&opts)
	}
	rig.session = NewSession(rig.acquirer, rig.factory, prober, opts)
	return rig
}

func TestSessionStartBringsStreamLive(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)

	require.NoError(t, rig.session.Start(context.Background()))

	assert.Equal(t, types.StateLive, rig.session.State())
	assert.Equal(t, 1, rig.acquirer.AcquireCalls())
	assert.True(t, rig.preview.Attached())

	st := rig.session.Status()
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, types.ModalityAudio, st.Modality)
	assert.Equal(t, types.StateLive, st.State)
	assert.Nil(t, st.LastError)
}

func TestSessionStartRejectedWhileActive(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))

	err := rig.session.Start(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, rig.acquirer.AcquireCalls())
	assert.Equal(t, types.StateLive, rig.session.State())

	require.NoError(t, rig.session.StartRecording(context.Background()))
	err = rig.session.Start(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, rig.acquirer.AcquireCalls())
}

func TestSessionStartSerializesAcquisition(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	release := rig.acquirer.GateAcquire()

	errCh := make(chan error, 1)
	go func() { errCh <- rig.session.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		return rig.session.State() == types.StateRequesting
	}, time.Second, 5*time.Millisecond)

	// A second start while the acquisition is in flight is rejected without
	// touching the acquirer.
	err := rig.session.Start(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)

	release()
	require.NoError(t, <-errCh)
	assert.Equal(t, types.StateLive, rig.session.State())
	assert.Equal(t, 1, rig.acquirer.AcquireCalls())
}

func TestSessionStartFailureClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind types.ErrorKind
	}{
		{"permission denied", device.ErrPermissionDenied, types.ErrorPermissionDenied},
		{"device not found", device.ErrDeviceNotFound, types.ErrorDeviceNotFound},
		{"device busy", fmt.Errorf("arecord: %w", device.ErrDeviceBusy), types.ErrorDeviceBusy},
		{"api unsupported", device.ErrAPIUnsupported, types.ErrorAPIUnsupported},
		{"unknown", errors.New("cable on fire"), types.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(types.ModalityAudio)
			rig.acquirer.FailWith(tt.err)

			err := rig.session.Start(context.Background())
			require.Error(t, err)
			assert.Equal(t, types.StateFailed, rig.session.State())

			info := rig.session.LastError()
			require.NotNil(t, info)
			assert.Equal(t, tt.kind, info.Kind)
			assert.Equal(t, tt.kind.Message(), info.Message)
			assert.NotEmpty(t, info.Detail)
		})
	}
}

func TestSessionCancelDuringAcquisition(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	release := rig.acquirer.GateAcquire()

	errCh := make(chan error, 1)
	go func() { errCh <- rig.session.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		return rig.session.State() == types.StateRequesting
	}, time.Second, 5*time.Millisecond)

	rig.session.Cancel()
	assert.Equal(t, types.StateIdle, rig.session.State())

	// The stream resolves after the cancel; it must be released, not bound.
	release()
	require.ErrorIs(t, <-errCh, ErrCancelled)
	assert.Equal(t, 1, rig.acquirer.AcquireCalls())
	assert.Positive(t, rig.acquirer.TrackCount())
	assert.Zero(t, rig.acquirer.OpenTrackCount())
	assert.Equal(t, types.StateIdle, rig.session.State())
}

func TestSessionVideoWithoutVideoTrackFails(t *testing.T) {
	rig := newTestRig(types.ModalityVideo)
	rig.acquirer.OmitVideoTrack(true)

	err := rig.session.Start(context.Background())
	require.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.Equal(t, types.StateFailed, rig.session.State())

	info := rig.session.LastError()
	require.NotNil(t, info)
	assert.Equal(t, types.ErrorDeviceNotFound, info.Kind)

	// The audio-only stream was granted and must be fully stopped.
	assert.Positive(t, rig.acquirer.TrackCount())
	assert.Zero(t, rig.acquirer.OpenTrackCount())
}

func TestSessionPreviewAttachFailureFails(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)
	rig.acquirer.SetDimensions(32, 24)
	rig.preview.FailAttach(errors.New("surface gone"))

	err := rig.session.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.StateFailed, rig.session.State())
	assert.Equal(t, types.ErrorUnknown, rig.session.LastError().Kind)
	assert.Zero(t, rig.acquirer.OpenTrackCount())
}

func TestSessionCapturePhoto(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)
	rig.acquirer.SetDimensions(32, 24)
	require.NoError(t, rig.session.Start(context.Background()))

	art, err := rig.session.CapturePhoto(context.Background())
	require.NoError(t, err)
	require.NotNil(t, art)

	assert.Equal(t, "image/jpeg", art.MimeType)
	assert.Equal(t, types.ModalityPhoto, art.Modality)
	wantName := fmt.Sprintf("photo-%d.jpg", rig.clock.Now().UnixMilli())
	assert.Equal(t, wantName, art.SuggestedName)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(art.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)

	// The device stream is released the moment the grab succeeds.
	assert.Equal(t, types.StateCompleted, rig.session.State())
	assert.Zero(t, rig.acquirer.OpenTrackCount())
	assert.Positive(t, rig.preview.DetachCalls())
	assert.Same(t, art, rig.session.Artifact())

	st := rig.session.Status()
	require.NotNil(t, st.Artifact)
	assert.Equal(t, art.SuggestedName, st.Artifact.Name)
	assert.Equal(t, int64(len(art.Bytes)), st.Artifact.SizeBytes)
}

func TestSessionCapturePhotoFallbackDimensions(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)
	// A track with unknown native dimensions falls back to 640x480.
	rig.acquirer.SetDimensions(0, 0)
	require.NoError(t, rig.session.Start(context.Background()))

	art, err := rig.session.CapturePhoto(context.Background())
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(art.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestSessionCapturePhotoWrongModality(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))

	art, err := rig.session.CapturePhoto(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Nil(t, art)
	assert.Equal(t, types.StateLive, rig.session.State())
	assert.Equal(t, 1, rig.acquirer.OpenTrackCount())
}

func TestSessionCapturePhotoRequiresLive(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)

	_, err := rig.session.CapturePhoto(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, types.StateIdle, rig.session.State())
}

func TestSessionCapturePhotoPreviewNeverReady(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)
	rig.acquirer.SetDimensions(32, 24)
	require.NoError(t, rig.session.Start(context.Background()))
	rig.preview.NeverReady(true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := rig.session.CapturePhoto(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.StateFailed, rig.session.State())
	assert.Zero(t, rig.acquirer.OpenTrackCount())
}

func TestSessionRecordingNegotiatesFirstSupported(t *testing.T) {
	// Of the three candidates only the second and third are supported; the
	// second must win.
	prober := encoding.NewStaticProber("audio/webm", "audio/mp4")
	candidates := encoding.CandidatesFromMimeTypes([]string{
		"audio/webm;codecs=opus",
		"audio/webm",
		"audio/mp4",
	})
	rig := newTestRigWithProber(types.ModalityAudio, prober, func(o *Options) {
		o.Candidates = candidates
	})
	require.NoError(t, rig.session.Start(context.Background()))

	require.NoError(t, rig.session.StartRecording(context.Background()))
	assert.Equal(t, types.StateRecording, rig.session.State())
	assert.Equal(t, "audio/webm", rig.session.Status().Format)

	attempts := rig.factory.Attempts()
	require.Len(t, attempts, 1)
	require.NotNil(t, attempts[0].Format)
	assert.Equal(t, "audio/webm", attempts[0].Format.MimeType)
}

func TestSessionRecordingDefaultsWhenNoCandidateSupported(t *testing.T) {
	rig := newTestRigWithProber(types.ModalityAudio, encoding.NewStaticProber())
	require.NoError(t, rig.session.Start(context.Background()))

	// No supported candidate is not a failure: the encoder runs with its
	// default configuration.
	require.NoError(t, rig.session.StartRecording(context.Background()))
	assert.Equal(t, types.StateRecording, rig.session.State())

	attempts := rig.factory.Attempts()
	require.Len(t, attempts, 1)
	assert.Nil(t, attempts[0].Format)
	assert.Equal(t, "audio/webm", rig.session.Status().Format)
}

func TestSessionRecordingElapsedSeconds(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))
	assert.Zero(t, rig.session.Elapsed())

	require.NoError(t, rig.session.StartRecording(context.Background()))
	assert.Zero(t, rig.session.Elapsed())

	rig.clock.Advance(3 * time.Second)
	assert.Equal(t, 3, rig.session.Elapsed())

	_, err := rig.session.StopRecording(context.Background())
	require.NoError(t, err)

	// The counter freezes when recording ends and zeroes only on reset.
	rig.clock.Advance(10 * time.Second)
	assert.Equal(t, 3, rig.session.Elapsed())
	assert.Equal(t, 3, rig.session.Status().ElapsedSeconds)

	rig.session.Reset()
	assert.Zero(t, rig.session.Elapsed())
}

func TestSessionAudioRecordingAssemblesChunksInOrder(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))
	require.NoError(t, rig.session.StartRecording(context.Background()))

	enc := rig.factory.Last()
	require.NotNil(t, enc)
	enc.Emit([]byte("first-"))
	enc.Emit([]byte("second"))
	require.Eventually(t, func() bool {
		return rig.session.Status().ChunkCount == 2
	}, time.Second, 5*time.Millisecond)

	art, err := rig.session.StopRecording(context.Background())
	require.NoError(t, err)
	require.NotNil(t, art)

	assert.Equal(t, []byte("first-second"), art.Bytes)
	assert.Equal(t, "audio/webm", art.MimeType)
	assert.Regexp(t, `^audio-\d+\.webm$`, art.SuggestedName)
	assert.Equal(t, types.StateCompleted, rig.session.State())
	assert.Zero(t, rig.acquirer.OpenTrackCount())
	assert.True(t, enc.Ended())
}

func TestSessionVideoRecordingProducesArtifact(t *testing.T) {
	rig := newTestRig(types.ModalityVideo)
	require.NoError(t, rig.session.Start(context.Background()))
	require.NoError(t, rig.session.StartRecording(context.Background()))
	assert.Equal(t, "video/webm;codecs=vp8", rig.session.Status().Format)

	enc := rig.factory.Last()
	enc.Emit([]byte{0x1a, 0x45, 0xdf, 0xa3})

	art, err := rig.session.StopRecording(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "video/webm", art.MimeType)
	assert.Regexp(t, `^video-\d+\.webm$`, art.SuggestedName)
	assert.Zero(t, rig.acquirer.OpenTrackCount())
}

func TestSessionRecordingFinalFlushChunkIncluded(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))
	require.NoError(t, rig.session.StartRecording(context.Background()))

	enc := rig.factory.Last()
	enc.Emit([]byte("live-"))
	enc.SetFinalFlush([]byte("tail"))

	art, err := rig.session.StopRecording(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("live-tail"), art.Bytes)
}

func TestSessionStopRecordingNoOpOutsideRecording(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		rig := newTestRig(types.ModalityAudio)
		art, err := rig.session.StopRecording(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, art)
		assert.Equal(t, types.StateIdle, rig.session.State())
	})

	t.Run("live", func(t *testing.T) {
		rig := newTestRig(types.ModalityAudio)
		require.NoError(t, rig.session.Start(context.Background()))
		art, err := rig.session.StopRecording(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, art)
		// The stream stays live; stop released nothing.
		assert.Equal(t, types.StateLive, rig.session.State())
		assert.Equal(t, 1, rig.acquirer.OpenTrackCount())
	})

	t.Run("failed", func(t *testing.T) {
		rig := newTestRig(types.ModalityAudio)
		rig.acquirer.FailWith(device.ErrDeviceBusy)
		require.Error(t, rig.session.Start(context.Background()))
		art, err := rig.session.StopRecording(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, art)
		assert.Equal(t, types.StateFailed, rig.session.State())
	})

	t.Run("completed", func(t *testing.T) {
		rig := newTestRig(types.ModalityPhoto)
		rig.acquirer.SetDimensions(16, 12)
		require.NoError(t, rig.session.Start(context.Background()))
		_, err := rig.session.CapturePhoto(context.Background())
		require.NoError(t, err)
		art, err := rig.session.StopRecording(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, art)
		assert.Equal(t, types.StateCompleted, rig.session.State())
	})
}

func TestSessionEncoderConstructionRetriesWithDefaults(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	rig.factory.FailExplicitFormat(true)
	require.NoError(t, rig.session.Start(context.Background()))

	require.NoError(t, rig.session.StartRecording(context.Background()))
	assert.Equal(t, types.StateRecording, rig.session.State())

	attempts := rig.factory.Attempts()
	require.Len(t, attempts, 2)
	assert.NotNil(t, attempts[0].Format)
	assert.Nil(t, attempts[1].Format)

	// The negotiated format was dropped; status reports the encoder default.
	assert.Equal(t, "audio/webm", rig.session.Status().Format)
}

func TestSessionEncoderConstructionFailureFailsSession(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	rig.factory.FailAlways(true)
	require.NoError(t, rig.session.Start(context.Background()))

	err := rig.session.StartRecording(context.Background())
	require.ErrorIs(t, err, encoding.ErrConstruction)
	assert.Equal(t, types.StateFailed, rig.session.State())
	assert.Equal(t, types.ErrorEncoderConstruction, rig.session.LastError().Kind)
	assert.Zero(t, rig.acquirer.OpenTrackCount())
}

func TestSessionEncoderDeathFailsRecording(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))
	require.NoError(t, rig.session.StartRecording(context.Background()))

	rig.factory.Last().FailNow(errors.New("pipeline crashed"))

	require.Eventually(t, func() bool {
		return rig.session.State() == types.StateFailed
	}, time.Second, 5*time.Millisecond)
	info := rig.session.LastError()
	require.NotNil(t, info)
	assert.Equal(t, types.ErrorUnknown, info.Kind)
	assert.Contains(t, info.Detail, "pipeline crashed")
	assert.Zero(t, rig.acquirer.OpenTrackCount())
}

func TestSessionEncoderDeathWithoutCause(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))
	require.NoError(t, rig.session.StartRecording(context.Background()))

	rig.factory.Last().FailNow(nil)

	require.Eventually(t, func() bool {
		return rig.session.State() == types.StateFailed
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, rig.session.LastError().Detail, "encoder ended unexpectedly")
}

func TestSessionCancelDuringRecordingReturnsToIdle(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	require.NoError(t, rig.session.Start(context.Background()))
	require.NoError(t, rig.session.StartRecording(context.Background()))

	enc := rig.factory.Last()
	enc.Emit([]byte("partial"))
	rig.clock.Advance(2 * time.Second)

	rig.session.Cancel()

	assert.Equal(t, types.StateIdle, rig.session.State())
	assert.True(t, enc.Ended())
	assert.Zero(t, rig.acquirer.OpenTrackCount())
	assert.Zero(t, rig.session.Elapsed())
	assert.Zero(t, rig.session.Status().ChunkCount)
	assert.Nil(t, rig.session.LastError())
}

func TestSessionStartRecordingWrongModality(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)
	rig.acquirer.SetDimensions(16, 12)
	require.NoError(t, rig.session.Start(context.Background()))

	err := rig.session.StartRecording(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, types.StateLive, rig.session.State())
}

func TestSessionStartRecordingRequiresLive(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)

	err := rig.session.StartRecording(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, types.StateIdle, rig.session.State())
	assert.Empty(t, rig.factory.Attempts())
}

func TestSessionResetIdempotent(t *testing.T) {
	rig := newTestRig(types.ModalityPhoto)
	rig.acquirer.SetDimensions(16, 12)
	require.NoError(t, rig.session.Start(context.Background()))
	_, err := rig.session.CapturePhoto(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.StateCompleted, rig.session.State())

	rig.session.Reset()
	assert.Equal(t, types.StateIdle, rig.session.State())
	assert.Nil(t, rig.session.Artifact())

	rig.session.Reset()
	assert.Equal(t, types.StateIdle, rig.session.State())

	// An idle session is reusable.
	require.NoError(t, rig.session.Start(context.Background()))
	assert.Equal(t, types.StateLive, rig.session.State())
	assert.Equal(t, 2, rig.acquirer.AcquireCalls())
}

func TestSessionResetClearsFailure(t *testing.T) {
	rig := newTestRig(types.ModalityAudio)
	rig.acquirer.FailWith(device.ErrPermissionDenied)
	require.Error(t, rig.session.Start(context.Background()))
	require.Equal(t, types.StateFailed, rig.session.State())

	rig.session.Reset()
	assert.Equal(t, types.StateIdle, rig.session.State())
	assert.Nil(t, rig.session.LastError())
	assert.Zero(t, rig.session.Elapsed())

	rig.acquirer.FailWith(nil)
	require.NoError(t, rig.session.Start(context.Background()))
	assert.Equal(t, types.StateLive, rig.session.State())
}

func TestElapsedTracker(t *testing.T) {
	var tr elapsedTracker
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Zero(t, tr.Seconds(base))

	tr.Start(base)
	assert.Zero(t, tr.Seconds(base))
	assert.Equal(t, 2, tr.Seconds(base.Add(2900*time.Millisecond)))

	tr.Freeze(base.Add(3 * time.Second))
	assert.Equal(t, 3, tr.Seconds(base.Add(time.Hour)))

	// A second freeze is a no-op on an already-frozen tracker.
	tr.Freeze(base.Add(time.Hour))
	assert.Equal(t, 3, tr.Seconds(base.Add(2*time.Hour)))

	tr.Reset()
	assert.Zero(t, tr.Seconds(base.Add(time.Hour)))
}
