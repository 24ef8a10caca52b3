package device

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

const (
	// maxStderrSize bounds captured process stderr.
	maxStderrSize = 4096

	// earlyExitWindow is how long Acquire watches a freshly spawned capture
	// process for an immediate exit (bad device, busy device) before
	// declaring the track live.
	earlyExitWindow = 300 * time.Millisecond
)

// ExecAcquirer captures from real devices through platform capture commands
// (arecord on Linux, ffmpeg elsewhere), one process per track, spawned at
// acquisition so the stream is live when Acquire returns. Missing host
// tooling surfaces as ErrAPIUnsupported on the first Acquire, never at load.
type ExecAcquirer struct {
	audioDevice string
	videoDevice string
}

// NewExecAcquirer returns an acquirer bound to the configured device
// identifiers. Empty identifiers use the platform defaults.
func NewExecAcquirer(audioDevice, videoDevice string) *ExecAcquirer {
	return &ExecAcquirer{audioDevice: audioDevice, videoDevice: videoDevice}
}

// Acquire implements Acquirer.
func (a *ExecAcquirer) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, errors.New("constraints request no tracks")
	}
	spec := platformSpec()
	if err := spec.probe(c); err != nil {
		return nil, err
	}

	var tracks []Track
	fail := func(err error) (*Stream, error) {
		for _, t := range tracks {
			t.Stop()
		}
		return nil, err
	}

	if c.Audio {
		dev := cmp.Or(a.audioDevice, spec.defaultAudioDevice)
		t, err := startExecTrack(ctx, TrackAudio, dev, spec.audioCommand(dev), 0, 0)
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		width, height := c.Resolution.Target()
		dev := cmp.Or(a.videoDevice, spec.defaultVideoDevice)
		t, err := startExecTrack(ctx, TrackVideo, dev, spec.videoCommand(dev, width, height), width, height)
		switch {
		case err == nil:
			tracks = append(tracks, t)
		case c.Audio && errors.Is(err, ErrDeviceNotFound):
			// Camera missing but the microphone delivered. Hand back the
			// audio-only stream; the session's track inspection decides.
			slog.Warn("video capture unavailable, stream degrades to audio only", "device", dev, "error", err)
		default:
			return fail(err)
		}
	}
	return NewStream(nextStreamID("cap"), tracks...), nil
}

// Devices implements Acquirer.
func (a *ExecAcquirer) Devices(ctx context.Context) ([]types.DeviceInfo, error) {
	return platformSpec().listDevices(ctx), nil
}

// execTrack runs one capture process and exposes its stdout as the track
// reader. The process lifetime is owned by the track, not by the acquisition
// context.
type execTrack struct {
	id     string
	label  string
	kind   TrackKind
	width  int
	height int

	cancel  context.CancelFunc
	stdout  io.ReadCloser
	stderr  *util.BoundedBuffer
	waitCh  chan error
	stop    sync.Once
	stopped atomic.Bool
}

func startExecTrack(ctx context.Context, kind TrackKind, label string, argv []string, width, height int) (*execTrack, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s capture: %w", kind, ErrAPIUnsupported)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, argv[0], argv[1:]...)
	cmd.Cancel = func() error { return util.GracefulSignal(cmd.Process) }
	cmd.WaitDelay = types.ShutdownTimeout

	stderr := util.NewBoundedBuffer(maxStderrSize)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("open capture pipe", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", argv[0], ErrAPIUnsupported)
		}
		return nil, util.WrapError("start capture process", err)
	}
	slog.Debug("capture process started", "kind", kind, "command", argv[0], "pid", cmd.Process.Pid)

	t := &execTrack{
		id:     nextStreamID("track"),
		label:  label,
		kind:   kind,
		width:  width,
		height: height,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
		waitCh: make(chan error, 1),
	}
	go func() { t.waitCh <- cmd.Wait() }()

	// Fail fast when the process dies immediately instead of letting the
	// session discover a dead track at first read.
	select {
	case waitErr := <-t.waitCh:
		cancel()
		return nil, ClassifyOutput(fmt.Sprintf("%s capture", kind), stderr.String(), waitErr)
	case <-ctx.Done():
		t.Stop()
		return nil, ctx.Err()
	case <-time.After(earlyExitWindow):
	}
	return t, nil
}

// ID implements Track.
func (t *execTrack) ID() string { return t.id }

// Kind implements Track.
func (t *execTrack) Kind() TrackKind { return t.kind }

// Label implements Track.
func (t *execTrack) Label() string { return t.label }

// Dimensions implements Track.
func (t *execTrack) Dimensions() (int, int, bool) {
	if t.kind != TrackVideo || t.width <= 0 || t.height <= 0 {
		return 0, 0, false
	}
	return t.width, t.height, true
}

// Reader implements Track.
func (t *execTrack) Reader() io.Reader { return t.stdout }

// Stop implements Track. The first call signals the process and waits for it
// to exit; WaitDelay escalates to a kill. Repeat calls are no-ops.
func (t *execTrack) Stop() {
	t.stop.Do(func() {
		t.stopped.Store(true)
		t.cancel()
		select {
		case <-t.waitCh:
		case <-time.After(types.ShutdownTimeout + time.Second):
			slog.Warn("capture process did not exit in time", "kind", t.kind, "label", t.label)
		}
	})
}

// Stopped implements Track.
func (t *execTrack) Stopped() bool { return t.stopped.Load() }
