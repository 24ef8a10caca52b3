package encoding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/device"
	"github.com/murmurhq/murmur-capture/internal/types"
	"github.com/murmurhq/murmur-capture/internal/util"
)

const (
	// maxStderrSize bounds captured encode process stderr.
	maxStderrSize = 64 * 1024

	// chunkReadSize is the stdout read granularity; each full or partial
	// read becomes one chunk.
	chunkReadSize = 64 * 1024
)

// FFmpegFactory constructs process-backed encoders that read one raw track
// and write the negotiated container to stdout.
type FFmpegFactory struct{}

// NewFFmpegFactory returns the exec-backed encoder factory.
func NewFFmpegFactory() *FFmpegFactory {
	return &FFmpegFactory{}
}

// New implements Factory. Missing host tooling reports as unsupported, not
// as a construction failure, so the session classifies it correctly.
func (f *FFmpegFactory) New(stream *device.Stream, opts Options) (Encoder, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not installed: %w", device.ErrAPIUnsupported)
	}

	hasVideo := len(stream.VideoTracks()) > 0
	preset, err := presetFor(opts.Format, hasVideo)
	if err != nil {
		return nil, err
	}

	// One raw input per process. Video recordings encode the camera track;
	// TODO: mux the microphone track in via a second pipe (ExtraFiles).
	var track device.Track
	width, height := 0, 0
	if preset.VideoArgs != nil {
		tracks := stream.VideoTracks()
		if len(tracks) == 0 {
			return nil, fmt.Errorf("no video track to encode: %w", ErrConstruction)
		}
		track = tracks[0]
		var ok bool
		if width, height, ok = track.Dimensions(); !ok {
			return nil, fmt.Errorf("video track reports no dimensions: %w", ErrConstruction)
		}
	} else {
		tracks := stream.AudioTracks()
		if len(tracks) == 0 {
			return nil, fmt.Errorf("no audio track to encode: %w", ErrConstruction)
		}
		track = tracks[0]
	}

	return newExecEncoder(preset, track, width, height)
}

// execEncoder runs one ffmpeg process: track reader pumped into stdin,
// container chunks read from stdout. Closing stdin triggers the final flush.
type execEncoder struct {
	preset EncoderPreset
	track  device.Track

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *util.BoundedBuffer

	chunks   chan Chunk
	readDone chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	err     error

	closeOnce sync.Once
}

func newExecEncoder(preset EncoderPreset, track device.Track, width, height int) (*execEncoder, error) {
	ctx, cancel := context.WithCancel(context.Background())
	args := buildEncodeArgs(preset, width, height)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Cancel = func() error { return util.GracefulSignal(cmd.Process) }
	cmd.WaitDelay = types.ShutdownTimeout

	stderr := util.NewBoundedBuffer(maxStderrSize)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	return &execEncoder{
		preset:   preset,
		track:    track,
		cmd:      cmd,
		cancel:   cancel,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		chunks:   make(chan Chunk, 16),
		readDone: make(chan struct{}),
	}, nil
}

// Start implements Encoder.
func (e *execEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if err := e.cmd.Start(); err != nil {
		e.cancel()
		return fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	e.started = true
	slog.Debug("encode process started", "muxer", e.preset.Muxer, "pid", e.cmd.Process.Pid)

	go e.pumpInput()
	go e.readOutput()
	return nil
}

// pumpInput copies raw track samples into the encoder until the track ends
// or stdin closes. Closing stdin is how Stop requests the final flush, so
// write errors after a stop are expected.
func (e *execEncoder) pumpInput() {
	_, err := io.Copy(e.stdin, e.track.Reader())
	if err != nil && !e.wasStopped() {
		slog.Debug("encoder input ended", "error", err)
	}
	// Track drained on its own (device stopped): flush what we have.
	_ = e.stdin.Close()
}

// readOutput turns stdout into chunks and settles the process exit. The
// chunk channel closes only after the final flush has been delivered.
func (e *execEncoder) readOutput() {
	defer close(e.readDone)
	defer close(e.chunks)

	buf := make([]byte, chunkReadSize)
	for {
		n, err := e.stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			e.chunks <- Chunk{Data: data, MimeType: e.preset.Mime}
		}
		if err != nil {
			break
		}
	}

	waitErr := e.cmd.Wait()
	if waitErr != nil && !e.wasStopped() {
		line := device.LastOutputLine(e.stderr.String())
		if line == "" {
			line = waitErr.Error()
		}
		e.setErr(fmt.Errorf("encode process exited: %s", line))
	}
}

// Stop implements Encoder. Closing stdin makes ffmpeg flush its container
// and exit; the read loop then delivers the final chunks and closes the
// channel.
func (e *execEncoder) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	stdin := e.stdin
	e.mu.Unlock()

	util.SafeClose(stdin, "encoder stdin")

	select {
	case <-e.readDone:
	case <-ctx.Done():
		e.cancel()
		<-e.readDone
		return util.WrapError("flush encoder", ctx.Err())
	}
	return e.Err()
}

// Close implements Encoder. Kills the process without flushing.
func (e *execEncoder) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		started := e.started
		e.mu.Unlock()
		e.cancel()
		if started {
			<-e.readDone
		}
	})
}

// Chunks implements Encoder.
func (e *execEncoder) Chunks() <-chan Chunk { return e.chunks }

// Err implements Encoder.
func (e *execEncoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// EffectiveMimeType implements Encoder.
func (e *execEncoder) EffectiveMimeType() string { return e.preset.Mime }

func (e *execEncoder) wasStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *execEncoder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}
