package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/artifact"
	"github.com/murmurhq/murmur-capture/internal/device"
	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/types"
)

// ArtifactSink persists finished artifacts and returns the stored path.
type ArtifactSink interface {
	Save(ctx context.Context, art *artifact.Artifact) (string, error)
}

// EventSink receives lifecycle notifications. Implementations must not block.
type EventSink interface {
	SessionFailed(modality types.Modality, info *types.ErrorInfo)
	ArtifactStored(info *types.ArtifactInfo)
}

// Manager owns at most one capture session at a time and connects finished
// sessions to storage and notifications. Starting a new session tears down
// whatever the previous one still holds.
type Manager struct {
	acquirer device.Acquirer
	factory  encoding.Factory
	prober   encoding.Prober
	sink     ArtifactSink
	events   EventSink

	mu         sync.Mutex
	session    *Session
	storedPath string
}

// NewManager creates a manager around the given capture backend. The sink and
// event sink may be nil, in which case artifacts stay in memory only.
func NewManager(acquirer device.Acquirer, factory encoding.Factory, prober encoding.Prober, sink ArtifactSink, events EventSink) *Manager {
	return &Manager{
		acquirer: acquirer,
		factory:  factory,
		prober:   prober,
		sink:     sink,
		events:   events,
	}
}

// StartSession replaces the active session with a fresh one and acquires its
// device stream. A previous session in any state is cancelled first, so its
// stream is released before the new acquisition begins.
func (m *Manager) StartSession(ctx context.Context, opts Options) (types.SessionStatus, error) {
	if !opts.Modality.IsValid() {
		return types.SessionStatus{}, errors.New("unknown capture modality " + string(opts.Modality))
	}

	m.mu.Lock()
	if m.session != nil {
		slog.Info("replacing active session", "session", m.session.ID(), "state", m.session.State())
		m.session.Cancel()
	}
	sess := NewSession(m.acquirer, m.factory, m.prober, opts)
	m.session = sess
	m.storedPath = ""
	m.mu.Unlock()

	err := sess.Start(ctx)
	m.notifyFailure(sess, err)
	return m.statusOf(sess), err
}

// CapturePhoto grabs a frame from the active photo session and spools the
// resulting artifact.
func (m *Manager) CapturePhoto(ctx context.Context) (types.SessionStatus, error) {
	sess := m.active()
	if sess == nil {
		return types.SessionStatus{}, ErrNoSession
	}
	art, err := sess.CapturePhoto(ctx)
	if err != nil {
		m.notifyFailure(sess, err)
		return m.statusOf(sess), err
	}
	m.persist(ctx, art)
	return m.statusOf(sess), nil
}

// StartRecording begins encoding on the active session.
func (m *Manager) StartRecording(ctx context.Context) (types.SessionStatus, error) {
	sess := m.active()
	if sess == nil {
		return types.SessionStatus{}, ErrNoSession
	}
	err := sess.StartRecording(ctx)
	m.notifyFailure(sess, err)
	return m.statusOf(sess), err
}

// StopRecording finalizes the active recording and spools its artifact.
// Stopping a session that is not recording changes nothing.
func (m *Manager) StopRecording(ctx context.Context) (types.SessionStatus, error) {
	sess := m.active()
	if sess == nil {
		return types.SessionStatus{}, ErrNoSession
	}
	art, err := sess.StopRecording(ctx)
	if err != nil {
		m.notifyFailure(sess, err)
		return m.statusOf(sess), err
	}
	if art != nil {
		m.persist(ctx, art)
	}
	return m.statusOf(sess), nil
}

// CancelSession aborts the active session and releases everything it holds.
// With no active session this is a no-op.
func (m *Manager) CancelSession() types.SessionStatus {
	sess := m.active()
	if sess == nil {
		return types.SessionStatus{}
	}
	sess.Cancel()
	return m.statusOf(sess)
}

// ResetSession returns the active session to idle so it can start again.
func (m *Manager) ResetSession() (types.SessionStatus, error) {
	sess := m.active()
	if sess == nil {
		return types.SessionStatus{}, ErrNoSession
	}
	sess.Reset()
	m.mu.Lock()
	m.storedPath = ""
	m.mu.Unlock()
	return m.statusOf(sess), nil
}

// Shutdown cancels the active session, releasing its stream and encoder.
func (m *Manager) Shutdown() {
	sess := m.active()
	if sess != nil {
		sess.Cancel()
	}
}

// Status reports the active session, or nil when none was started yet.
func (m *Manager) Status() *types.SessionStatus {
	sess := m.active()
	if sess == nil {
		return nil
	}
	st := m.statusOf(sess)
	return &st
}

// Devices lists the capture devices the backend can see.
func (m *Manager) Devices(ctx context.Context) ([]types.DeviceInfo, error) {
	return m.acquirer.Devices(ctx)
}

func (m *Manager) active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// statusOf merges the stored spool path into the session's own status.
func (m *Manager) statusOf(sess *Session) types.SessionStatus {
	st := sess.Status()
	m.mu.Lock()
	path := m.storedPath
	m.mu.Unlock()
	if st.Artifact != nil && path != "" {
		st.Artifact.StoredPath = path
	}
	return st
}

// persist spools an artifact to disk. Storage failures are logged but never
// flip a completed session to failed; the artifact still exists in memory.
func (m *Manager) persist(ctx context.Context, art *artifact.Artifact) {
	if m.sink == nil {
		return
	}
	path, err := m.sink.Save(ctx, art)
	if err != nil {
		slog.Error("failed to store artifact", "artifact", art.SuggestedName, "error", err)
		return
	}
	m.mu.Lock()
	m.storedPath = path
	m.mu.Unlock()
	slog.Info("artifact stored", "artifact", art.SuggestedName, "path", path)
	if m.events != nil {
		m.events.ArtifactStored(art.Info(path))
	}
}

// notifyFailure emits a session_failed event when the operation itself failed
// the session. State-guard rejections and cancel races leave the session as
// it was and stay quiet.
func (m *Manager) notifyFailure(sess *Session, err error) {
	if err == nil || m.events == nil {
		return
	}
	if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrCancelled) {
		return
	}
	if sess.State() != types.StateFailed {
		return
	}
	m.events.SessionFailed(sess.Modality(), sess.LastError())
}
