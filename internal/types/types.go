// Package types provides shared type definitions used across the capture agent.
package types

import (
	"cmp"
	"time"
)

// Modality identifies what kind of artifact a capture session produces.
type Modality string

const (
	// ModalityPhoto captures a single still frame from the camera.
	ModalityPhoto Modality = "photo"
	// ModalityAudio records from the microphone only.
	ModalityAudio Modality = "audio"
	// ModalityVideo records camera and microphone together.
	ModalityVideo Modality = "video"
)

// IsValid reports whether m is a recognized modality.
func (m Modality) IsValid() bool {
	switch m {
	case ModalityPhoto, ModalityAudio, ModalityVideo:
		return true
	}
	return false
}

// NeedsVideo reports whether the modality requires a camera track.
func (m Modality) NeedsVideo() bool {
	return m == ModalityPhoto || m == ModalityVideo
}

// NeedsAudio reports whether the modality requires a microphone track.
func (m Modality) NeedsAudio() bool {
	return m == ModalityAudio || m == ModalityVideo
}

// Recordable reports whether the modality produces an encoded recording
// rather than a single still frame.
func (m Modality) Recordable() bool {
	return m == ModalityAudio || m == ModalityVideo
}

// DefaultMimeType returns the artifact mime type assumed when no format was
// negotiated and the encoder reported none.
func (m Modality) DefaultMimeType() string {
	switch m {
	case ModalityPhoto:
		return "image/jpeg"
	case ModalityAudio:
		return "audio/webm"
	default:
		return "video/webm"
	}
}

// SessionState represents the current state of a capture session.
type SessionState string

const (
	// StateIdle indicates the session holds no resources and can be started.
	StateIdle SessionState = "idle"
	// StateRequesting indicates a device acquisition is in flight.
	StateRequesting SessionState = "requesting"
	// StateLive indicates a device stream is held and previewable.
	StateLive SessionState = "live"
	// StateRecording indicates an encoder is producing chunks.
	StateRecording SessionState = "recording"
	// StateFinalizing indicates the encoder is flushing its last data.
	StateFinalizing SessionState = "finalizing"
	// StateCompleted indicates an artifact was produced and resources released.
	StateCompleted SessionState = "completed"
	// StateFailed indicates the session stopped on a classified error.
	StateFailed SessionState = "failed"
)

// sessionTransitions lists the legal next states for each session state.
// Cancel and reset paths lead back to idle; everything else is forward-only.
var sessionTransitions = map[SessionState][]SessionState{
	StateIdle:       {StateRequesting},
	StateRequesting: {StateLive, StateFailed, StateIdle},
	StateLive:       {StateRecording, StateCompleted, StateFailed, StateIdle},
	StateRecording:  {StateFinalizing, StateFailed, StateIdle},
	StateFinalizing: {StateCompleted, StateFailed, StateIdle},
	StateCompleted:  {StateIdle},
	StateFailed:     {StateIdle},
}

// CanTransition reports whether moving from one session state to another is legal.
func CanTransition(from, to SessionState) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state ends the session's lifecycle. Terminal
// sessions hold no resources and only reset() can reuse them.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Holding reports whether the state may hold an open device stream.
func (s SessionState) Holding() bool {
	return s == StateLive || s == StateRecording || s == StateFinalizing
}

// ErrorKind classifies capture failures into user-visible categories.
type ErrorKind string

const (
	// ErrorPermissionDenied indicates device access was refused.
	ErrorPermissionDenied ErrorKind = "permission_denied"
	// ErrorDeviceNotFound indicates no matching device, including streams
	// acquired for video that carried no video track.
	ErrorDeviceNotFound ErrorKind = "device_not_found"
	// ErrorDeviceBusy indicates the device is held by another process.
	ErrorDeviceBusy ErrorKind = "device_busy"
	// ErrorAPIUnsupported indicates the host lacks capture or encoding support.
	ErrorAPIUnsupported ErrorKind = "api_unsupported"
	// ErrorEncoderConstruction indicates the encoder could not be built even
	// after falling back to default options.
	ErrorEncoderConstruction ErrorKind = "encoder_construction_failed"
	// ErrorUnknown covers everything else; detail carries the cause.
	ErrorUnknown ErrorKind = "unknown"
)

// Message returns the human-readable text shown for this error category.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorPermissionDenied:
		return "Device access was denied. Check capture permissions."
	case ErrorDeviceNotFound:
		return "No usable capture device was found."
	case ErrorDeviceBusy:
		return "The capture device is in use by another application."
	case ErrorAPIUnsupported:
		return "This host does not support media capture."
	case ErrorEncoderConstruction:
		return "Recording could not be started with any encoder configuration."
	default:
		return "Capture failed unexpectedly."
	}
}

// ResolutionHint bounds a video acquisition request. Best effort: the device
// may deliver a different actual resolution, which is read back from the track.
type ResolutionHint struct {
	IdealWidth  int `json:"ideal_width"`
	IdealHeight int `json:"ideal_height"`
	MaxWidth    int `json:"max_width"`
	MaxHeight   int `json:"max_height"`
}

// Target resolves the hint to the size requested from the device: the ideal
// size clamped to the max bounds, defaulting to 1280x720.
func (r ResolutionHint) Target() (width, height int) {
	width = cmp.Or(r.IdealWidth, 1280)
	height = cmp.Or(r.IdealHeight, 720)
	if r.MaxWidth > 0 && width > r.MaxWidth {
		width = r.MaxWidth
	}
	if r.MaxHeight > 0 && height > r.MaxHeight {
		height = r.MaxHeight
	}
	return width, height
}

// Timing settings.
const (
	AcquireTimeout  = 10 * time.Second      // Device acquisition deadline per attempt
	ReadyTimeout    = 5 * time.Second       // Preview must become ready within this window
	FlushTimeout    = 5 * time.Second       // Encoder flush deadline on stop
	ShutdownTimeout = 3 * time.Second       // Time to wait for graceful process exit before SIGKILL
	PollInterval    = 50 * time.Millisecond // Interval for polling process state
)

// ErrorInfo is the wire form of a classified session error.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitzero"`
}

// ArtifactInfo summarizes a produced artifact for status payloads.
type ArtifactInfo struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	StoredPath string `json:"stored_path,omitzero"`
	CreatedAt  string `json:"created_at"`
}

// SessionStatus contains a summary of the active session's state.
type SessionStatus struct {
	ID             string        `json:"id"`
	Modality       Modality      `json:"modality"`
	State          SessionState  `json:"state"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
	ChunkCount     int           `json:"chunk_count,omitzero"`
	BufferedBytes  int64         `json:"buffered_bytes,omitzero"`
	Format         string        `json:"format,omitzero"`
	LastError      *ErrorInfo    `json:"last_error,omitzero"`
	Artifact       *ArtifactInfo `json:"artifact,omitzero"`
}

// StoreStatus reports spool directory usage.
type StoreStatus struct {
	Path       string `json:"path"`
	FileCount  int    `json:"file_count"`
	TotalBytes int64  `json:"total_bytes"`
}

// DeviceInfo describes one capture device visible to the agent.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// VersionInfo describes the running build and the newest published release.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitzero"`
	Commit      string `json:"commit,omitzero"`
	BuildTime   string `json:"build_time,omitzero"`
	UpdateAvail bool   `json:"update_available,omitzero"`
}

// AgentStatus is the full status payload pushed over the control socket.
type AgentStatus struct {
	Version VersionInfo    `json:"version"`
	Uptime  string         `json:"uptime,omitzero"`
	Session *SessionStatus `json:"session,omitzero"`
	Store   StoreStatus    `json:"store"`
	Devices []DeviceInfo   `json:"devices,omitzero"`
}

// EventLogEntry is one line of the local JSON event log.
type EventLogEntry struct {
	Timestamp string    `json:"timestamp"`
	Event     string    `json:"event"`
	Modality  Modality  `json:"modality,omitzero"`
	Kind      ErrorKind `json:"kind,omitzero"`
	Message   string    `json:"message,omitzero"`
	Artifact  string    `json:"artifact,omitzero"`
	MimeType  string    `json:"mime_type,omitzero"`
	SizeBytes int64     `json:"size_bytes,omitzero"`
	Path      string    `json:"path,omitzero"`
}

// WSCommandResult reports the outcome of a session command to one client.
type WSCommandResult struct {
	Type    string         `json:"type"`
	Command string         `json:"command"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitzero"`
	Session *SessionStatus `json:"session,omitzero"`
}

// WSTestResult reports the outcome of a notification test to one client.
type WSTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitzero"`
}

// WSEventLogResult returns recent event log entries to one client.
type WSEventLogResult struct {
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitzero"`
	Path    string          `json:"path,omitzero"`
	Entries []EventLogEntry `json:"entries,omitzero"`
}
