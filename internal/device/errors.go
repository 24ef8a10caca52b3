package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/murmurhq/murmur-capture/internal/types"
)

// Sentinel acquisition errors. Wrap these with %w so errors.Is keeps working
// across package boundaries; Classify maps any chain to its ErrorKind.
var (
	// ErrPermissionDenied indicates the host refused device access.
	ErrPermissionDenied = errors.New("device access denied")

	// ErrDeviceNotFound indicates no device matched the request.
	ErrDeviceNotFound = errors.New("capture device not found")

	// ErrDeviceBusy indicates the device is held by another process.
	ErrDeviceBusy = errors.New("capture device busy")

	// ErrAPIUnsupported indicates the host lacks capture tooling entirely.
	ErrAPIUnsupported = errors.New("media capture not supported on this host")
)

// ErrNoVideoTrack marks a stream that was acquired for video but carries no
// video track. It is the not-found variant the session reports after stopping
// the stream's tracks.
var ErrNoVideoTrack = fmt.Errorf("acquired stream has no video track: %w", ErrDeviceNotFound)

// Classify maps an acquisition error to its user-visible kind.
func Classify(err error) types.ErrorKind {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return types.ErrorPermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return types.ErrorDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return types.ErrorDeviceBusy
	case errors.Is(err, ErrAPIUnsupported):
		return types.ErrorAPIUnsupported
	default:
		return types.ErrorUnknown
	}
}

// maxErrorLineLength caps stderr lines included in errors and status payloads.
const maxErrorLineLength = 200

// LastOutputLine returns the last non-empty line of process output, capped at
// maxErrorLineLength.
func LastOutputLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > maxErrorLineLength {
			line = line[:maxErrorLineLength]
		}
		return line
	}
	return ""
}

// ClassifyOutput converts a failed capture process into a taxonomy error,
// keyed off the last stderr line. ALSA and v4l2 report open failures as plain
// text, so matching is by message fragment.
func ClassifyOutput(operation, output string, err error) error {
	line := LastOutputLine(output)
	if line == "" && err != nil {
		line = err.Error()
	}
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "busy"),
		strings.Contains(lower, "resource temporarily unavailable"):
		return fmt.Errorf("%s: %s: %w", operation, line, ErrDeviceBusy)
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"):
		return fmt.Errorf("%s: %s: %w", operation, line, ErrPermissionDenied)
	case strings.Contains(lower, "no such file"),
		strings.Contains(lower, "no such device"),
		strings.Contains(lower, "no such filename"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "cannot find"),
		strings.Contains(lower, "no soundcards"):
		return fmt.Errorf("%s: %s: %w", operation, line, ErrDeviceNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %s: %w", operation, line, err)
	}
	return fmt.Errorf("%s: %s", operation, line)
}
