package device

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/murmurhq/murmur-capture/internal/types"
)

// captureSpec defines platform-specific capture commands and device listing.
type captureSpec struct {
	// defaultAudioDevice and defaultVideoDevice are used when the
	// configuration leaves the device identifier empty.
	defaultAudioDevice string
	defaultVideoDevice string

	// audioCommand returns the argv producing raw s16le samples on stdout.
	audioCommand func(device string) []string

	// videoCommand returns the argv producing raw rgb24 frames on stdout.
	videoCommand func(device string, width, height int) []string

	// listDevices enumerates capture devices, falling back to defaults when
	// detection fails.
	listDevices func(ctx context.Context) []types.DeviceInfo

	// probe verifies the tooling the constraints require is installed.
	probe func(c Constraints) error
}

// deviceListing describes how to parse one platform's device list output.
type deviceListing struct {
	// command and args to list devices.
	command []string

	// startMarker and stopMarker bound the relevant output section. An empty
	// startMarker means the whole output is in section.
	startMarker string
	stopMarker  string

	// pattern extracts device info per line; parse converts its matches.
	pattern *regexp.Regexp
	parse   func(matches []string) *types.DeviceInfo

	// fallback is returned if detection fails or finds nothing.
	fallback []types.DeviceInfo
}

// parseDeviceListing is the shared helper for parsing device list output.
func parseDeviceListing(ctx context.Context, l deviceListing) []types.DeviceInfo {
	if len(l.command) == 0 {
		return l.fallback
	}

	cmd := exec.CommandContext(ctx, l.command[0], l.command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		slog.Error("failed to list capture devices", "command", l.command[0], "error", err)
		return l.fallback
	}

	var devices []types.DeviceInfo
	inSection := l.startMarker == ""
	for _, line := range strings.Split(string(output), "\n") {
		if l.startMarker != "" && strings.Contains(line, l.startMarker) {
			inSection = true
			continue
		}
		if l.stopMarker != "" && strings.Contains(line, l.stopMarker) {
			inSection = false
			continue
		}
		if !inSection || l.pattern == nil {
			continue
		}
		matches := l.pattern.FindStringSubmatch(line)
		if len(matches) > 0 && l.parse != nil {
			if dev := l.parse(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return l.fallback
	}
	return devices
}
