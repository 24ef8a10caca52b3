//go:build windows

package device

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/murmurhq/murmur-capture/internal/types"
)

func platformSpec() captureSpec {
	return captureSpec{
		// dshow has no default device alias; the configuration must name one.
		defaultAudioDevice: "",
		defaultVideoDevice: "",
		audioCommand:       windowsAudioCommand,
		videoCommand:       windowsVideoCommand,
		listDevices:        windowsListDevices,
		probe:              windowsProbe,
	}
}

func windowsProbe(Constraints) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not installed: %w", ErrAPIUnsupported)
	}
	return nil
}

func windowsAudioCommand(device string) []string {
	return []string{
		"ffmpeg",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "dshow",
		"-i", deviceInput("audio", device),
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

func windowsVideoCommand(device string, width, height int) []string {
	return []string{
		"ffmpeg",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "dshow",
		"-framerate", "30",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", deviceInput("video", device),
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

// deviceInput normalizes a configured name to dshow's kind=name form.
func deviceInput(kind, device string) string {
	if strings.Contains(device, "=") {
		return device
	}
	return kind + "=" + device
}

var dshowPattern = regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"`)

func windowsListDevices(ctx context.Context) []types.DeviceInfo {
	listCommand := []string{"ffmpeg", "-f", "dshow", "-list_devices", "true", "-i", "dummy"}

	audio := parseDeviceListing(ctx, deviceListing{
		command:     listCommand,
		startMarker: "DirectShow audio devices",
		pattern:     dshowPattern,
		parse: func(matches []string) *types.DeviceInfo {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &types.DeviceInfo{ID: "audio=" + name, Name: name, Kind: string(TrackAudio)}
		},
	})
	video := parseDeviceListing(ctx, deviceListing{
		command:     listCommand,
		startMarker: "DirectShow video devices",
		stopMarker:  "DirectShow audio devices",
		pattern:     dshowPattern,
		parse: func(matches []string) *types.DeviceInfo {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &types.DeviceInfo{ID: "video=" + name, Name: name, Kind: string(TrackVideo)}
		},
	})
	return append(video, audio...)
}
