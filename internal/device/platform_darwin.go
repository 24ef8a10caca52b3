//go:build darwin

package device

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/murmurhq/murmur-capture/internal/types"
)

func platformSpec() captureSpec {
	return captureSpec{
		defaultAudioDevice: ":0",
		defaultVideoDevice: "0",
		audioCommand:       darwinAudioCommand,
		videoCommand:       darwinVideoCommand,
		listDevices:        darwinListDevices,
		probe:              darwinProbe,
	}
}

func darwinProbe(Constraints) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not installed: %w", ErrAPIUnsupported)
	}
	return nil
}

func darwinAudioCommand(device string) []string {
	return []string{
		"ffmpeg",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "avfoundation",
		"-i", device,
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}

func darwinVideoCommand(device string, width, height int) []string {
	return []string{
		"ffmpeg",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "avfoundation",
		"-framerate", "30",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", device + ":",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

var avfoundationPattern = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)

func darwinListDevices(ctx context.Context) []types.DeviceInfo {
	listCommand := []string{"ffmpeg", "-f", "avfoundation", "-list_devices", "true", "-i", ""}

	audio := parseDeviceListing(ctx, deviceListing{
		command:     listCommand,
		startMarker: "AVFoundation audio devices:",
		pattern:     avfoundationPattern,
		parse: func(matches []string) *types.DeviceInfo {
			if len(matches) < 3 {
				return nil
			}
			return &types.DeviceInfo{ID: ":" + matches[1], Name: matches[2], Kind: string(TrackAudio)}
		},
	})
	video := parseDeviceListing(ctx, deviceListing{
		command:     listCommand,
		startMarker: "AVFoundation video devices:",
		stopMarker:  "AVFoundation audio devices:",
		pattern:     avfoundationPattern,
		parse: func(matches []string) *types.DeviceInfo {
			if len(matches) < 3 {
				return nil
			}
			return &types.DeviceInfo{ID: matches[1], Name: matches[2], Kind: string(TrackVideo)}
		},
	})
	return append(video, audio...)
}
