//go:build linux

package device

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/murmurhq/murmur-capture/internal/types"
)

func platformSpec() captureSpec {
	return captureSpec{
		defaultAudioDevice: "default",
		defaultVideoDevice: "/dev/video0",
		audioCommand:       linuxAudioCommand,
		videoCommand:       linuxVideoCommand,
		listDevices:        linuxListDevices,
		probe:              linuxProbe,
	}
}

func linuxProbe(c Constraints) error {
	if c.Audio {
		if _, err := exec.LookPath("arecord"); err != nil {
			return fmt.Errorf("arecord not installed: %w", ErrAPIUnsupported)
		}
	}
	if c.Video {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			return fmt.Errorf("ffmpeg not installed: %w", ErrAPIUnsupported)
		}
	}
	return nil
}

func linuxAudioCommand(device string) []string {
	return []string{
		"arecord",
		"-D", device,
		"-f", "S16_LE",
		"-r", "48000",
		"-c", "2",
		"-t", "raw",
		"-q",
		"-",
	}
}

func linuxVideoCommand(device string, width, height int) []string {
	return []string{
		"ffmpeg",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", device,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

func linuxListDevices(ctx context.Context) []types.DeviceInfo {
	devices := parseDeviceListing(ctx, deviceListing{
		command: []string{"arecord", "-l"},
		pattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		parse: func(matches []string) *types.DeviceInfo {
			if len(matches) < 4 {
				return nil
			}
			return &types.DeviceInfo{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
				Kind: string(TrackAudio),
			}
		},
		fallback: []types.DeviceInfo{
			{ID: "default", Name: "Default ALSA input", Kind: string(TrackAudio)},
		},
	})

	// v4l2 exposes cameras as device nodes; no listing tool needed.
	nodes, _ := filepath.Glob("/dev/video*")
	sort.Strings(nodes)
	for _, node := range nodes {
		devices = append(devices, types.DeviceInfo{
			ID:   node,
			Name: filepath.Base(node),
			Kind: string(TrackVideo),
		})
	}
	return devices
}
