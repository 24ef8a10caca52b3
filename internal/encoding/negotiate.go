package encoding

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Prober reports whether the runtime can encode a format.
type Prober interface {
	Supports(f Format) bool
}

// Negotiate returns the first candidate the prober supports, in list order,
// or nil when none is supported. A nil result is not an error: the session
// falls back to default encoder options.
func Negotiate(p Prober, candidates []Format) *Format {
	for _, c := range candidates {
		if p.Supports(c) {
			return &c
		}
	}
	return nil
}

// StaticProber supports an explicit set of mime types. It backs the sim
// backend and capability-table tests.
type StaticProber struct {
	supported map[string]bool
}

// NewStaticProber returns a prober supporting exactly the given mime types.
func NewStaticProber(mimeTypes ...string) *StaticProber {
	supported := make(map[string]bool, len(mimeTypes))
	for _, m := range mimeTypes {
		supported[strings.ToLower(strings.TrimSpace(m))] = true
	}
	return &StaticProber{supported: supported}
}

// Supports implements Prober.
func (p *StaticProber) Supports(f Format) bool {
	return p.supported[strings.ToLower(strings.TrimSpace(f.MimeType))]
}

// codecEncoders maps codec names to the ffmpeg encoder that must be present.
var codecEncoders = map[string]string{
	"opus":   "libopus",
	"vorbis": "libvorbis",
	"vp8":    "libvpx",
	"vp9":    "libvpx-vp9",
	"aac":    "aac",
	"avc1":   "libx264",
	"h264":   "libx264",
}

// containerDefaultCodec is assumed when a candidate names only a container.
var containerDefaultCodec = map[string]string{
	"audio/webm": "opus",
	"video/webm": "vp8",
	"audio/mp4":  "aac",
	"video/mp4":  "h264",
	"audio/ogg":  "vorbis",
}

// SystemProber checks format support against the encoders the host ffmpeg
// build ships. The probe runs once and is cached; a host without ffmpeg
// supports nothing.
type SystemProber struct {
	once     sync.Once
	encoders map[string]bool
}

// NewSystemProber returns an unprobed system prober. The first Supports call
// triggers the probe.
func NewSystemProber() *SystemProber {
	return &SystemProber{}
}

// Supports implements Prober.
func (p *SystemProber) Supports(f Format) bool {
	p.once.Do(p.probe)
	if len(p.encoders) == 0 {
		return false
	}
	codec := f.Codec()
	if codec == "" {
		codec = containerDefaultCodec[f.Container()]
	}
	encoder, ok := codecEncoders[codec]
	if !ok {
		return false
	}
	return p.encoders[encoder]
}

func (p *SystemProber) probe() {
	p.encoders = make(map[string]bool)

	cmd := exec.CommandContext(context.Background(), "ffmpeg", "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		slog.Warn("encoder probe failed, no formats will negotiate", "error", err)
		return
	}

	// Encoder lines look like " A....D libopus    libopus Opus".
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 {
			p.encoders[fields[1]] = true
		}
	}
	slog.Debug("probed host encoders", "count", len(p.encoders))
}
