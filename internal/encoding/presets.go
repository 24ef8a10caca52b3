package encoding

import "fmt"

// EncoderPreset defines the ffmpeg parameters producing one format.
type EncoderPreset struct {
	Mime      string   // container mime reported on chunks and artifacts
	AudioArgs []string // -codec:a value and options
	VideoArgs []string // -codec:v value and options; nil for audio-only
	Muxer     string   // -f value
	MuxArgs   []string // extra muxer flags (fragmented mp4 for pipes)
}

// encoderPresets maps candidate mime strings to their ffmpeg configuration.
// Keys are lowercase full mime strings; lookups normalize through presetFor.
var encoderPresets = map[string]EncoderPreset{
	"audio/webm;codecs=opus": {
		Mime:      "audio/webm",
		AudioArgs: []string{"libopus", "-b:a", "128k"},
		Muxer:     "webm",
	},
	"audio/webm": {
		Mime:      "audio/webm",
		AudioArgs: []string{"libopus", "-b:a", "128k"},
		Muxer:     "webm",
	},
	"audio/ogg": {
		Mime:      "audio/ogg",
		AudioArgs: []string{"libvorbis", "-qscale:a", "5"},
		Muxer:     "ogg",
	},
	"audio/mp4": {
		Mime:      "audio/mp4",
		AudioArgs: []string{"aac", "-b:a", "128k"},
		Muxer:     "mp4",
		MuxArgs:   []string{"-movflags", "+frag_keyframe+empty_moov"},
	},
	"video/webm;codecs=vp9": {
		Mime:      "video/webm",
		VideoArgs: []string{"libvpx-vp9", "-b:v", "2M", "-deadline", "realtime"},
		Muxer:     "webm",
	},
	"video/webm;codecs=vp8": {
		Mime:      "video/webm",
		VideoArgs: []string{"libvpx", "-b:v", "2M", "-deadline", "realtime"},
		Muxer:     "webm",
	},
	"video/webm": {
		Mime:      "video/webm",
		VideoArgs: []string{"libvpx", "-b:v", "2M", "-deadline", "realtime"},
		Muxer:     "webm",
	},
	"video/mp4": {
		Mime:      "video/mp4",
		VideoArgs: []string{"libx264", "-preset", "veryfast", "-b:v", "2M"},
		Muxer:     "mp4",
		MuxArgs:   []string{"-movflags", "+frag_keyframe+empty_moov"},
	},
}

// Default presets used when no format was negotiated.
const (
	defaultAudioPreset = "audio/webm;codecs=opus"
	defaultVideoPreset = "video/webm;codecs=vp8"
)

// presetFor resolves options to a preset. A nil format falls back to the
// default preset for the track kind being encoded.
func presetFor(f *Format, hasVideo bool) (EncoderPreset, error) {
	if f == nil {
		if hasVideo {
			return encoderPresets[defaultVideoPreset], nil
		}
		return encoderPresets[defaultAudioPreset], nil
	}
	if preset, ok := encoderPresets[normalizeMime(f.MimeType)]; ok {
		return preset, nil
	}
	return EncoderPreset{}, fmt.Errorf("no encoder preset for %q: %w", f.MimeType, ErrConstruction)
}

// rawAudioInputArgs configures ffmpeg to read raw S16LE stereo 48kHz samples
// from stdin, matching the capture process output.
func rawAudioInputArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
	}
}

// rawVideoInputArgs configures ffmpeg to read raw rgb24 frames from stdin.
func rawVideoInputArgs(width, height int) []string {
	return []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", "30",
		"-i", "pipe:0",
	}
}

// buildEncodeArgs assembles the full argv (minus the binary) for an encode
// process writing its container to stdout.
func buildEncodeArgs(preset EncoderPreset, width, height int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	if preset.VideoArgs != nil {
		args = append(args, rawVideoInputArgs(width, height)...)
		args = append(args, "-codec:v")
		args = append(args, preset.VideoArgs...)
		args = append(args, "-an")
	} else {
		args = append(args, rawAudioInputArgs()...)
		args = append(args, "-codec:a")
		args = append(args, preset.AudioArgs...)
		args = append(args, "-vn")
	}
	args = append(args, preset.MuxArgs...)
	args = append(args, "-f", preset.Muxer, "pipe:1")
	return args
}
