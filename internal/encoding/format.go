// Package encoding negotiates recording formats and runs encoders that turn
// raw device samples into encoded chunks.
package encoding

import (
	"strings"

	"github.com/murmurhq/murmur-capture/internal/types"
)

// Format is one (container, codec) candidate for a recording, expressed as a
// mime string in the form the encoder understands, e.g.
// "audio/webm;codecs=opus". Candidate lists are immutable configuration data
// evaluated in priority order.
type Format struct {
	MimeType string `json:"mime_type"`
}

// Container returns the mime type stripped of its parameters.
func (f Format) Container() string {
	mime, _, _ := strings.Cut(f.MimeType, ";")
	return strings.TrimSpace(strings.ToLower(mime))
}

// Codec returns the codecs parameter, empty when the candidate names only a
// container.
func (f Format) Codec() string {
	_, params, ok := strings.Cut(f.MimeType, ";")
	if !ok {
		return ""
	}
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "codecs") {
			return strings.ToLower(strings.Trim(strings.TrimSpace(value), `"`))
		}
	}
	return ""
}

// Extension returns the artifact file extension for the format's container.
func (f Format) Extension() string {
	return ExtensionForMime(f.Container())
}

// ExtensionForMime maps a container mime type to an artifact file extension.
func ExtensionForMime(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/mp4":
		return "m4a"
	case "video/mp4":
		return "mp4"
	case "audio/ogg":
		return "ogg"
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	default:
		return "bin"
	}
}

// DefaultCandidates returns the built-in candidate priority list for a
// recordable modality.
func DefaultCandidates(m types.Modality) []Format {
	switch m {
	case types.ModalityAudio:
		return CandidatesFromMimeTypes([]string{
			"audio/webm;codecs=opus",
			"audio/webm",
			"audio/mp4",
		})
	case types.ModalityVideo:
		return CandidatesFromMimeTypes([]string{
			"video/webm;codecs=vp9",
			"video/webm;codecs=vp8",
			"video/webm",
			"video/mp4",
		})
	default:
		return nil
	}
}

// normalizeMime lowercases a mime string and trims whitespace around its
// parameters so preset lookups match however the candidate was written.
func normalizeMime(mime string) string {
	parts := strings.Split(mime, ";")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.ToLower(strings.Join(parts, ";"))
}

// CandidatesFromMimeTypes builds a candidate list from configured mime
// strings, skipping blanks.
func CandidatesFromMimeTypes(mimeTypes []string) []Format {
	var out []Format
	for _, m := range mimeTypes {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		out = append(out, Format{MimeType: m})
	}
	return out
}
