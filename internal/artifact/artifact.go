// Package artifact assembles encoder output into tagged media artifacts.
package artifact

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/types"
)

// Artifact is the final assembled binary result of a capture or recording,
// handed to the uploader collaborator on completion.
type Artifact struct {
	Bytes         []byte
	MimeType      string
	SuggestedName string
	Modality      types.Modality
	CreatedAt     time.Time
}

// Info converts the artifact to its status payload form.
func (a *Artifact) Info(storedPath string) *types.ArtifactInfo {
	return &types.ArtifactInfo{
		Name:       a.SuggestedName,
		MimeType:   a.MimeType,
		SizeBytes:  int64(len(a.Bytes)),
		StoredPath: storedPath,
		CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Name builds the deterministic artifact name: the modality and a
// millisecond capture timestamp, with the extension derived from the mime.
func Name(m types.Modality, mime string, t time.Time) string {
	return fmt.Sprintf("%s-%d.%s", m, t.UnixMilli(), encoding.ExtensionForMime(mime))
}

// NewPhoto wraps encoded still-image bytes as a photo artifact.
func NewPhoto(jpegBytes []byte, t time.Time) *Artifact {
	mime := types.ModalityPhoto.DefaultMimeType()
	return &Artifact{
		Bytes:         jpegBytes,
		MimeType:      mime,
		SuggestedName: Name(types.ModalityPhoto, mime, t),
		Modality:      types.ModalityPhoto,
		CreatedAt:     t,
	}
}

// Accumulator collects encoder chunks in arrival order during a recording.
type Accumulator struct {
	mu     sync.Mutex
	chunks []encoding.Chunk
	bytes  int64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append records one data event. Empty fragments are dropped.
func (a *Accumulator) Append(c encoding.Chunk) {
	if len(c.Data) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = append(a.chunks, c)
	a.bytes += int64(len(c.Data))
}

// Count reports how many fragments have been collected.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

// BufferedBytes reports the total collected size.
func (a *Accumulator) BufferedBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes
}

// Reset discards all collected fragments.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = nil
	a.bytes = 0
}

// Assemble concatenates the fragments, in arrival order, into one artifact.
// The mime tag prefers the negotiated format's container, then the first
// fragment's reported type, then the modality default.
func (a *Accumulator) Assemble(m types.Modality, negotiated *encoding.Format, t time.Time) *Artifact {
	a.mu.Lock()
	defer a.mu.Unlock()

	mime := ""
	if negotiated != nil {
		mime = negotiated.Container()
	}
	if mime == "" && len(a.chunks) > 0 {
		reported, _, _ := strings.Cut(a.chunks[0].MimeType, ";")
		mime = strings.TrimSpace(strings.ToLower(reported))
	}
	if mime == "" {
		mime = m.DefaultMimeType()
	}

	data := make([]byte, 0, a.bytes)
	for _, c := range a.chunks {
		data = append(data, c.Data...)
	}

	return &Artifact{
		Bytes:         data,
		MimeType:      mime,
		SuggestedName: Name(m, mime, t),
		Modality:      m,
		CreatedAt:     t,
	}
}
