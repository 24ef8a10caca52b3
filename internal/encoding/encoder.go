package encoding

import (
	"context"
	"errors"

	"github.com/murmurhq/murmur-capture/internal/device"
)

// ErrConstruction marks encoder construction failures. The session retries
// construction once with default options before surfacing this as a failure.
var ErrConstruction = errors.New("encoder construction failed")

// Chunk is one fragment of encoded output, delivered in encode order.
type Chunk struct {
	Data     []byte
	MimeType string
}

// Options configures encoder construction. A nil Format requests default
// options: the encoder picks its own container and codec.
type Options struct {
	Format *Format
}

// Encoder turns raw track samples into encoded chunks.
//
// Start begins encoding; Chunks delivers fragments in encode order and is
// closed after the final flush, whether the stop was requested or the
// encoder died. Stop requests a flush and returns once the channel is
// closed or the context expires. Close releases the encoder immediately
// without flushing and is idempotent.
type Encoder interface {
	Start() error
	Chunks() <-chan Chunk
	Stop(ctx context.Context) error
	Close()

	// Err reports why the encoder stopped. Nil for a clean stop.
	Err() error

	// EffectiveMimeType is the container mime type the encoder produces,
	// known once constructed.
	EffectiveMimeType() string
}

// Factory constructs encoders bound to a stream's tracks.
type Factory interface {
	New(stream *device.Stream, opts Options) (Encoder, error)
}
