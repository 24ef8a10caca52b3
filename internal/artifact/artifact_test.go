package artifact

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/types"
)

var captureTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestName(t *testing.T) {
	want := fmt.Sprintf("audio-%d.webm", captureTime.UnixMilli())
	assert.Equal(t, want, Name(types.ModalityAudio, "audio/webm", captureTime))
	assert.Equal(t, fmt.Sprintf("video-%d.mp4", captureTime.UnixMilli()),
		Name(types.ModalityVideo, "video/mp4", captureTime))
	assert.Equal(t, fmt.Sprintf("photo-%d.jpg", captureTime.UnixMilli()),
		Name(types.ModalityPhoto, "image/jpeg", captureTime))
}

func TestNewPhoto(t *testing.T) {
	art := NewPhoto([]byte{0xff, 0xd8, 0xff}, captureTime)

	assert.Equal(t, "image/jpeg", art.MimeType)
	assert.Equal(t, types.ModalityPhoto, art.Modality)
	assert.Equal(t, captureTime, art.CreatedAt)
	assert.Regexp(t, `^photo-\d+\.jpg$`, art.SuggestedName)
	assert.Len(t, art.Bytes, 3)
}

func TestArtifactInfo(t *testing.T) {
	art := NewPhoto([]byte("jpegdata"), captureTime)

	info := art.Info("/spool/photo.jpg")
	assert.Equal(t, art.SuggestedName, info.Name)
	assert.Equal(t, "image/jpeg", info.MimeType)
	assert.Equal(t, int64(8), info.SizeBytes)
	assert.Equal(t, "/spool/photo.jpg", info.StoredPath)
	assert.Equal(t, "2025-06-01T12:00:00Z", info.CreatedAt)

	assert.Empty(t, art.Info("").StoredPath)
}

func TestAccumulatorAppendSkipsEmptyFragments(t *testing.T) {
	acc := NewAccumulator()

	acc.Append(encoding.Chunk{Data: nil})
	acc.Append(encoding.Chunk{Data: []byte{}})
	assert.Zero(t, acc.Count())
	assert.Zero(t, acc.BufferedBytes())

	acc.Append(encoding.Chunk{Data: []byte("abc")})
	assert.Equal(t, 1, acc.Count())
	assert.Equal(t, int64(3), acc.BufferedBytes())
}

func TestAccumulatorAssemblePreservesArrivalOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.Append(encoding.Chunk{Data: []byte("one-"), MimeType: "audio/webm"})
	acc.Append(encoding.Chunk{Data: []byte("two-"), MimeType: "audio/webm"})
	acc.Append(encoding.Chunk{Data: []byte("three"), MimeType: "audio/webm"})

	art := acc.Assemble(types.ModalityAudio, nil, captureTime)
	assert.Equal(t, []byte("one-two-three"), art.Bytes)
	assert.Equal(t, types.ModalityAudio, art.Modality)
	assert.Equal(t, captureTime, art.CreatedAt)
}

func TestAccumulatorAssembleMimeSelection(t *testing.T) {
	tests := []struct {
		name       string
		negotiated *encoding.Format
		chunkMime  string
		modality   types.Modality
		want       string
	}{
		{
			name:       "negotiated container wins",
			negotiated: &encoding.Format{MimeType: "audio/webm;codecs=opus"},
			chunkMime:  "audio/mp4",
			modality:   types.ModalityAudio,
			want:       "audio/webm",
		},
		{
			name:      "first chunk mime when nothing negotiated",
			chunkMime: "video/webm;codecs=vp8",
			modality:  types.ModalityVideo,
			want:      "video/webm",
		},
		{
			name:     "modality default when chunk reports nothing",
			modality: types.ModalityAudio,
			want:     "audio/webm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			acc.Append(encoding.Chunk{Data: []byte("x"), MimeType: tt.chunkMime})

			art := acc.Assemble(tt.modality, tt.negotiated, captureTime)
			assert.Equal(t, tt.want, art.MimeType)
		})
	}
}

func TestAccumulatorAssembleEmptyUsesModalityDefault(t *testing.T) {
	acc := NewAccumulator()

	art := acc.Assemble(types.ModalityVideo, nil, captureTime)
	assert.Empty(t, art.Bytes)
	assert.Equal(t, "video/webm", art.MimeType)
	require.NotEmpty(t, art.SuggestedName)
	assert.Regexp(t, `^video-\d+\.webm$`, art.SuggestedName)
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator()
	acc.Append(encoding.Chunk{Data: []byte("data")})
	require.Equal(t, 1, acc.Count())

	acc.Reset()
	assert.Zero(t, acc.Count())
	assert.Zero(t, acc.BufferedBytes())
	assert.Empty(t, acc.Assemble(types.ModalityAudio, nil, captureTime).Bytes)
}
