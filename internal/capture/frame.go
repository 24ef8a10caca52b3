package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/murmurhq/murmur-capture/internal/device"
	"github.com/murmurhq/murmur-capture/internal/util"
)

// Frame buffer size used when the video track reports no native dimensions.
const (
	fallbackFrameWidth  = 640
	fallbackFrameHeight = 480
)

// grabFrame reads one raw rgb24 frame from the stream's first video track
// and encodes it as JPEG. The frame buffer takes the track's native
// dimensions, falling back to 640x480 when they are unavailable.
func grabFrame(stream *device.Stream, quality int) ([]byte, error) {
	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		return nil, device.ErrNoVideoTrack
	}
	track := tracks[0]

	width, height, ok := track.Dimensions()
	if !ok {
		width, height = fallbackFrameWidth, fallbackFrameHeight
	}

	raw := make([]byte, width*height*3)
	if _, err := io.ReadFull(track.Reader(), raw); err != nil {
		return nil, util.WrapError("read camera frame", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = raw[i*3+0]
		img.Pix[i*4+1] = raw[i*3+1]
		img.Pix[i*4+2] = raw[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, util.WrapError("encode jpeg frame", err)
	}
	return buf.Bytes(), nil
}
