// Package turbo encodes frames with libjpeg-turbo's SIMD paths through cimg.
package turbo

import (
	"fmt"

	"github.com/bmharper/cimg/v2"

	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/jpegenc"
)

// Encoder wraps the frame buffer in place and compresses it with 4:2:0
// chroma subsampling, matching what browsers decode fastest.
type Encoder struct {
	sampling cimg.Sampling
}

func New() *Encoder {
	return &Encoder{sampling: cimg.Sampling420}
}

func (e *Encoder) Name() string { return "turbo" }

func (e *Encoder) Encode(frame *models.Frame, quality int) ([]byte, error) {
	if !frame.Valid() {
		return nil, jpegenc.ErrEmptyFrame
	}
	img := cimg.WrapImage(frame.Width, frame.Height, cimg.PixelFormatBGR, frame.Data)
	buf, err := cimg.Compress(img, cimg.MakeCompressParams(e.sampling, jpegenc.ClampQuality(quality), 0))
	if err != nil {
		return nil, fmt.Errorf("turbo jpeg compress: %w", err)
	}
	return buf, nil
}
