// Package jpegenc turns BGR24 frames into JPEG bytes. Encoders are
// interchangeable: every implementation returns a complete JPEG image or an
// error, never a partial buffer.
package jpegenc

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/helpers"
	"firewatch-worker-go/internal/models"
)

// ErrEmptyFrame is returned for nil or malformed frames.
var ErrEmptyFrame = errors.New("jpegenc: empty frame")

// Encoder compresses one frame at the given quality (1..100).
type Encoder interface {
	Encode(frame *models.Frame, quality int) ([]byte, error)
	Name() string
}

// Std is the pure-Go software encoder from the standard image/jpeg package.
type Std struct{}

func (Std) Name() string { return "std" }

func (Std) Encode(frame *models.Frame, quality int) ([]byte, error) {
	if !frame.Valid() {
		return nil, ErrEmptyFrame
	}
	var buf bytes.Buffer
	buf.Grow(frame.Width * frame.Height / 4)
	if err := jpeg.Encode(&buf, helpers.ToRGBA(frame), &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Fallback tries each encoder in order and returns the first success.
type Fallback struct {
	encoders []Encoder
}

// Chain builds a Fallback from the non-nil encoders given.
func Chain(encoders ...Encoder) *Fallback {
	f := &Fallback{}
	for _, e := range encoders {
		if e != nil {
			f.encoders = append(f.encoders, e)
		}
	}
	return f
}

func (f *Fallback) Name() string {
	if len(f.encoders) == 0 {
		return "none"
	}
	return f.encoders[0].Name()
}

func (f *Fallback) Encode(frame *models.Frame, quality int) ([]byte, error) {
	if !frame.Valid() {
		return nil, ErrEmptyFrame
	}
	var lastErr error
	for _, e := range f.encoders {
		buf, err := e.Encode(frame, quality)
		if err == nil && helpers.IsJPEGData(buf) {
			return buf, nil
		}
		if err == nil {
			err = fmt.Errorf("%s encoder returned non-JPEG output", e.Name())
		}
		log.Debug().Err(err).Str("encoder", e.Name()).Msg("JPEG encoder failed, trying next")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("jpegenc: no encoder configured")
	}
	return nil, lastErr
}

// ClampQuality keeps quality within the range every encoder accepts.
func ClampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
