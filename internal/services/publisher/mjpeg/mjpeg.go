// Package mjpeg writes a slot as a multipart/x-mixed-replace JPEG stream.
// Each HTTP connection gets its own Streamer; streamers share nothing but the
// slot they read from.
package mjpeg

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/jpegenc"
	"firewatch-worker-go/internal/services/scheduling"
)

const Boundary = "frame"

// ContentType is the response content type for every MJPEG endpoint.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// FrameReader hands out an isolated copy of the latest frame of one feed,
// together with the generation of the publish it came from. Generation 0
// means unknown and disables encode reuse.
type FrameReader interface {
	ReadFrame() (frame *models.Frame, gen uint64, ok bool)
}

// Streamer encodes and writes frames for a single connection.
type Streamer struct {
	reader  FrameReader
	encoder jpegenc.Encoder
	quality int
	backoff time.Duration
	pacer   *scheduling.Pacer

	lastGen  uint64
	lastJPEG []byte

	segments     atomic.Uint64
	encodeErrors atomic.Uint64
	emptyReads   atomic.Uint64
}

func NewStreamer(reader FrameReader, encoder jpegenc.Encoder, quality int, rateHz float64, backoff time.Duration) *Streamer {
	return &Streamer{
		reader:  reader,
		encoder: encoder,
		quality: quality,
		backoff: backoff,
		pacer:   scheduling.NewPacer(rateHz),
	}
}

// Run streams until ctx ends or a write fails. flush is called after every
// part. The returned error is the write error, or ctx.Err().
func (s *Streamer) Run(ctx context.Context, w io.Writer, flush func()) error {
	done := ctx.Done()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, gen, ok := s.reader.ReadFrame()
		if !ok {
			s.emptyReads.Add(1)
			if !scheduling.Sleep(done, s.backoff) {
				return ctx.Err()
			}
			continue
		}

		jpg, err := s.encode(frame, gen)
		if err != nil {
			s.encodeErrors.Add(1)
			log.Debug().Err(err).Uint64("seq", frame.Seq).Msg("MJPEG encode failed, skipping tick")
		} else {
			if err := WritePart(w, jpg); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			s.segments.Add(1)
		}

		if !s.pacer.Wait(done) {
			return ctx.Err()
		}
	}
}

// encode reuses the previous buffer while the slot still holds the same
// publish. Frame.Seq is not enough: the annotated slot can receive several
// renderings of one source frame.
func (s *Streamer) encode(frame *models.Frame, gen uint64) ([]byte, error) {
	if gen != 0 && gen == s.lastGen && s.lastJPEG != nil {
		return s.lastJPEG, nil
	}
	jpg, err := s.encoder.Encode(frame, s.quality)
	if err != nil {
		return nil, err
	}
	s.lastGen = gen
	s.lastJPEG = jpg
	return jpg, nil
}

// Segments returns the number of parts written so far.
func (s *Streamer) Segments() uint64 {
	return s.segments.Load()
}

func (s *Streamer) EncodeErrors() uint64 {
	return s.encodeErrors.Load()
}

// WritePart writes one multipart segment with an exact Content-Length.
func WritePart(w io.Writer, jpg []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(jpg))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jpg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
