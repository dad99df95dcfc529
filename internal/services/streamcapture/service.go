package streamcapture

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/scheduling"
)

// FramePublisher receives every captured frame. The raw slot implements it.
type FramePublisher interface {
	Publish(frame *models.Frame)
}

// Service pulls frames from the source as fast as it delivers them and
// publishes each one, overwriting anything not yet consumed.
type Service struct {
	cfg    *config.Config
	source FrameSource
	out    FramePublisher
	stop   *scheduling.StopSignal

	seq         uint64
	captured    atomic.Uint64
	unavailable atomic.Uint64
	errors      atomic.Uint64
	lastFrameAt atomic.Int64

	fps *RateMeter
}

// Stats is a snapshot of capture counters.
type Stats struct {
	FramesCaptured uint64    `json:"frames_captured"`
	Unavailable    uint64    `json:"unavailable"`
	Errors         uint64    `json:"errors"`
	FPS            float64   `json:"fps"`
	LastFrameAt    time.Time `json:"last_frame_at"`
}

// NewService creates a capture loop bound to source and out.
func NewService(cfg *config.Config, source FrameSource, out FramePublisher, stop *scheduling.StopSignal) *Service {
	return &Service{
		cfg:    cfg,
		source: source,
		out:    out,
		stop:   stop,
		fps:    NewRateMeter(30),
	}
}

// Run executes the capture loop until the stop signal is set.
func (s *Service) Run() {
	log.Info().Msg("Capture loop started")

	for !s.stop.Stopped() {
		if !s.captureOnce() {
			if !scheduling.Sleep(s.stop.Done(), s.cfg.CaptureBackoff) {
				break
			}
		}
	}

	log.Info().Uint64("frames_captured", s.captured.Load()).Msg("Capture loop stopped")
}

// captureOnce reads one frame and publishes it. It returns false when the
// caller should back off before trying again.
func (s *Service) captureOnce() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Msg("Capture panic recovered")
			s.errors.Add(1)
			ok = false
		}
	}()

	frame, err := s.source.NextFrame()
	if err != nil {
		if errors.Is(err, ErrFrameUnavailable) {
			s.unavailable.Add(1)
		} else {
			s.errors.Add(1)
			log.Warn().Err(err).Msg("Failed to read frame from source")
		}
		return false
	}
	if !frame.Valid() {
		s.unavailable.Add(1)
		return false
	}

	s.seq++
	frame.Seq = s.seq
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}

	s.out.Publish(frame)
	s.captured.Add(1)
	s.lastFrameAt.Store(frame.CapturedAt.UnixNano())
	s.fps.Tick(frame.CapturedAt)
	return true
}

// Stats returns the capture counters.
func (s *Service) Stats() Stats {
	st := Stats{
		FramesCaptured: s.captured.Load(),
		Unavailable:    s.unavailable.Load(),
		Errors:         s.errors.Load(),
		FPS:            s.fps.Rate(),
	}
	if ns := s.lastFrameAt.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	return st
}
