// Package frameprocessing runs the inference loop: it paces itself to the
// configured rate, takes the freshest raw frame, runs the detector on one
// out of every N frames and publishes the annotated result.
package frameprocessing

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/scheduling"
)

// minInferenceDuration keeps the reported rate finite for instant detectors.
const minInferenceDuration = time.Microsecond

// CaptionOrigin is where the inference rate caption is drawn.
var CaptionOrigin = image.Pt(20, 40)

// Detector runs the model on one frame. The loop is its only caller.
type Detector interface {
	Detect(ctx context.Context, frame *models.Frame, params models.DetectParams) (*models.DetectionResult, error)
}

// Scaler shrinks frames wider than maxWidth, preserving aspect ratio.
type Scaler interface {
	Downscale(frame *models.Frame, maxWidth int) (*models.Frame, error)
}

// Annotator burns boxes and captions into a frame in place.
type Annotator interface {
	DrawDetections(frame *models.Frame, detections []models.Detection)
	DrawLabel(frame *models.Frame, text string, pt image.Point)
}

// FrameReader yields an isolated copy of the latest raw frame.
type FrameReader interface {
	Read() (*models.Frame, bool)
}

// AnnotatedPublisher receives every annotated frame.
type AnnotatedPublisher interface {
	Publish(frame *models.AnnotatedFrame)
}

// Observer is notified after each publish. It must not modify the frame.
type Observer func(frame *models.AnnotatedFrame)

// Service is the inference loop.
type Service struct {
	cfg       *config.Config
	in        FrameReader
	out       AnnotatedPublisher
	detector  Detector
	scaler    Scaler
	annotator Annotator
	stop      *scheduling.StopSignal

	pacer     *scheduling.Pacer
	params    models.DetectParams
	skip      uint64
	counter   uint64
	observers []Observer

	iterations atomic.Uint64
	emptyReads atomic.Uint64
	skipped    atomic.Uint64
	inferred   atomic.Uint64
	failures   atomic.Uint64

	mu        sync.Mutex
	latencies *LatencyWindow
	lastFPS   float64
	lastAt    time.Time
	device    string
}

// NewService builds the loop. device is the resolved compute device passed
// to the detector on every call.
func NewService(cfg *config.Config, in FrameReader, out AnnotatedPublisher, detector Detector, scaler Scaler, annotator Annotator, device string, stop *scheduling.StopSignal) *Service {
	skip := cfg.FrameSkip
	if skip < 1 {
		skip = 1
	}
	return &Service{
		cfg:       cfg,
		in:        in,
		out:       out,
		detector:  detector,
		scaler:    scaler,
		annotator: annotator,
		stop:      stop,
		pacer:     scheduling.NewPacer(cfg.MaxInferenceFPS),
		params: models.DetectParams{
			Confidence:    float32(cfg.DetectionConfidence),
			NMSThreshold:  float32(cfg.NMSThreshold),
			MaxDetections: cfg.MaxDetections,
			Device:        device,
		},
		skip:      uint64(skip),
		latencies: NewLatencyWindow(120),
		device:    device,
	}
}

// OnAnnotated registers an observer. Call before Run.
func (s *Service) OnAnnotated(o Observer) {
	s.observers = append(s.observers, o)
}

// Run executes the loop until the stop signal is set. An inference already
// in flight is allowed to finish.
func (s *Service) Run() {
	log.Info().
		Float64("max_inference_fps", s.cfg.MaxInferenceFPS).
		Uint64("frame_skip", s.skip).
		Float64("effective_inference_fps", s.cfg.EffectiveInferenceFPS()).
		Str("device", s.device).
		Msg("Inference loop started")

	for !s.stop.Stopped() {
		if !s.pacer.Wait(s.stop.Done()) {
			break
		}
		s.iterate()
	}

	log.Info().Uint64("frames_inferred", s.inferred.Load()).Msg("Inference loop stopped")
}

// iterate performs one paced iteration.
func (s *Service) iterate() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Msg("Inference panic recovered, frame dropped")
			s.failures.Add(1)
		}
	}()

	s.iterations.Add(1)

	frame, ok := s.in.Read()
	if !ok {
		s.emptyReads.Add(1)
		scheduling.Sleep(s.stop.Done(), s.cfg.EmptySlotDelay)
		return
	}

	s.counter++
	if s.skip > 1 && s.counter%s.skip != 0 {
		s.skipped.Add(1)
		return
	}

	annotated, err := s.process(frame)
	if err != nil {
		s.failures.Add(1)
		log.Debug().Err(err).Uint64("seq", frame.Seq).Msg("Inference failed, frame dropped")
		return
	}

	s.out.Publish(annotated)
	s.inferred.Add(1)

	for _, o := range s.observers {
		o(annotated)
	}
}

// process downscales, runs the detector and renders the overlay.
func (s *Service) process(frame *models.Frame) (*models.AnnotatedFrame, error) {
	scaled, err := s.scaler.Downscale(frame, s.cfg.ImgMaxWidth)
	if err != nil {
		return nil, fmt.Errorf("downscale: %w", err)
	}

	ctx := context.Background()
	if s.cfg.AITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AITimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.detector.Detect(ctx, scaled, s.params)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("detect: nil result")
	}

	fps := InferenceFPS(duration)
	s.record(duration, fps)

	// Slot reads are private copies, so the scaled frame can be drawn on directly.
	canvas := scaled
	if result.Overlay.Valid() {
		canvas = result.Overlay
	} else {
		s.annotator.DrawDetections(canvas, result.Detections)
	}
	s.annotator.DrawLabel(canvas, Caption(fps), CaptionOrigin)

	canvas.Seq = frame.Seq
	canvas.CapturedAt = frame.CapturedAt

	device := result.Device
	if device == "" {
		device = s.device
	}

	return &models.AnnotatedFrame{
		Frame:             *canvas,
		SourceSeq:         frame.Seq,
		Detections:        result.Detections,
		InferenceFPS:      fps,
		InferenceDuration: duration,
		Device:            device,
	}, nil
}

func (s *Service) record(d time.Duration, fps float64) {
	s.mu.Lock()
	s.latencies.Add(d)
	s.lastFPS = fps
	s.lastAt = time.Now()
	s.mu.Unlock()
}

// InferenceFPS converts one inference duration into a rate.
func InferenceFPS(d time.Duration) float64 {
	if d < minInferenceDuration {
		d = minInferenceDuration
	}
	return 1 / d.Seconds()
}

// Caption is the text rendered onto every annotated frame.
func Caption(fps float64) string {
	return fmt.Sprintf("INF FPS: %.1f", fps)
}
