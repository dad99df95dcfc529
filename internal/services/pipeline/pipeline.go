// Package pipeline owns the two slots and the two long-lived loops that
// connect them: capture feeds the raw slot, inference reads it and feeds the
// annotated slot. Streams read either slot through a Reader.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/frameprocessing"
	"firewatch-worker-go/internal/services/publisher/mjpeg"
	"firewatch-worker-go/internal/services/scheduling"
	"firewatch-worker-go/internal/services/slot"
	"firewatch-worker-go/internal/services/streamcapture"
)

// Feed selects which slot a stream reads.
type Feed string

const (
	FeedRaw       Feed = "raw"
	FeedAnnotated Feed = "annotated"
)

// Deps are the replaceable collaborators of the pipeline.
type Deps struct {
	Source    streamcapture.FrameSource
	Detector  frameprocessing.Detector
	Scaler    frameprocessing.Scaler
	Annotator frameprocessing.Annotator
	Device    string
}

// Pipeline wires capture and inference around the raw and annotated slots.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	raw       *slot.Slot[models.Frame]
	annotated *slot.Slot[models.AnnotatedFrame]
	stop      *scheduling.StopSignal

	capture   *streamcapture.Service
	inference *frameprocessing.Service

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline: frame source is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("pipeline: detector is required")
	}
	if deps.Scaler == nil || deps.Annotator == nil {
		return nil, fmt.Errorf("pipeline: scaler and annotator are required")
	}

	p := &Pipeline{
		cfg:       cfg,
		deps:      deps,
		raw:       slot.New[models.Frame]("raw", (*models.Frame).Clone),
		annotated: slot.New[models.AnnotatedFrame]("annotated", (*models.AnnotatedFrame).Clone),
		stop:      scheduling.NewStopSignal(),
	}
	p.capture = streamcapture.NewService(cfg, deps.Source, p.raw, p.stop)
	p.inference = frameprocessing.NewService(cfg, p.raw, p.annotated, deps.Detector, deps.Scaler, deps.Annotator, deps.Device, p.stop)
	return p, nil
}

// OnAnnotated registers an observer of every annotated publish. Call before Start.
func (p *Pipeline) OnAnnotated(o frameprocessing.Observer) {
	p.inference.OnAnnotated(o)
}

// Start launches the capture and inference goroutines. Later calls are no-ops.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		effective := p.cfg.EffectiveInferenceFPS()
		ev := log.Info()
		if effective < 1 {
			ev = log.Warn()
		}
		ev.Float64("max_inference_fps", p.cfg.MaxInferenceFPS).
			Int("frame_skip", p.cfg.FrameSkip).
			Float64("effective_inference_fps", effective).
			Float64("stream_fps", p.cfg.StreamFPS).
			Msg("Starting frame pipeline")

		p.started.Store(true)
		p.wg.Add(2)
		go func() {
			defer p.wg.Done()
			p.capture.Run()
		}()
		go func() {
			defer p.wg.Done()
			p.inference.Run()
		}()
	})
}

// Stop sets the stop flag, waits for both loops and releases the source.
// In-flight device reads and inference calls finish first.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stop.Stop()
		p.wg.Wait()
		if err := p.deps.Source.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close frame source")
		}
		log.Info().Msg("Frame pipeline stopped")
	})
}

// Done is closed once Stop has been requested.
func (p *Pipeline) Done() <-chan struct{} {
	return p.stop.Done()
}

// Reader returns a per-connection view of one feed.
func (p *Pipeline) Reader(feed Feed) (mjpeg.FrameReader, error) {
	switch feed {
	case FeedRaw:
		return rawReader{p.raw}, nil
	case FeedAnnotated:
		return annotatedReader{p.annotated}, nil
	default:
		return nil, fmt.Errorf("unknown feed %q", feed)
	}
}

// LatestAnnotated returns a copy of the newest annotated frame.
func (p *Pipeline) LatestAnnotated() (*models.AnnotatedFrame, bool) {
	return p.annotated.Read()
}

type rawReader struct {
	s *slot.Slot[models.Frame]
}

func (r rawReader) ReadFrame() (*models.Frame, uint64, bool) {
	return r.s.ReadVersion()
}

type annotatedReader struct {
	s *slot.Slot[models.AnnotatedFrame]
}

func (r annotatedReader) ReadFrame() (*models.Frame, uint64, bool) {
	a, gen, ok := r.s.ReadVersion()
	if !ok {
		return nil, 0, false
	}
	return &a.Frame, gen, true
}
