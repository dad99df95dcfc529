package services

import (
	"context"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/helpers"
	"firewatch-worker-go/internal/services/detection"
	"firewatch-worker-go/internal/services/frameprocessing"
	"firewatch-worker-go/internal/services/jpegenc"
	"firewatch-worker-go/internal/services/jpegenc/turbo"
	"firewatch-worker-go/internal/services/messaging"
	"firewatch-worker-go/internal/services/pipeline"
	"firewatch-worker-go/internal/services/postprocessing"
	"firewatch-worker-go/internal/services/publisher"
	"firewatch-worker-go/internal/services/streamcapture"
	"firewatch-worker-go/internal/services/telemetry"
	"firewatch-worker-go/internal/services/vision"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config         *config.Config
	Device         string
	Encoder        jpegenc.Encoder
	Pipeline       *pipeline.Pipeline
	Publisher      *publisher.Service
	Telemetry      *telemetry.Service
	Messaging      *messaging.Service
	PostProcessing *postprocessing.Service

	detector io.Closer
	statsSub *nats.Subscription
}

// NewServiceContainer builds every service. Any error here is a fatal
// startup condition: the source cannot open, a mandated CUDA device is
// missing or the model cannot load.
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{Config: cfg}

	device, err := detection.SelectDevice(ctx, cfg.DetectorBackend, cfg.ComputeDevice, detection.QueryCUDA, vision.CUDADeviceCount)
	if err != nil {
		return nil, err
	}
	sc.Device = device

	sc.Encoder = NewEncoder(cfg.JPEGEncoder)
	log.Info().Str("encoder", sc.Encoder.Name()).Int("quality", cfg.JPEGQuality).Msg("JPEG encoder selected")

	if cfg.NatsEnabled {
		sc.Messaging, err = messaging.NewService(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		sc.PostProcessing, err = postprocessing.NewService(cfg, sc.Messaging)
		if err != nil {
			sc.closePartial(context.Background())
			return nil, err
		}
	}

	sc.Telemetry, err = newTelemetry(cfg, sc.Messaging)
	if err != nil {
		sc.closePartial(context.Background())
		return nil, err
	}

	detector, err := sc.newDetector(cfg, device)
	if err != nil {
		sc.closePartial(context.Background())
		return nil, err
	}

	source, err := newSource(cfg)
	if err != nil {
		sc.closePartial(context.Background())
		return nil, err
	}

	scaler, annotator := newRenderer(cfg)
	sc.Pipeline, err = pipeline.New(cfg, pipeline.Deps{
		Source:    source,
		Detector:  detector,
		Scaler:    scaler,
		Annotator: annotator,
		Device:    device,
	})
	if err != nil {
		source.Close()
		sc.closePartial(context.Background())
		return nil, err
	}
	if sc.PostProcessing != nil {
		sc.Pipeline.OnAnnotated(sc.PostProcessing.HandleAnnotated)
	}

	sc.Publisher = publisher.NewService(cfg, sc.Encoder)
	return sc, nil
}

// Start launches the pipeline and the NATS stats responder.
func (sc *ServiceContainer) Start() error {
	sc.Pipeline.Start()

	if sc.Messaging != nil {
		subject := sc.Config.StatsSubject + "." + sc.Config.WorkerID
		sub, err := sc.Messaging.Serve(subject, func([]byte) (interface{}, error) {
			return sc.Pipeline.Stats(), nil
		})
		if err != nil {
			return fmt.Errorf("failed to serve stats on %s: %w", subject, err)
		}
		sc.statsSub = sub
		log.Info().Str("subject", subject).Msg("Serving pipeline stats over NATS")
	}
	return nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	if sc.statsSub != nil {
		_ = sc.statsSub.Unsubscribe()
	}

	done := make(chan struct{})
	go func() {
		sc.Pipeline.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// The inference loop may still be inside the detector, so it stays open.
		log.Warn().Msg("Timed out waiting for pipeline to stop")
		sc.detector = nil
	}

	if sc.PostProcessing != nil {
		_ = sc.PostProcessing.Shutdown(ctx)
	}
	sc.closePartial(ctx)
	return nil
}

func (sc *ServiceContainer) closePartial(ctx context.Context) {
	if sc.detector != nil {
		if err := sc.detector.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close detector")
		}
		sc.detector = nil
	}
	if sc.Messaging != nil {
		_ = sc.Messaging.Shutdown(ctx)
	}
}

// NewEncoder returns the preferred JPEG encoder with fallbacks behind it.
func NewEncoder(preference string) jpegenc.Encoder {
	switch preference {
	case config.EncoderTurbo:
		return jpegenc.Chain(turbo.New(), jpegenc.Std{})
	case config.EncoderOpenCV:
		return jpegenc.Chain(vision.Encoder{}, jpegenc.Std{})
	case config.EncoderStd:
		return jpegenc.Std{}
	default:
		return jpegenc.Chain(turbo.New(), vision.Encoder{}, jpegenc.Std{})
	}
}

func (sc *ServiceContainer) newDetector(cfg *config.Config, device string) (frameprocessing.Detector, error) {
	switch cfg.DetectorBackend {
	case config.DetectorGRPC:
		client, err := detection.NewClient(cfg, sc.Encoder)
		if err != nil {
			return nil, err
		}
		sc.detector = client
		return client, nil
	case config.DetectorPassthrough:
		log.Warn().Msg("Passthrough detector selected, frames are annotated without detections")
		return detection.Passthrough{Device: device}, nil
	default:
		dnn, err := vision.NewDNNDetector(cfg, device)
		if err != nil {
			return nil, err
		}
		sc.detector = dnn
		return dnn, nil
	}
}

func newSource(cfg *config.Config) (streamcapture.FrameSource, error) {
	if cfg.VideoSource == config.SourceTestPattern {
		log.Info().Int("width", cfg.CaptureWidth).Int("height", cfg.CaptureHeight).Msg("Using synthetic test pattern source")
		return streamcapture.NewTestPattern(cfg.CaptureWidth, cfg.CaptureHeight, cfg.CaptureFPS), nil
	}
	cam, err := vision.OpenCamera(cfg)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func newRenderer(cfg *config.Config) (frameprocessing.Scaler, frameprocessing.Annotator) {
	if cfg.RenderBackend == config.RenderGo {
		return helpers.NewResizer(), helpers.NewOverlay()
	}
	return vision.Resizer{}, vision.NewAnnotator()
}

func newTelemetry(cfg *config.Config, bus *messaging.Service) (*telemetry.Service, error) {
	var source telemetry.Source
	switch cfg.TelemetryBackend {
	case config.TelemetryHTTP:
		source = telemetry.NewHTTPSource(cfg.TelemetryURL, cfg.TelemetryTimeout)
	case config.TelemetryNATS:
		if bus == nil {
			return nil, fmt.Errorf("TELEMETRY_BACKEND=nats requires NATS_ENABLED=true")
		}
		source = telemetry.NewNATSSource(bus, cfg.TelemetrySubjectPrefix)
	}
	log.Info().Str("backend", cfg.TelemetryBackend).Strs("channels", cfg.TelemetryChannels).Msg("Telemetry configured")
	return telemetry.NewService(source, cfg.TelemetryChannels, cfg.TelemetryTimeout), nil
}

