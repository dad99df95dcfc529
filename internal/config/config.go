package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Compute device preferences.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Detector backends.
const (
	DetectorDNN         = "dnn"
	DetectorGRPC        = "grpc"
	DetectorPassthrough = "passthrough"
)

// JPEG encoder preferences.
const (
	EncoderAuto   = "auto"
	EncoderTurbo  = "turbo"
	EncoderOpenCV = "opencv"
	EncoderStd    = "std"
)

// Image processing backends for resize and overlay drawing.
const (
	RenderOpenCV = "opencv"
	RenderGo     = "go"
)

// Telemetry backends.
const (
	TelemetryHTTP = "http"
	TelemetryNATS = "nats"
	TelemetryNone = "none"
)

// SourceTestPattern selects the synthetic frame source instead of a device.
const SourceTestPattern = "testpattern"

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string
	StaticDir   string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Video source
	VideoSource   string
	CaptureWidth  int
	CaptureHeight int
	CaptureFPS    int

	// Pipeline pacing
	MaxInferenceFPS float64 // R_inf
	StreamFPS       float64 // R_out
	FrameSkip       int     // run inference on 1 of every N paced iterations
	CaptureBackoff  time.Duration
	EmptySlotDelay  time.Duration

	// Inference
	DetectorBackend     string
	ImgMaxWidth         int // downscale ceiling, 0 disables
	DetectionConfidence float64
	NMSThreshold        float64
	MaxDetections       int
	ComputeDevice       string
	CPUThreads          int
	ModelPath           string
	ModelClasses        []string
	ModelInputSize      int

	// Remote detector
	AIGRPCURL string
	AITimeout time.Duration

	// Encoding and rendering
	JPEGQuality   int
	JPEGEncoder   string
	RenderBackend string

	// Telemetry
	TelemetryBackend       string
	TelemetryURL           string
	TelemetryChannels      []string
	TelemetryTimeout       time.Duration
	TelemetrySubjectPrefix string

	// NATS (detection events, telemetry request/reply)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int

	// Detection events via NATS
	AlertsSubject  string
	AlertsCooldown time.Duration

	// Stats push (websocket) and NATS stats responder
	StatsInterval time.Duration
	StatsSubject  string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "firewatch-1"),
		Port:        getEnvInt("PORT", 5000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		StaticDir:   getEnv("STATIC_DIR", "./static"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Video source
		VideoSource:   getEnv("VIDEO_SOURCE", "0"),
		CaptureWidth:  getEnvInt("CAPTURE_WIDTH", 640),
		CaptureHeight: getEnvInt("CAPTURE_HEIGHT", 480),
		CaptureFPS:    getEnvInt("CAPTURE_FPS", 30),

		// Pipeline pacing
		MaxInferenceFPS: getEnvFloat("MAX_INFERENCE_FPS", 30),
		StreamFPS:       getEnvFloat("STREAM_FPS", 30),
		FrameSkip:       getEnvInt("FRAME_SKIP", 2),
		CaptureBackoff:  getEnvDuration("CAPTURE_BACKOFF", 5*time.Millisecond),
		EmptySlotDelay:  getEnvDuration("EMPTY_SLOT_DELAY", 5*time.Millisecond),

		// Inference
		DetectorBackend:     strings.ToLower(getEnv("DETECTOR_BACKEND", DetectorDNN)),
		ImgMaxWidth:         getEnvInt("IMG_MAX_WIDTH", 960),
		DetectionConfidence: getEnvFloat("DETECTION_CONFIDENCE", 0.25),
		NMSThreshold:        getEnvFloat("NMS_THRESHOLD", 0.45),
		MaxDetections:       getEnvInt("MAX_DETECTIONS", 50),
		ComputeDevice:       getComputeDevice(),
		CPUThreads:          getEnvInt("CPU_THREADS", 0),
		ModelPath:           getEnv("MODEL_PATH", "fire_smoke_yolo11s.onnx"),
		ModelClasses:        getEnvList("MODEL_CLASSES", []string{"fire", "smoke"}),
		ModelInputSize:      getEnvInt("MODEL_INPUT_SIZE", 640),

		// Remote detector
		AIGRPCURL: getEnv("AI_GRPC_URL", "localhost:50052"),
		AITimeout: getEnvDuration("AI_TIMEOUT", 5*time.Second),

		// Encoding and rendering
		JPEGQuality:   getEnvInt("JPEG_QUALITY", 70),
		JPEGEncoder:   strings.ToLower(getEnv("JPEG_ENCODER", EncoderAuto)),
		RenderBackend: strings.ToLower(getEnv("RENDER_BACKEND", RenderOpenCV)),

		// Telemetry
		TelemetryBackend:       strings.ToLower(getEnv("TELEMETRY_BACKEND", TelemetryHTTP)),
		TelemetryURL:           getEnv("TELEMETRY_URL", "http://localhost:8081"),
		TelemetryChannels:      getEnvList("TELEMETRY_CHANNELS", []string{"temperature", "humidity", "smoke", "co"}),
		TelemetryTimeout:       getEnvDuration("TELEMETRY_TIMEOUT", 1500*time.Millisecond),
		TelemetrySubjectPrefix: getEnv("TELEMETRY_SUBJECT_PREFIX", "telemetry"),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited

		// Detection events
		AlertsSubject:  getEnv("ALERTS_SUBJECT", "firewatch.detections"),
		AlertsCooldown: getEnvDuration("ALERTS_COOLDOWN", 10*time.Second),

		StatsInterval: getEnvDuration("STATS_INTERVAL", time.Second),
		StatsSubject:  getEnv("STATS_SUBJECT", "firewatch.stats"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.MaxInferenceFPS <= 0 {
		return fmt.Errorf("MAX_INFERENCE_FPS must be positive, got %v", c.MaxInferenceFPS)
	}
	if c.StreamFPS <= 0 {
		return fmt.Errorf("STREAM_FPS must be positive, got %v", c.StreamFPS)
	}
	if c.FrameSkip < 1 {
		return fmt.Errorf("FRAME_SKIP must be >= 1, got %d", c.FrameSkip)
	}
	if c.CaptureBackoff <= 0 {
		return fmt.Errorf("CAPTURE_BACKOFF must be positive, got %v", c.CaptureBackoff)
	}
	if c.EmptySlotDelay <= 0 {
		return fmt.Errorf("EMPTY_SLOT_DELAY must be positive, got %v", c.EmptySlotDelay)
	}
	if c.ImgMaxWidth < 0 {
		return fmt.Errorf("IMG_MAX_WIDTH must be >= 0, got %d", c.ImgMaxWidth)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be within 1..100, got %d", c.JPEGQuality)
	}
	if c.DetectionConfidence < 0 || c.DetectionConfidence > 1 {
		return fmt.Errorf("DETECTION_CONFIDENCE must be within 0..1, got %v", c.DetectionConfidence)
	}
	switch c.ComputeDevice {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
	default:
		return fmt.Errorf("unknown COMPUTE_DEVICE %q", c.ComputeDevice)
	}
	switch c.DetectorBackend {
	case DetectorDNN, DetectorGRPC, DetectorPassthrough:
	default:
		return fmt.Errorf("unknown DETECTOR_BACKEND %q", c.DetectorBackend)
	}
	switch c.JPEGEncoder {
	case EncoderAuto, EncoderTurbo, EncoderOpenCV, EncoderStd:
	default:
		return fmt.Errorf("unknown JPEG_ENCODER %q", c.JPEGEncoder)
	}
	switch c.RenderBackend {
	case RenderOpenCV, RenderGo:
	default:
		return fmt.Errorf("unknown RENDER_BACKEND %q", c.RenderBackend)
	}
	switch c.TelemetryBackend {
	case TelemetryHTTP, TelemetryNone:
	case TelemetryNATS:
		if !c.NatsEnabled {
			return fmt.Errorf("TELEMETRY_BACKEND=nats requires NATS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown TELEMETRY_BACKEND %q", c.TelemetryBackend)
	}
	return nil
}

// EffectiveInferenceFPS is the upper bound on inference rate once pacing and
// frame skip are both applied. The two controls compose multiplicatively.
func (c *Config) EffectiveInferenceFPS() float64 {
	skip := c.FrameSkip
	if skip < 1 {
		skip = 1
	}
	return c.MaxInferenceFPS / float64(skip)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getComputeDevice honours COMPUTE_DEVICE, falling back to the legacy USE_CUDA switch.
func getComputeDevice() string {
	if value := os.Getenv("COMPUTE_DEVICE"); value != "" {
		return strings.ToLower(value)
	}
	if useCUDA, ok := os.LookupEnv("USE_CUDA"); ok {
		if parsed, err := strconv.ParseBool(useCUDA); err == nil {
			if parsed {
				return DeviceCUDA
			}
			return DeviceCPU
		}
	}
	return DeviceAuto
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
