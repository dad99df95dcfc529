package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		MaxInferenceFPS:     30,
		StreamFPS:           30,
		FrameSkip:           1,
		CaptureBackoff:      5 * time.Millisecond,
		EmptySlotDelay:      5 * time.Millisecond,
		ImgMaxWidth:         960,
		JPEGQuality:         70,
		DetectionConfidence: 0.25,
		ComputeDevice:       DeviceAuto,
		DetectorBackend:     DetectorPassthrough,
		JPEGEncoder:         EncoderStd,
		RenderBackend:       RenderGo,
		TelemetryBackend:    TelemetryNone,
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"COMPUTE_DEVICE", "USE_CUDA", "PORT", "MAX_INFERENCE_FPS", "STREAM_FPS",
		"FRAME_SKIP", "IMG_MAX_WIDTH", "JPEG_QUALITY", "DETECTION_CONFIDENCE", "CAPTURE_BACKOFF", "TELEMETRY_CHANNELS"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 30.0, cfg.MaxInferenceFPS)
	assert.Equal(t, 30.0, cfg.StreamFPS)
	assert.Equal(t, 2, cfg.FrameSkip)
	assert.Equal(t, 960, cfg.ImgMaxWidth)
	assert.Equal(t, 70, cfg.JPEGQuality)
	assert.Equal(t, 0.25, cfg.DetectionConfidence)
	assert.Equal(t, 5*time.Millisecond, cfg.CaptureBackoff)
	assert.Equal(t, []string{"temperature", "humidity", "smoke", "co"}, cfg.TelemetryChannels)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_INFERENCE_FPS", "12.5")
	t.Setenv("FRAME_SKIP", "3")
	t.Setenv("TELEMETRY_CHANNELS", " temp , ,gas")
	t.Setenv("JPEG_ENCODER", "TURBO")
	t.Setenv("AI_TIMEOUT", "250ms")

	cfg := Load()
	assert.Equal(t, 12.5, cfg.MaxInferenceFPS)
	assert.Equal(t, 3, cfg.FrameSkip)
	assert.Equal(t, []string{"temp", "gas"}, cfg.TelemetryChannels)
	assert.Equal(t, EncoderTurbo, cfg.JPEGEncoder)
	assert.Equal(t, 250*time.Millisecond, cfg.AITimeout)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("STREAM_FPS", "fast")
	cfg := Load()
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 30.0, cfg.StreamFPS)
}

func TestComputeDeviceLegacySwitch(t *testing.T) {
	t.Setenv("COMPUTE_DEVICE", "")
	t.Setenv("USE_CUDA", "1")
	assert.Equal(t, DeviceCUDA, Load().ComputeDevice)

	t.Setenv("USE_CUDA", "0")
	assert.Equal(t, DeviceCPU, Load().ComputeDevice)

	t.Setenv("COMPUTE_DEVICE", "CPU")
	t.Setenv("USE_CUDA", "1")
	assert.Equal(t, DeviceCPU, Load().ComputeDevice)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(c *Config){
		"zero inference rate":  func(c *Config) { c.MaxInferenceFPS = 0 },
		"zero stream rate":     func(c *Config) { c.StreamFPS = 0 },
		"skip below one":       func(c *Config) { c.FrameSkip = 0 },
		"zero capture backoff": func(c *Config) { c.CaptureBackoff = 0 },
		"negative slot delay":  func(c *Config) { c.EmptySlotDelay = -time.Millisecond },
		"negative max width":   func(c *Config) { c.ImgMaxWidth = -1 },
		"quality too high":     func(c *Config) { c.JPEGQuality = 101 },
		"confidence above 1":   func(c *Config) { c.DetectionConfidence = 1.5 },
		"unknown device":       func(c *Config) { c.ComputeDevice = "tpu" },
		"unknown backend":      func(c *Config) { c.DetectorBackend = "torch" },
		"unknown encoder":      func(c *Config) { c.JPEGEncoder = "png" },
		"unknown renderer":     func(c *Config) { c.RenderBackend = "vulkan" },
		"nats telemetry off":   func(c *Config) { c.TelemetryBackend = TelemetryNATS },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestEffectiveInferenceFPS(t *testing.T) {
	c := validConfig()
	c.MaxInferenceFPS = 30
	c.FrameSkip = 2
	assert.InDelta(t, 15.0, c.EffectiveInferenceFPS(), 1e-9)

	c.FrameSkip = 0
	assert.InDelta(t, 30.0, c.EffectiveInferenceFPS(), 1e-9)
}
