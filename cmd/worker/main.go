package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/api"
	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/logging"
)

// @title Firewatch Worker API
// @version 1.0.0
// @description Fire and smoke detection worker: camera capture, paced YOLO inference and MJPEG streaming of raw and annotated feeds.
// @host localhost:5000
// @BasePath /
func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = log.Output(console)

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		if w, url, err := logging.StartLogdy(cfg); err != nil {
			log.Warn().Err(err).Msg("Logdy disabled")
		} else {
			log.Logger = log.Output(zerolog.MultiLevelWriter(console, w))
			log.Info().Str("url", url).Msg("Logs mirrored to Logdy")
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.CPUThreads > 0 {
		runtime.GOMAXPROCS(cfg.CPUThreads)
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("video_source", cfg.VideoSource).
		Str("detector", cfg.DetectorBackend).
		Str("compute_device", cfg.ComputeDevice).
		Float64("max_inference_fps", cfg.MaxInferenceFPS).
		Int("frame_skip", cfg.FrameSkip).
		Float64("effective_inference_fps", cfg.EffectiveInferenceFPS()).
		Float64("stream_fps", cfg.StreamFPS).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Msg("Starting Firewatch worker")

	// Camera, model and device failures are fatal here.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	server, err := api.NewServer(startupCtx, cfg)
	cancelStartup()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}
