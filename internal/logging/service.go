package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
)

// NewServiceLogger tags the global logger with the worker and the component name.
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	ctx := log.With().Str("service", service)
	if cfg != nil && cfg.WorkerID != "" {
		ctx = ctx.Str("worker_id", cfg.WorkerID)
	}
	return ctx.Logger()
}

// WithFeed tags a logger with the stream it serves.
func WithFeed(base zerolog.Logger, feed string) zerolog.Logger {
	return base.With().Str("feed", feed).Logger()
}
