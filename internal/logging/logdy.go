package logging

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"

	"github.com/logdyhq/logdy-core/logdy"
)

// logdyWriter forwards log lines to the embedded Logdy UI. Only info and
// above reach it; per-viewer stream logs stay on the console.
type logdyWriter struct {
	logger logdy.Logdy
	min    zerolog.Level
}

func (w *logdyWriter) Write(p []byte) (n int, err error) {
	w.logger.LogString(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (w *logdyWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level < w.min {
		return len(p), nil
	}
	return w.Write(p)
}

// StartLogdy starts the embedded Logdy web UI and returns a writer to tee
// logs into, plus the UI URL.
func StartLogdy(cfg *config.Config) (io.Writer, string, error) {
	if cfg.LogdyPort <= 0 || cfg.LogdyPort == cfg.Port {
		return nil, "", fmt.Errorf("invalid LOGDY_PORT %d", cfg.LogdyPort)
	}
	portStr := strconv.Itoa(cfg.LogdyPort)
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:   cfg.LogdyHost,
		ServerPort: portStr,
	}, nil)

	url := fmt.Sprintf("http://%s:%s", cfg.LogdyHost, portStr)
	log.Info().Str("url", url).Msg("Logdy UI available")
	return &logdyWriter{logger: ld, min: zerolog.InfoLevel}, url, nil
}
