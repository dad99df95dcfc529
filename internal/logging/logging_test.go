package logging

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"

	"firewatch-worker-go/internal/config"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestGinContextFields(t *testing.T) {
	buf := captureLogs(t)
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(KeyRequestID, "req-1")
	c.Set(KeyFeed, "annotated")
	c.Set(KeyStartTime, time.Now().Add(-time.Second))

	Info(c).Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"feed":"annotated"`)
	assert.Contains(t, out, `"duration":`)
}

func TestGinContextNil(t *testing.T) {
	buf := captureLogs(t)
	Warn(nil).Msg("plain")
	assert.NotContains(t, buf.String(), "request_id")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestServiceLogger(t *testing.T) {
	buf := captureLogs(t)
	logger := WithFeed(NewServiceLogger(&config.Config{WorkerID: "w1"}, "publisher"), "raw")
	logger.Info().Msg("x")

	out := buf.String()
	assert.Contains(t, out, `"service":"publisher"`)
	assert.Contains(t, out, `"worker_id":"w1"`)
	assert.Contains(t, out, `"feed":"raw"`)
}
