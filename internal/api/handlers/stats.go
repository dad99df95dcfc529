package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"firewatch-worker-go/internal/logging"
)

// StatsFunc returns a JSON-serialisable snapshot.
type StatsFunc func() interface{}

type StatsHandler struct {
	pipeline  StatsFunc
	publisher StatsFunc
	interval  time.Duration
	upgrader  websocket.Upgrader
}

func NewStatsHandler(pipeline, publisher StatsFunc, interval time.Duration) *StatsHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatsHandler{
		pipeline:  pipeline,
		publisher: publisher,
		interval:  interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// @Summary Pipeline stats
// @Description Capture, inference and slot counters plus streaming viewers
// @Tags stats
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /pipeline/stats [get]
func (h *StatsHandler) PipelineStats(c *gin.Context) {
	resp := gin.H{
		"pipeline":  h.pipeline(),
		"timestamp": time.Now().Unix(),
	}
	if h.publisher != nil {
		resp["streaming"] = h.publisher()
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Live pipeline stats
// @Description Websocket that pushes pipeline stats every STATS_INTERVAL
// @Tags stats
// @Router /ws/stats [get]
func (h *StatsHandler) StatsWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c).Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads are only needed to notice the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(h.interval + 5*time.Second))
		if err := conn.WriteJSON(h.pipeline()); err != nil {
			logging.Debug(c).Err(err).Msg("Stats websocket closed")
			return
		}
		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
