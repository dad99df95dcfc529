package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"firewatch-worker-go/internal/logging"
	"firewatch-worker-go/internal/models"
)

// SensorReader takes one snapshot of every telemetry channel.
type SensorReader interface {
	Snapshot(ctx context.Context) models.SensorSnapshot
}

type SensorHandler struct {
	reader SensorReader
}

func NewSensorHandler(reader SensorReader) *SensorHandler {
	return &SensorHandler{reader: reader}
}

// @Summary Sensor readings
// @Description One numeric field per configured telemetry channel. Channels that fail read 0.
// @Tags telemetry
// @Produce json
// @Success 200 {object} map[string]number
// @Router /sensor_data [get]
func (h *SensorHandler) SensorData(c *gin.Context) {
	snap := h.reader.Snapshot(c.Request.Context())
	if len(snap.Failed) > 0 {
		logging.Debug(c).Strs("failed", snap.Failed).Msg("Telemetry channels defaulted to 0")
	}
	values := snap.Values
	if values == nil {
		values = map[string]float64{}
	}
	c.JSON(http.StatusOK, values)
}
