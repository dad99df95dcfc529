package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunState reports whether the capture and inference loops are alive.
type RunState interface {
	Running() bool
}

type HealthHandler struct {
	WorkerID string
	Version  string
	Device   string
	state    RunState
}

func NewHealthHandler(workerID, version, device string, state RunState) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, Device: device, state: state}
}

type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	WorkerID string `json:"worker_id" example:"firewatch-1"`
	Device   string `json:"device" example:"cpu"`
	Pipeline string `json:"pipeline" example:"running"`
}

// @Summary Health check
// @Description Check if the worker is healthy and its pipeline is running
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:   "healthy",
		WorkerID: h.WorkerID,
		Device:   h.Device,
		Pipeline: "running",
	}
	if h.state != nil && !h.state.Running() {
		resp.Status = "degraded"
		resp.Pipeline = "stopped"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
