package detection

import (
	"context"

	"firewatch-worker-go/internal/models"
)

// Passthrough reports no detections. It keeps the pipeline running end to
// end when no model is deployed.
type Passthrough struct {
	Device string
}

func (p Passthrough) Detect(context.Context, *models.Frame, models.DetectParams) (*models.DetectionResult, error) {
	return &models.DetectionResult{Device: p.Device}, nil
}
