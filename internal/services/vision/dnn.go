package vision

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/detection"
)

// DNNDetector runs a YOLOv8/YOLO11 ONNX export through cv::dnn. It is not
// safe for concurrent use; the inference loop is its only caller.
type DNNDetector struct {
	net       gocv.Net
	classes   []string
	inputSize int
	device    string
}

// NewDNNDetector loads the model and binds it to device. A model that fails
// to load is a startup error.
func NewDNNDetector(cfg *config.Config, device string) (*DNNDetector, error) {
	if err := detection.RequireLibraryCUDA(device, CUDADeviceCount); err != nil {
		return nil, err
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model weights from %s", cfg.ModelPath)
	}

	if device == config.DeviceCUDA {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDAFP16)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	size := cfg.ModelInputSize
	if size <= 0 {
		size = 640
	}

	log.Info().
		Str("model", cfg.ModelPath).
		Str("device", device).
		Int("input_size", size).
		Strs("classes", cfg.ModelClasses).
		Msg("Detection model loaded")

	return &DNNDetector{
		net:       net,
		classes:   cfg.ModelClasses,
		inputSize: size,
		device:    device,
	}, nil
}

func (d *DNNDetector) Detect(ctx context.Context, frame *models.Frame, params models.DetectParams) (*models.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := frameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read model output: %w", err)
	}

	scaleX := float64(frame.Width) / float64(d.inputSize)
	scaleY := float64(frame.Height) / float64(d.inputSize)
	cands := detection.DecodeYOLO(data, dims[1], dims[2], params.Confidence, scaleX, scaleY, frame.Width, frame.Height)

	res := &models.DetectionResult{Device: d.device}
	if len(cands) == 0 {
		return res, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Score
	}
	keep := gocv.NMSBoxes(boxes, scores, params.Confidence, params.NMSThreshold)

	for _, idx := range keep {
		c := cands[idx]
		res.Detections = append(res.Detections, models.Detection{
			ClassID: c.ClassID,
			Label:   detection.ClassLabel(d.classes, c.ClassID),
			Score:   c.Score,
			BBox:    [4]int{c.Box.Min.X, c.Box.Min.Y, c.Box.Max.X, c.Box.Max.Y},
		})
		if params.MaxDetections > 0 && len(res.Detections) >= params.MaxDetections {
			break
		}
	}
	return res, nil
}

func (d *DNNDetector) Close() error {
	return d.net.Close()
}
