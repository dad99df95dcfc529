// Package detection talks to detectors that live outside the process and
// resolves which compute device inference runs on.
package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/protobuf/types/known/structpb"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/jpegenc"
)

const (
	ServiceName  = "firewatch.detection.v1.DetectionService"
	DetectMethod = "/" + ServiceName + "/Detect"
	HealthMethod = "/" + ServiceName + "/HealthCheck"
)

// ErrBackoff is returned while the client waits out consecutive failures.
var ErrBackoff = errors.New("detection service in backoff after consecutive failures")

// Client runs inference on a remote detection service. Frames are sent as
// JPEG inside a google.protobuf.Struct; the reply carries the detections and
// the device the service ran on.
type Client struct {
	conn     *grpc.ClientConn
	encoder  jpegenc.Encoder
	quality  int
	timeout  time.Duration
	endpoint string

	mu               sync.Mutex
	consecutiveFails int
	lastFailTime     time.Time
	maxRetryBackoff  time.Duration
	now              func() time.Time
}

// NewClient dials cfg.AIGRPCURL. The connection is lazy, so an unreachable
// service only shows up as failed Detect calls.
func NewClient(cfg *config.Config, encoder jpegenc.Encoder) (*Client, error) {
	host, creds, err := ParseGRPCEndpoint(cfg.AIGRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI endpoint %s: %w", cfg.AIGRPCURL, err)
	}

	log.Info().
		Str("configured_endpoint", cfg.AIGRPCURL).
		Str("normalized_endpoint", host).
		Bool("use_tls", creds.Info().SecurityProtocol == "tls").
		Msg("Connecting to AI gRPC service")

	conn, err := grpc.NewClient(host, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AI service at %s: %w", host, err)
	}

	c := NewClientWithConn(conn, encoder, cfg.JPEGQuality, cfg.AITimeout)
	c.endpoint = host

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if device, err := c.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Str("ai_endpoint", host).Msg("Initial AI health check failed - will retry on next frame")
		} else {
			log.Info().Str("ai_endpoint", host).Str("device", device).Msg("AI service health check passed")
		}
	}()

	return c, nil
}

// NewClientWithConn wraps an existing connection.
func NewClientWithConn(conn *grpc.ClientConn, encoder jpegenc.Encoder, quality int, timeout time.Duration) *Client {
	return &Client{
		conn:            conn,
		encoder:         encoder,
		quality:         quality,
		timeout:         timeout,
		endpoint:        conn.Target(),
		maxRetryBackoff: 30 * time.Second,
		now:             time.Now,
	}
}

// Detect sends one frame for inference.
func (c *Client) Detect(ctx context.Context, frame *models.Frame, params models.DetectParams) (*models.DetectionResult, error) {
	if !c.shouldRetry() {
		return nil, ErrBackoff
	}

	jpg, err := c.encoder.Encode(frame, c.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame for detection: %w", err)
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"image":          jpg,
		"width":          frame.Width,
		"height":         frame.Height,
		"seq":            float64(frame.Seq),
		"confidence":     float64(params.Confidence),
		"nms_threshold":  float64(params.NMSThreshold),
		"max_detections": params.MaxDetections,
		"device":         params.Device,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build detection request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, DetectMethod, req, resp); err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	c.recordSuccess()

	return ParseDetections(resp, params), nil
}

// HealthCheck pings the service and returns the device it reports.
func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, HealthMethod, &structpb.Struct{}, resp); err != nil {
		return "", fmt.Errorf("detection service health check failed: %w", err)
	}
	return resp.GetFields()["device"].GetStringValue(), nil
}

// IsConnected reports whether the channel is usable or still coming up.
func (c *Client) IsConnected() bool {
	state := c.conn.GetState()
	return state == connectivity.Ready || state == connectivity.Idle || state == connectivity.Connecting
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// ParseDetections converts a Detect reply. Entries without a four-value bbox
// are ignored, as are scores under the requested confidence.
func ParseDetections(resp *structpb.Struct, params models.DetectParams) *models.DetectionResult {
	fields := resp.GetFields()
	res := &models.DetectionResult{Device: fields["device"].GetStringValue()}

	for _, item := range fields["detections"].GetListValue().GetValues() {
		d := item.GetStructValue().GetFields()
		box := d["bbox"].GetListValue().GetValues()
		if len(box) != 4 {
			continue
		}
		det := models.Detection{
			ClassID: int(d["class_id"].GetNumberValue()),
			Label:   d["label"].GetStringValue(),
			Score:   float32(d["score"].GetNumberValue()),
		}
		if det.Score < params.Confidence {
			continue
		}
		for i, v := range box {
			det.BBox[i] = int(math.Round(v.GetNumberValue()))
		}
		res.Detections = append(res.Detections, det)
		if params.MaxDetections > 0 && len(res.Detections) >= params.MaxDetections {
			break
		}
	}
	return res
}

// shouldRetry applies exponential backoff: 1s, 2s, 4s ... capped at maxRetryBackoff.
func (c *Client) shouldRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consecutiveFails == 0 {
		return true
	}

	backoff := time.Duration(1<<uint(min(c.consecutiveFails-1, 16))) * time.Second
	if backoff > c.maxRetryBackoff {
		backoff = c.maxRetryBackoff
	}
	return c.now().Sub(c.lastFailTime) >= backoff
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFails++
	c.lastFailTime = c.now()

	if c.consecutiveFails <= 5 {
		log.Warn().
			Str("ai_endpoint", c.endpoint).
			Int("consecutive_fails", c.consecutiveFails).
			Msg("AI connection failure recorded")
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.consecutiveFails = 0
	c.mu.Unlock()
}
