package detection

import (
	"context"
	"errors"
	"image"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/models"
	"firewatch-worker-go/internal/services/jpegenc"
)

type fakeDetectionServer struct {
	mu       sync.Mutex
	requests []*structpb.Struct
	fail     bool
}

func (s *fakeDetectionServer) detect(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.fail
	s.mu.Unlock()

	if fail {
		return nil, status.Error(codes.Unavailable, "model not loaded")
	}
	return structpb.NewStruct(map[string]interface{}{
		"device": "cuda",
		"detections": []interface{}{
			map[string]interface{}{"class_id": 0, "label": "fire", "score": 0.91, "bbox": []interface{}{10.2, 20, 50, 60.7}},
			map[string]interface{}{"class_id": 1, "label": "smoke", "score": 0.10, "bbox": []interface{}{0, 0, 5, 5}},
			map[string]interface{}{"class_id": 1, "label": "smoke", "score": 0.55, "bbox": []interface{}{1, 2}},
		},
	})
}

func (s *fakeDetectionServer) last() *structpb.Struct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func unaryHandler(call func(*fakeDetectionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		return call(srv.(*fakeDetectionServer), ctx, in)
	}
}

var fakeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: unaryHandler((*fakeDetectionServer).detect)},
		{MethodName: "HealthCheck", Handler: unaryHandler(func(*fakeDetectionServer, context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return structpb.NewStruct(map[string]interface{}{"status": "ok", "device": "cuda"})
		})},
	},
}

func startFakeServer(t *testing.T) (*fakeDetectionServer, *Client) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeDetectionServer{}
	srv.RegisterService(&fakeServiceDesc, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := NewClientWithConn(conn, jpegenc.Std{}, 70, 2*time.Second)
	t.Cleanup(func() { _ = client.Close() })
	return fake, client
}

func TestClientDetect(t *testing.T) {
	fake, client := startFakeServer(t)

	frame := models.NewFrame(64, 48)
	frame.Seq = 7
	res, err := client.Detect(context.Background(), frame, models.DetectParams{Confidence: 0.25, MaxDetections: 10, Device: "cuda"})
	require.NoError(t, err)

	assert.Equal(t, "cuda", res.Device)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "fire", res.Detections[0].Label)
	assert.Equal(t, [4]int{10, 20, 50, 61}, res.Detections[0].BBox)
	assert.InDelta(t, 0.91, res.Detections[0].Score, 1e-6)

	req := fake.last().GetFields()
	assert.Equal(t, 64.0, req["width"].GetNumberValue())
	assert.Equal(t, 48.0, req["height"].GetNumberValue())
	assert.Equal(t, 7.0, req["seq"].GetNumberValue())
	assert.Equal(t, "cuda", req["device"].GetStringValue())
	assert.NotEmpty(t, req["image"].GetStringValue())
}

func TestClientHealthCheck(t *testing.T) {
	_, client := startFakeServer(t)

	device, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cuda", device)
}

func TestClientBacksOffAfterFailure(t *testing.T) {
	fake, client := startFakeServer(t)
	fake.mu.Lock()
	fake.fail = true
	fake.mu.Unlock()

	now := time.Unix(1000, 0)
	client.now = func() time.Time { return now }

	_, err := client.Detect(context.Background(), models.NewFrame(8, 8), models.DetectParams{})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))

	_, err = client.Detect(context.Background(), models.NewFrame(8, 8), models.DetectParams{})
	assert.ErrorIs(t, err, ErrBackoff)

	fake.mu.Lock()
	fake.fail = false
	fake.mu.Unlock()
	now = now.Add(1500 * time.Millisecond)

	_, err = client.Detect(context.Background(), models.NewFrame(8, 8), models.DetectParams{})
	assert.NoError(t, err)
}

func TestClientRejectsEmptyFrame(t *testing.T) {
	_, client := startFakeServer(t)
	_, err := client.Detect(context.Background(), &models.Frame{}, models.DetectParams{})
	assert.ErrorIs(t, err, jpegenc.ErrEmptyFrame)
}

func TestParseDetectionsCapsCount(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]interface{}{
		"detections": []interface{}{
			map[string]interface{}{"label": "fire", "score": 0.9, "bbox": []interface{}{0, 0, 1, 1}},
			map[string]interface{}{"label": "fire", "score": 0.8, "bbox": []interface{}{0, 0, 1, 1}},
			map[string]interface{}{"label": "fire", "score": 0.7, "bbox": []interface{}{0, 0, 1, 1}},
		},
	})
	require.NoError(t, err)

	res := ParseDetections(resp, models.DetectParams{MaxDetections: 2})
	assert.Len(t, res.Detections, 2)
	assert.Empty(t, res.Device)
	assert.Empty(t, ParseDetections(nil, models.DetectParams{}).Detections)
}

func TestParseGRPCEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		tls  bool
	}{
		{"localhost:50052", "localhost:50052", false},
		{"ai.example.com", "ai.example.com:443", true},
		{"ai.example.com:8443", "ai.example.com:8443", true},
		{"http://detector", "detector:80", false},
		{"https://detector:9000", "detector:9000", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			host, creds, err := ParseGRPCEndpoint(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.host, host)
			assert.Equal(t, tc.tls, creds.Info().SecurityProtocol == "tls")
		})
	}

	_, _, err := ParseGRPCEndpoint("ftp://detector")
	assert.Error(t, err)
	_, _, err = ParseGRPCEndpoint("")
	assert.Error(t, err)
}

func TestResolveDevice(t *testing.T) {
	gpu := func(context.Context) (string, error) { return "NVIDIA T4", nil }
	noGPU := func(context.Context) (string, error) { return "", errors.New("nvidia-smi: not found") }
	ctx := context.Background()

	dev, err := ResolveDevice(ctx, config.DeviceCPU, gpu)
	require.NoError(t, err)
	assert.Equal(t, config.DeviceCPU, dev)

	dev, err = ResolveDevice(ctx, config.DeviceAuto, gpu)
	require.NoError(t, err)
	assert.Equal(t, config.DeviceCUDA, dev)

	dev, err = ResolveDevice(ctx, config.DeviceAuto, noGPU)
	require.NoError(t, err)
	assert.Equal(t, config.DeviceCPU, dev)

	dev, err = ResolveDevice(ctx, config.DeviceCUDA, gpu)
	require.NoError(t, err)
	assert.Equal(t, config.DeviceCUDA, dev)

	_, err = ResolveDevice(ctx, config.DeviceCUDA, noGPU)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	_, err = ResolveDevice(ctx, "tpu", gpu)
	assert.Error(t, err)
}

func TestSelectDevice(t *testing.T) {
	ctx := context.Background()
	gpu := func(context.Context) (string, error) { return "NVIDIA T4", nil }
	gpuCalled := false
	noGPU := func(context.Context) (string, error) {
		gpuCalled = true
		return "", errors.New("nvidia-smi: not found")
	}
	cudaBuild := func() int { return 1 }
	cpuBuild := func() int { return 0 }

	t.Run("grpc skips local GPU check", func(t *testing.T) {
		gpuCalled = false
		dev, err := SelectDevice(ctx, config.DetectorGRPC, config.DeviceCUDA, noGPU, cpuBuild)
		require.NoError(t, err)
		assert.Equal(t, config.DeviceCUDA, dev)
		assert.False(t, gpuCalled)

		dev, err = SelectDevice(ctx, config.DetectorGRPC, "", noGPU, nil)
		require.NoError(t, err)
		assert.Equal(t, config.DeviceAuto, dev)

		_, err = SelectDevice(ctx, config.DetectorGRPC, "tpu", noGPU, nil)
		assert.Error(t, err)
	})

	t.Run("dnn cuda needs a CUDA OpenCV", func(t *testing.T) {
		_, err := SelectDevice(ctx, config.DetectorDNN, config.DeviceCUDA, gpu, cpuBuild)
		assert.ErrorIs(t, err, ErrDeviceUnavailable)

		dev, err := SelectDevice(ctx, config.DetectorDNN, config.DeviceCUDA, gpu, cudaBuild)
		require.NoError(t, err)
		assert.Equal(t, config.DeviceCUDA, dev)
	})

	t.Run("dnn auto falls back without CUDA OpenCV", func(t *testing.T) {
		dev, err := SelectDevice(ctx, config.DetectorDNN, config.DeviceAuto, gpu, cpuBuild)
		require.NoError(t, err)
		assert.Equal(t, config.DeviceCPU, dev)
	})

	t.Run("passthrough ignores library", func(t *testing.T) {
		dev, err := SelectDevice(ctx, config.DetectorPassthrough, config.DeviceAuto, gpu, cpuBuild)
		require.NoError(t, err)
		assert.Equal(t, config.DeviceCUDA, dev)
	})
}

func TestRequireLibraryCUDA(t *testing.T) {
	assert.NoError(t, RequireLibraryCUDA(config.DeviceCPU, nil))
	assert.NoError(t, RequireLibraryCUDA(config.DeviceCUDA, func() int { return 2 }))
	assert.ErrorIs(t, RequireLibraryCUDA(config.DeviceCUDA, func() int { return 0 }), ErrDeviceUnavailable)
	assert.ErrorIs(t, RequireLibraryCUDA(config.DeviceCUDA, nil), ErrDeviceUnavailable)
}

func TestPassthrough(t *testing.T) {
	res, err := Passthrough{Device: "cpu"}.Detect(context.Background(), models.NewFrame(2, 2), models.DetectParams{})
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
	assert.Equal(t, "cpu", res.Device)
}

func TestDecodeYOLO(t *testing.T) {
	// Two classes, three boxes, tensor [1, 6, 3].
	const boxes = 3
	out := []float32{
		// cx
		100, 10, 300,
		// cy
		100, 10, 300,
		// w
		40, 4, 1000,
		// h
		20, 4, 1000,
		// fire score
		0.9, 0.1, 0.2,
		// smoke score
		0.3, 0.15, 0.7,
	}

	cands := DecodeYOLO(out, 6, boxes, 0.25, 0.5, 0.5, 200, 200)
	require.Len(t, cands, 2)

	assert.Equal(t, 0, cands[0].ClassID)
	assert.InDelta(t, 0.9, cands[0].Score, 1e-6)
	assert.Equal(t, image.Rect(40, 45, 60, 55), cands[0].Box)

	assert.Equal(t, 1, cands[1].ClassID)
	assert.Equal(t, image.Rect(0, 0, 200, 200), cands[1].Box, "clipped to frame")

	assert.Nil(t, DecodeYOLO(out[:5], 6, boxes, 0.25, 1, 1, 10, 10))
	assert.Nil(t, DecodeYOLO(out, 4, boxes, 0.25, 1, 1, 10, 10))
}

func TestClassLabel(t *testing.T) {
	classes := []string{"fire", "smoke"}
	assert.Equal(t, "smoke", ClassLabel(classes, 1))
	assert.Equal(t, "class_7", ClassLabel(classes, 7))
	assert.Equal(t, "class_-1", ClassLabel(classes, -1))
}
