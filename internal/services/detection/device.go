package detection

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/config"
)

// ErrDeviceUnavailable means the requested compute device is not present.
var ErrDeviceUnavailable = errors.New("compute device unavailable")

// GPUQuery reports the name of the first usable GPU.
type GPUQuery func(ctx context.Context) (string, error)

// CUDACounter reports how many CUDA devices the inference library itself
// can drive. A GPU the driver sees is useless to a CPU-only OpenCV build.
type CUDACounter func() int

// QueryCUDA asks the NVIDIA driver for its first GPU.
func QueryCUDA(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return "", fmt.Errorf("%w: nvidia-smi: %v", ErrDeviceUnavailable, err)
	}
	name := strings.TrimSpace(strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0])
	if name == "" {
		return "", fmt.Errorf("%w: no GPU reported", ErrDeviceUnavailable)
	}
	return name, nil
}

// ResolveDevice turns a device preference into the device inference will
// actually run on. "cuda" is mandatory: a missing GPU is an error instead of
// a silent CPU fallback. "auto" uses the GPU when one answers.
func ResolveDevice(ctx context.Context, preference string, gpu GPUQuery) (string, error) {
	switch preference {
	case config.DeviceCPU:
		return config.DeviceCPU, nil
	case config.DeviceCUDA:
		name, err := gpu(ctx)
		if err != nil {
			if !errors.Is(err, ErrDeviceUnavailable) {
				err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
			}
			return "", fmt.Errorf("COMPUTE_DEVICE=cuda but no CUDA device is usable: %w", err)
		}
		log.Info().Str("gpu", name).Msg("CUDA device detected")
		return config.DeviceCUDA, nil
	case config.DeviceAuto, "":
		name, err := gpu(ctx)
		if err != nil {
			log.Info().Err(err).Msg("No CUDA device found, running inference on CPU")
			return config.DeviceCPU, nil
		}
		log.Info().Str("gpu", name).Msg("CUDA device detected")
		return config.DeviceCUDA, nil
	default:
		return "", fmt.Errorf("unknown compute device %q", preference)
	}
}

// RequireLibraryCUDA fails when device is cuda but the library reports no
// CUDA-enabled devices.
func RequireLibraryCUDA(device string, count CUDACounter) error {
	if device != config.DeviceCUDA {
		return nil
	}
	if count == nil || count() <= 0 {
		return fmt.Errorf("%w: OpenCV reports no CUDA-enabled device (rebuild with -tags cuda against a CUDA-enabled OpenCV)", ErrDeviceUnavailable)
	}
	return nil
}

// SelectDevice resolves the device for a detector backend.
//
// The grpc backend runs inference elsewhere, so the local GPU is irrelevant:
// the preference is forwarded as-is and the service reports the device it
// actually used with every result. The dnn backend additionally needs the
// local OpenCV build to have CUDA; under "auto" a CPU-only build falls back
// to cpu, under "cuda" it is fatal.
func SelectDevice(ctx context.Context, backend, preference string, gpu GPUQuery, lib CUDACounter) (string, error) {
	if backend == config.DetectorGRPC {
		switch preference {
		case "":
			return config.DeviceAuto, nil
		case config.DeviceAuto, config.DeviceCPU, config.DeviceCUDA:
			return preference, nil
		default:
			return "", fmt.Errorf("unknown compute device %q", preference)
		}
	}

	device, err := ResolveDevice(ctx, preference, gpu)
	if err != nil {
		return "", err
	}
	if backend == config.DetectorPassthrough {
		return device, nil
	}

	if err := RequireLibraryCUDA(device, lib); err != nil {
		if preference == config.DeviceCUDA {
			return "", fmt.Errorf("COMPUTE_DEVICE=cuda but the detector cannot use it: %w", err)
		}
		log.Warn().Err(err).Msg("GPU present but OpenCV lacks CUDA, running inference on CPU")
		return config.DeviceCPU, nil
	}
	return device, nil
}
