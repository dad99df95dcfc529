//go:build !cuda

package vision

// CUDADeviceCount is always zero without the cuda build tag: the gocv
// binding was not compiled against a CUDA-enabled OpenCV.
func CUDADeviceCount() int {
	return 0
}
