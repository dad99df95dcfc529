//go:build cuda

package vision

import "gocv.io/x/gocv/cuda"

// CUDADeviceCount is the number of devices the linked OpenCV can run DNN
// inference on.
func CUDADeviceCount() int {
	return cuda.GetCudaEnabledDeviceCount()
}
