package backend

import (
	"os/exec"
	"runtime"
)

// Device is the compute device inference runs on.
type Device string

const (
	DeviceCPU   Device = "cpu"
	DeviceCUDA  Device = "cuda"
	DeviceMetal Device = "metal"
)

// IsGPU reports whether d offloads work to a GPU.
func (d Device) IsGPU() bool {
	return d == DeviceCUDA || d == DeviceMetal
}

var lookPath = exec.LookPath

// DetectDevice picks CUDA when the NVIDIA driver tools are installed,
// Metal on Apple silicon, and the CPU otherwise.
func DetectDevice() Device {
	if _, err := lookPath("nvidia-smi"); err == nil {
		return DeviceCUDA
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return DeviceMetal
	}
	return DeviceCPU
}
