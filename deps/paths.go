package deps

import (
	"path/filepath"
	"runtime"

	"github.com/stevecastle/stereo180/platform"
)

// GetDepsDir returns the installation directory for a dependency.
func GetDepsDir(subdir string) string {
	return filepath.Join(platform.GetDataDir(), subdir)
}

// GetOnnxRuntimeLibName returns the platform-specific ONNX Runtime library name.
func GetOnnxRuntimeLibName() string {
	return "onnxruntime" + platform.SharedLibExtension()
}

// GetOnnxRuntimeDownloadURL returns the release archive for this OS and arch.
func GetOnnxRuntimeDownloadURL(version, arch string) string {
	base := "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-"
	switch runtime.GOOS {
	case "windows":
		if arch == "arm64" {
			return base + "win-arm64-" + version + ".zip"
		}
		return base + "win-x64-" + version + ".zip"
	case "darwin":
		if arch == "arm64" {
			return base + "osx-arm64-" + version + ".tgz"
		}
		return base + "osx-x86_64-" + version + ".tgz"
	default:
		if arch == "arm64" {
			return base + "linux-aarch64-" + version + ".tgz"
		}
		return base + "linux-x64-" + version + ".tgz"
	}
}

// IsOnnxRuntimeArchiveZip reports whether the runtime ships as zip (Windows) or tgz.
func IsOnnxRuntimeArchiveZip() bool {
	return runtime.GOOS == "windows"
}
