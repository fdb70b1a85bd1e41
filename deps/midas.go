package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/downloads"
)

const (
	// MidasModelFile is the on-disk name of the MiDaS v2.1 small model.
	MidasModelFile = "midas_v21_small_256.onnx"

	midasModelURL = "https://github.com/isl-org/MiDaS/releases/download/v2_1/model-small.onnx"

	// onnxRuntimeVersion must match what github.com/yalue/onnxruntime_go was built against.
	onnxRuntimeVersion = "1.22.0"
)

func init() {
	Register(&Dependency{
		ID:          "midas",
		Name:        "MiDaS depth model",
		Description: "MiDaS v2.1 small ONNX model and the ONNX Runtime shared library",
		TargetDir:   GetDepsDir("midas"),
		Check:       checkMidas,
		Fetch:       fetchMidas,
	})
}

// MidasModelPath returns the default MiDaS model location.
func MidasModelPath() string {
	return filepath.Join(GetDepsDir("midas"), MidasModelFile)
}

// OnnxRuntimeLibPath returns the default ONNX Runtime library location.
func OnnxRuntimeLibPath() string {
	return filepath.Join(GetDepsDir("midas"), GetOnnxRuntimeLibName())
}

func checkMidas(ctx context.Context) (bool, string, error) {
	for _, p := range []string{MidasModelPath(), OnnxRuntimeLibPath()} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return false, "", nil
		} else if err != nil {
			return false, "", fmt.Errorf("error checking %s: %w", p, err)
		}
	}
	return true, "v2.1-small/ort-" + onnxRuntimeVersion, nil
}

// fetchMidas downloads the model and pulls the runtime library out of the
// ONNX Runtime release archive.
func fetchMidas(ctx context.Context, progress downloads.ProgressCallback) error {
	dir := GetDepsDir("midas")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if _, err := os.Stat(MidasModelPath()); os.IsNotExist(err) {
		log.Info().Str("url", midasModelURL).Msg("Downloading MiDaS model")
		if err := downloads.FetchWithRetry(ctx, midasModelURL, MidasModelPath(), progress); err != nil {
			return err
		}
	}

	if _, err := os.Stat(OnnxRuntimeLibPath()); os.IsNotExist(err) {
		arch := runtime.GOARCH
		if arch != "amd64" && arch != "arm64" {
			return fmt.Errorf("no ONNX Runtime build for %s; install it manually from https://github.com/microsoft/onnxruntime/releases", arch)
		}
		url := GetOnnxRuntimeDownloadURL(onnxRuntimeVersion, arch)
		log.Info().Str("url", url).Msg("Downloading ONNX Runtime")

		archive := filepath.Join(dir, "onnxruntime-archive")
		if err := downloads.FetchWithRetry(ctx, url, archive, progress); err != nil {
			return err
		}
		defer os.Remove(archive)

		match := func(name string) bool { return isRuntimeLib(name) }
		if IsOnnxRuntimeArchiveZip() {
			err = downloads.ExtractFileFromZip(archive, OnnxRuntimeLibPath(), match)
		} else {
			err = downloads.ExtractFileFromTarGz(archive, OnnxRuntimeLibPath(), match)
		}
		if err != nil {
			return fmt.Errorf("failed to extract ONNX Runtime: %w", err)
		}
	}
	return nil
}

// isRuntimeLib matches the main runtime library inside a release archive,
// e.g. lib/libonnxruntime.so.1.22.0, lib/libonnxruntime.1.22.0.dylib or
// lib/onnxruntime.dll, skipping the providers_shared helper.
func isRuntimeLib(name string) bool {
	base := filepath.Base(name)
	if !strings.Contains(name, "/lib/") || strings.Contains(base, "providers") {
		return false
	}
	switch {
	case strings.HasSuffix(base, ".dll"):
		return base == "onnxruntime.dll"
	case strings.HasSuffix(base, ".dylib"):
		return strings.HasPrefix(base, "libonnxruntime.")
	default:
		return strings.HasPrefix(base, "libonnxruntime.so.")
	}
}
