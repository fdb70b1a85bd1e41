//go:build darwin

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Library", "Application Support", AppDisplayName)
}

func getWorkDir() string {
	if dir := os.Getenv("STEREO180_WORK_DIR"); dir != "" {
		return dir
	}
	// TMPDIR is per-user on macOS.
	return filepath.Join(os.TempDir(), AppName, "work")
}

func getCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Library", "Caches", AppName)
}

func binaryExtension() string {
	return ""
}

func sharedLibExtension() string {
	return ".dylib"
}
