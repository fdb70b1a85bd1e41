//go:build windows

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	appDataDir := os.Getenv("APPDATA")
	if appDataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		return filepath.Join(home, "."+AppName)
	}
	return filepath.Join(appDataDir, AppDisplayName)
}

func getWorkDir() string {
	if dir := os.Getenv("STEREO180_WORK_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), AppDisplayName, "work")
}

func getCacheDir() string {
	// Cache and data share a location on Windows.
	return getDataDir()
}

func binaryExtension() string {
	return ".exe"
}

func sharedLibExtension() string {
	return ".dll"
}
