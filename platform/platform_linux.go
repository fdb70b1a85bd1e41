//go:build linux

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", AppName)
}

func getWorkDir() string {
	// Frame trees get large; stay off XDG_RUNTIME_DIR, which is often tmpfs.
	if dir := os.Getenv("STEREO180_WORK_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), AppName, "work")
}

func getCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".cache", AppName)
}

func binaryExtension() string {
	return ""
}

func sharedLibExtension() string {
	return ".so"
}
