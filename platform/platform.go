// Package platform resolves per-OS directories and file extensions used for
// configuration, the job database, downloaded models and run working trees.
package platform

// AppName is used for directory naming on Linux and macOS caches.
const AppName = "stereo180"

// AppDisplayName is used for directory naming on Windows and macOS.
const AppDisplayName = "Stereo180"

// GetDataDir returns the directory holding config.yaml, the job database and
// downloaded models.
// Windows: %APPDATA%\Stereo180
// Linux: $XDG_DATA_HOME/stereo180 or ~/.local/share/stereo180
// macOS: ~/Library/Application Support/Stereo180
func GetDataDir() string {
	return getDataDir()
}

// GetWorkDir returns the default root for run working trees. Everything under
// it is purged at the start of each run.
// Windows: %TEMP%\Stereo180\work
// Linux and macOS: $TMPDIR/stereo180/work
// STEREO180_WORK_DIR overrides both.
func GetWorkDir() string {
	return getWorkDir()
}

// GetCacheDir returns the directory for partially downloaded archives.
func GetCacheDir() string {
	return getCacheDir()
}

// BinaryExtension returns ".exe" on Windows and "" elsewhere.
func BinaryExtension() string {
	return binaryExtension()
}

// SharedLibExtension returns the shared library extension for the current platform.
func SharedLibExtension() string {
	return sharedLibExtension()
}

// ProcessAlive reports whether pid names a running process on this host.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return processAlive(pid)
}
