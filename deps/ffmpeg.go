package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/downloads"
)

// ffmpegWindowsURL is a static Windows build shipped as 7z. Other platforms
// install ffmpeg from their package manager.
const ffmpegWindowsURL = "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.7z"

func init() {
	dep := &Dependency{
		ID:          "ffmpeg",
		Name:        "FFmpeg",
		Description: "Frame decode, segment encode, audio mux, HLS segmenting (ffmpeg + ffprobe)",
		TargetDir:   GetDepsDir("ffmpeg"),
		InstallURL:  "https://ffmpeg.org/download.html",
		Check:       checkFFmpeg,
	}
	if runtime.GOOS == "windows" {
		dep.Fetch = fetchFFmpeg
	} else {
		dep.ManualOnly = true
	}
	Register(dep)
}

// fetchFFmpeg downloads the Windows build and pulls ffmpeg.exe and
// ffprobe.exe out of its bin directory.
func fetchFFmpeg(ctx context.Context, progress downloads.ProgressCallback) error {
	dir := GetDepsDir("ffmpeg")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	archive := filepath.Join(dir, "ffmpeg.7z")
	log.Info().Str("url", ffmpegWindowsURL).Msg("Downloading FFmpeg")
	if err := downloads.FetchWithRetry(ctx, ffmpegWindowsURL, archive, progress); err != nil {
		return err
	}
	defer os.Remove(archive)

	for _, tool := range []string{"ffmpeg.exe", "ffprobe.exe"} {
		err := downloads.ExtractFileFrom7z(archive, filepath.Join(dir, tool), func(name string) bool {
			return isBinEntry(name, tool)
		})
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", tool, err)
		}
	}
	return nil
}

// isBinEntry matches <release>/bin/<tool> inside the build archive.
func isBinEntry(name, tool string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.HasSuffix(name, "/bin/"+tool)
}

var ffmpegVersionRe = regexp.MustCompile(`(?:ffmpeg|ffprobe) version (\S+)`)

// checkFFmpeg verifies both ffmpeg and ffprobe resolve and run.
func checkFFmpeg(ctx context.Context) (bool, string, error) {
	var version string
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		path, err := ResolveExecutable("ffmpeg", tool)
		if err != nil {
			return false, "", nil
		}

		versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		output, err := exec.CommandContext(versionCtx, path, "-version").CombinedOutput()
		cancel()
		if err != nil {
			return false, "", nil
		}
		if tool == "ffmpeg" {
			version = parseFFmpegVersion(string(output))
		}
	}
	return true, version, nil
}

// parseFFmpegVersion extracts the version from `ffmpeg -version` output.
func parseFFmpegVersion(output string) string {
	if m := ffmpegVersionRe.FindStringSubmatch(output); len(m) > 1 {
		return m[1]
	}
	return "unknown"
}
