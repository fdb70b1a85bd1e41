package transcode

import (
	"path/filepath"
	"strconv"
)

// FramePattern is the image sequence naming shared by decode and encode.
const FramePattern = "frame_%06d.png"

func probeArgs(src string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		src,
	}
}

func decodeArgs(src, dir string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vsync", "0",
		filepath.Join(dir, FramePattern),
	}
}

func encodeSequenceArgs(req EncodeRequest) []string {
	pattern := req.Pattern
	if pattern == "" {
		pattern = FramePattern
	}
	fps := strconv.Itoa(req.FPS)
	return []string{
		"-y",
		"-framerate", fps,
		"-start_number", "0",
		"-i", filepath.Join(req.Dir, pattern),
		"-c:v", req.Codec,
		"-pix_fmt", "yuv420p",
		"-b:v", req.Bitrate,
		"-r", fps,
		req.Output,
	}
}

// hlsArgs builds an append to an event playlist. Keyframes are pinned to
// one per second with scene-cut detection off, so segment boundaries line up
// across appends.
func hlsArgs(req HLSRequest) []string {
	fps := strconv.Itoa(req.FPS)
	seconds := req.SegmentSeconds
	if seconds <= 0 {
		seconds = 2
	}
	return []string{
		"-y",
		"-i", req.Input,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-profile:v", "high",
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-g", fps,
		"-keyint_min", fps,
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-ac", "2",
		"-hls_time", strconv.Itoa(seconds),
		"-hls_list_size", "0",
		"-hls_flags", "independent_segments+append_list+temp_file",
		"-hls_playlist_type", "event",
		"-start_number", strconv.Itoa(req.StartNumber),
		"-hls_segment_filename", filepath.Join(req.Dir, req.SegmentPattern),
		"-f", "hls",
		filepath.Join(req.Dir, req.Playlist),
	}
}

func extractAudioArgs(src, out string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		out,
	}
}

func muxArgs(video, audio, out string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		out,
	}
}

func metadataArgs(in, out string, meta StereoMetadata) []string {
	args := []string{"-y", "-i", in, "-c", "copy"}
	if meta.StereoMode != "" {
		args = append(args, "-metadata:s:v:0", "stereo_mode="+meta.StereoMode)
	}
	if meta.Projection != "" {
		args = append(args, "-metadata:s:v:0", "projection="+meta.Projection)
	}
	return append(args, out)
}
