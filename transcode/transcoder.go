// Package transcode wraps the external ffmpeg and ffprobe tools behind the
// Transcoder interface used by the conversion pipeline.
package transcode

import "context"

// ProbeResult is the container metadata the pipeline needs from a source.
type ProbeResult struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // 0 when the container does not report it
	Duration   float64
	HasAudio   bool
}

// EncodeRequest encodes a contiguous zero-based image sequence
// (Dir/frame_%06d.png) into a single video file.
type EncodeRequest struct {
	Dir     string
	Pattern string
	FPS     int
	Codec   string
	Bitrate string
	Output  string
}

// HLSRequest appends Input to the HLS playlist in Dir, numbering new
// segments from StartNumber. Playlist and SegmentPattern are file names
// relative to Dir, never paths.
type HLSRequest struct {
	Input          string
	Dir            string
	Playlist       string
	SegmentPattern string
	StartNumber    int
	FPS            int
	SegmentSeconds int
}

// StereoMetadata is stamped onto a finished file without re-encoding.
// Empty fields are omitted.
type StereoMetadata struct {
	StereoMode string
	Projection string
}

// VR180Metadata marks a left/right side-by-side 180 degree video.
var VR180Metadata = StereoMetadata{StereoMode: "left_right", Projection: "180"}

// AnaglyphMetadata marks a red/cyan anaglyph video.
var AnaglyphMetadata = StereoMetadata{StereoMode: "anaglyph_cyan_red"}

// Transcoder is the external video tool.
type Transcoder interface {
	Probe(ctx context.Context, src string) (*ProbeResult, error)
	DecodeFrames(ctx context.Context, src, dir string) error
	EncodeSequence(ctx context.Context, req EncodeRequest) error
	SegmentHLS(ctx context.Context, req HLSRequest) error
	ExtractAudio(ctx context.Context, src, out string) error
	MuxAudio(ctx context.Context, video, audio, out string) error
	InjectMetadata(ctx context.Context, in, out string, meta StereoMetadata) error
}
