package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/deps"
	"github.com/stevecastle/stereo180/faults"
	"github.com/stevecastle/stereo180/platform"
)

// tailLines is how many stderr lines are kept for error reports.
const tailLines = 40

// FFmpeg implements Transcoder by running the ffmpeg and ffprobe executables.
type FFmpeg struct {
	// BinDir pins the directory holding ffmpeg and ffprobe. Empty resolves
	// through the dependency directory, then PATH.
	BinDir string

	// OnLine receives every stderr line ffmpeg prints. Optional.
	OnLine func(line string)
}

// NewFFmpeg returns an FFmpeg transcoder.
func NewFFmpeg(binDir string) *FFmpeg {
	return &FFmpeg{BinDir: binDir}
}

var _ Transcoder = (*FFmpeg)(nil)

func (f *FFmpeg) command(ctx context.Context, tool string, args []string) (*exec.Cmd, error) {
	if f.BinDir != "" {
		return exec.CommandContext(ctx, filepath.Join(f.BinDir, tool+platform.BinaryExtension()), args...), nil
	}
	return deps.GetExec(ctx, "ffmpeg", tool, args...)
}

// run executes ffmpeg, streaming stderr lines to OnLine and the debug log.
func (f *FFmpeg) run(ctx context.Context, args []string) error {
	args = append([]string{"-hide_banner", "-nostats", "-loglevel", "warning"}, args...)

	cmd, err := f.command(ctx, "ffmpeg", args)
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrExternalTool, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	log.Debug().Strs("args", args).Msg("Running ffmpeg")
	if err := cmd.Start(); err != nil {
		return faults.NewToolError("ffmpeg", args, nil, err)
	}

	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(tail) == tailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
		log.Debug().Str("tool", "ffmpeg").Msg(line)
		if f.OnLine != nil {
			f.OnLine(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return faults.NewToolError("ffmpeg", args, []byte(strings.Join(tail, "\n")), err)
	}
	return nil
}

// Probe reads container metadata with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, src string) (*ProbeResult, error) {
	args := probeArgs(src)
	cmd, err := f.command(ctx, "ffprobe", args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrExternalTool, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, faults.NewToolError("ffprobe", args, stderr.Bytes(), err)
	}
	return parseProbe(out)
}

// DecodeFrames writes every frame of src into dir as frame_%06d.png.
func (f *FFmpeg) DecodeFrames(ctx context.Context, src, dir string) error {
	return f.run(ctx, decodeArgs(src, dir))
}

// EncodeSequence encodes an image sequence into one video file.
func (f *FFmpeg) EncodeSequence(ctx context.Context, req EncodeRequest) error {
	return f.run(ctx, encodeSequenceArgs(req))
}

// SegmentHLS appends req.Input to an HLS event playlist.
func (f *FFmpeg) SegmentHLS(ctx context.Context, req HLSRequest) error {
	return f.run(ctx, hlsArgs(req))
}

// ExtractAudio writes the source's audio track as 48kHz stereo PCM.
func (f *FFmpeg) ExtractAudio(ctx context.Context, src, out string) error {
	return f.run(ctx, extractAudioArgs(src, out))
}

// MuxAudio copies the video stream of video and encodes audio as AAC into out.
func (f *FFmpeg) MuxAudio(ctx context.Context, video, audio, out string) error {
	return f.run(ctx, muxArgs(video, audio, out))
}

// InjectMetadata stream-copies in to out with stereo metadata on the video stream.
func (f *FFmpeg) InjectMetadata(ctx context.Context, in, out string, meta StereoMetadata) error {
	return f.run(ctx, metadataArgs(in, out, meta))
}
