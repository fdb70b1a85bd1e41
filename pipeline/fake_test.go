package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stevecastle/stereo180/faults"
	"github.com/stevecastle/stereo180/frames"
	"github.com/stevecastle/stereo180/transcode"
)

// fakeTranscoder stands in for ffmpeg. It writes real files so every stage
// downstream can inspect what it produced. Encoded "videos" are text files
// holding their frame count.
type fakeTranscoder struct {
	mu sync.Mutex

	width, height, frames int
	hasAudio              bool
	probeErr              error

	// failHLS makes SegmentHLS fail when the input or target dir contains it.
	failHLS []string
	// failEncode makes EncodeSequence fail when the output contains it.
	failEncode []string

	encodes  []transcode.EncodeRequest
	hls      []transcode.HLSRequest
	muxed    int
	metadata []transcode.StereoMetadata
}

func (f *fakeTranscoder) Probe(ctx context.Context, src string) (*transcode.ProbeResult, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &transcode.ProbeResult{Width: f.width, Height: f.height, FPS: 30, FrameCount: f.frames, HasAudio: f.hasAudio}, nil
}

func (f *fakeTranscoder) DecodeFrames(ctx context.Context, src, dir string) error {
	s := &frames.DirStore{Dir: dir}
	for i := 0; i < f.frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
		for y := 0; y < f.height; y++ {
			for x := 0; x < f.width; x++ {
				img.SetRGBA(x, y, color.RGBA{uint8(i), uint8(x * 8), uint8(y * 8), 255})
			}
		}
		if err := s.Save(frames.Key(i), img); err != nil {
			return err
		}
	}
	return nil
}

func matches(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func toolFailure(tool string) error {
	return faults.NewToolError(tool, []string{"-i", "x"}, []byte("boom"), errors.New("exit status 1"))
}

func (f *fakeTranscoder) EncodeSequence(ctx context.Context, req transcode.EncodeRequest) error {
	f.mu.Lock()
	f.encodes = append(f.encodes, req)
	f.mu.Unlock()
	if matches(req.Output, f.failEncode) {
		return toolFailure("ffmpeg")
	}
	keys, err := (&frames.DirStore{Dir: req.Dir}).Keys()
	if err != nil {
		return err
	}
	return os.WriteFile(req.Output, []byte(fmt.Sprintf("frames=%d", len(keys))), 0644)
}

func (f *fakeTranscoder) SegmentHLS(ctx context.Context, req transcode.HLSRequest) error {
	f.mu.Lock()
	f.hls = append(f.hls, req)
	f.mu.Unlock()
	if matches(req.Input, f.failHLS) || matches(req.Dir, f.failHLS) {
		return toolFailure("ffmpeg")
	}
	name := fmt.Sprintf(req.SegmentPattern, req.StartNumber)
	if err := os.WriteFile(filepath.Join(req.Dir, name), []byte("ts"), 0644); err != nil {
		return err
	}
	playlist := filepath.Join(req.Dir, req.Playlist)
	var b strings.Builder
	if _, err := os.Stat(playlist); os.IsNotExist(err) {
		b.WriteString("#EXTM3U\n#EXT-X-VERSION:6\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:EVENT\n")
	}
	fmt.Fprintf(&b, "#EXTINF:1.000000,\n%s\n", name)
	fp, err := os.OpenFile(playlist, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer fp.Close()
	_, err = fp.WriteString(b.String())
	return err
}

func (f *fakeTranscoder) ExtractAudio(ctx context.Context, src, out string) error {
	return os.WriteFile(out, []byte("pcm"), 0644)
}

func copyFile(in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0644)
}

func (f *fakeTranscoder) MuxAudio(ctx context.Context, video, audio, out string) error {
	f.mu.Lock()
	f.muxed++
	f.mu.Unlock()
	if _, err := os.Stat(audio); err != nil {
		return err
	}
	return copyFile(video, out)
}

func (f *fakeTranscoder) InjectMetadata(ctx context.Context, in, out string, meta transcode.StereoMetadata) error {
	f.mu.Lock()
	f.metadata = append(f.metadata, meta)
	f.mu.Unlock()
	return copyFile(in, out)
}

// hlsCalls counts SegmentHLS calls targeting dir.
func (f *fakeTranscoder) hlsCalls(dir string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.hls {
		if r.Dir == dir {
			n++
		}
	}
	return n
}
