// Package hls appends encoded video to HLS event playlists with gap-free,
// monotonically increasing segment numbers.
package hls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/faults"
	"github.com/stevecastle/stereo180/transcode"
)

const (
	// PlaylistName is the manifest file inside a stream directory.
	PlaylistName = "output.m3u8"
	// SegmentPattern names segments inside a stream directory.
	SegmentPattern = "segment_%05d.ts"
)

var segmentName = regexp.MustCompile(`^segment_(\d+)\.ts$`)

// Segmenter is the part of the transcoder the publisher needs.
type Segmenter interface {
	SegmentHLS(ctx context.Context, req transcode.HLSRequest) error
}

// AppendResult describes one successful append.
type AppendResult struct {
	Playlist    string
	StartNumber int
	// Segments lists the new segment files in number order.
	Segments []string
}

// Publisher appends video files to stream directories.
type Publisher struct {
	Segmenter      Segmenter
	FPS            int
	SegmentSeconds int
}

// NextSegmentNumber returns one past the highest segment number in dir, or
// 0 when dir has no segments or does not exist.
func NextSegmentNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	next := 0
	for _, e := range entries {
		m := segmentName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Append encodes videoFile into new segments at the end of the playlist in
// streamDir.
func (p *Publisher) Append(ctx context.Context, videoFile, streamDir string) (*AppendResult, error) {
	if err := os.MkdirAll(streamDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	start, err := NextSegmentNumber(streamDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", streamDir, err)
	}

	err = p.Segmenter.SegmentHLS(ctx, transcode.HLSRequest{
		Input:          videoFile,
		Dir:            streamDir,
		Playlist:       PlaylistName,
		SegmentPattern: SegmentPattern,
		StartNumber:    start,
		FPS:            p.FPS,
		SegmentSeconds: p.SegmentSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("append %s to %s: %w", filepath.Base(videoFile), streamDir, err)
	}

	end, err := NextSegmentNumber(streamDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", streamDir, err)
	}
	res := &AppendResult{Playlist: filepath.Join(streamDir, PlaylistName), StartNumber: start}
	for n := start; n < end; n++ {
		res.Segments = append(res.Segments, filepath.Join(streamDir, fmt.Sprintf(SegmentPattern, n)))
	}
	log.Debug().
		Str("file", videoFile).
		Str("stream", streamDir).
		Int("start", start).
		Int("segments", len(res.Segments)).
		Msg("Appended to stream")
	return res, nil
}

// TryAppend is Append for best-effort streams: a failure is logged and
// reported as false instead of returned.
func (p *Publisher) TryAppend(ctx context.Context, videoFile, streamDir string) (*AppendResult, bool) {
	res, err := p.Append(ctx, videoFile, streamDir)
	if err != nil {
		log.Warn().Err(err).Str("file", videoFile).Str("stream", streamDir).Msg("Skipping stream append")
		return nil, false
	}
	return res, true
}

// Seal marks the playlist in streamDir as complete.
func Seal(streamDir string) error {
	path := filepath.Join(streamDir, PlaylistName)
	pl, err := ReadPlaylist(path)
	if err != nil {
		return err
	}
	if pl.Ended {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	if _, err := f.WriteString(endList + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	return f.Close()
}
