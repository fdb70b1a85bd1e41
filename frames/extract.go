package frames

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"regexp"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/faults"
	"github.com/stevecastle/stereo180/transcode"
)

// Decoder is the part of the transcoder the extractor needs.
type Decoder interface {
	Probe(ctx context.Context, src string) (*transcode.ProbeResult, error)
	DecodeFrames(ctx context.Context, src, dir string) error
}

// Extraction describes a decoded source.
type Extraction struct {
	Batches     []Batch
	Frames      []Frame
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
	HasAudio    bool
}

// Extractor decodes a source video into a DirStore and batches the frames.
type Extractor struct {
	Decoder   Decoder
	Store     *DirStore
	BatchSize int
}

// decodedKey matches FramePattern output, which widens past six digits from
// frame 1000000 on.
var decodedKey = regexp.MustCompile(`^frame_\d{6,}\.png$`)

// Extract probes and decodes src. It fails with faults.ErrSourceRead when the
// source cannot be opened or yields no frames.
func (e *Extractor) Extract(ctx context.Context, src string) (*Extraction, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrSourceRead, err)
	}

	probe, err := e.Decoder.Probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %w", faults.ErrSourceRead, src, err)
	}
	log.Info().
		Str("source", src).
		Int("width", probe.Width).
		Int("height", probe.Height).
		Float64("fps", probe.FPS).
		Int("frames", probe.FrameCount).
		Bool("audio", probe.HasAudio).
		Msg("Probed source")

	if err := e.Decoder.DecodeFrames(ctx, src, e.Store.Dir); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", faults.ErrSourceRead, src, err)
	}

	keys, err := e.Store.Keys()
	if err != nil {
		return nil, fmt.Errorf("%w: list frames: %v", faults.ErrSourceRead, err)
	}
	var frames []Frame
	for _, k := range keys {
		if decodedKey.MatchString(k) {
			frames = append(frames, Frame{Index: len(frames), Key: k})
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s decoded to zero frames", faults.ErrSourceRead, src)
	}
	if probe.FrameCount > 0 && probe.FrameCount != len(frames) {
		log.Warn().Int("probed", probe.FrameCount).Int("decoded", len(frames)).Msg("Frame count differs from container metadata")
	}

	w, h, err := e.frameSize(frames[0])
	if err != nil {
		return nil, err
	}

	ex := &Extraction{
		Batches:     Partition(frames, e.BatchSize),
		Frames:      frames,
		FPS:         probe.FPS,
		TotalFrames: len(frames),
		Width:       w,
		Height:      h,
		HasAudio:    probe.HasAudio,
	}
	log.Info().Int("frames", ex.TotalFrames).Int("batches", len(ex.Batches)).Msg("Extracted frames")
	return ex, nil
}

// frameSize reads the dimensions of the first decoded frame, which
// establishes the run's frame size.
func (e *Extractor) frameSize(f Frame) (int, int, error) {
	in, err := os.Open(e.Store.Path(f.Key))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", faults.ErrSourceRead, err)
	}
	defer in.Close()
	cfg, err := png.DecodeConfig(in)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", faults.ErrSourceRead, f.Key, err)
	}
	return cfg.Width, cfg.Height, nil
}
