// Package pipeline runs a whole conversion: extract, per-batch depth and
// stereo synthesis, assembly, live streaming and the final deliverable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/appconfig"
	"github.com/stevecastle/stereo180/assembler"
	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/depth"
	"github.com/stevecastle/stereo180/frames"
	"github.com/stevecastle/stereo180/hls"
	"github.com/stevecastle/stereo180/projection"
	"github.com/stevecastle/stereo180/stream"
	"github.com/stevecastle/stereo180/transcode"
)

// ArtifactSink receives the finished outputs of a run.
type ArtifactSink interface {
	Publish(ctx context.Context, runID, finalFile, streamDir string) error
}

// Converter runs conversions. One Converter may run many conversions, one
// at a time per working directory.
type Converter struct {
	Config     appconfig.Config
	Transcoder transcode.Transcoder

	// Depth is used for every run when set. Otherwise NewDepth is called
	// once per run and the provider is closed when the run ends.
	Depth    depth.Provider
	NewDepth func(appconfig.DepthConfig) (depth.Provider, error)

	// Events receives progress; nil means the process-wide hub.
	Events *stream.Hub
	// Sink, when set, gets a best-effort upload of the final outputs.
	Sink ArtifactSink

	mappings *projection.Cache
}

// New returns a converter using MiDaS for depth.
func New(cfg appconfig.Config, tc transcode.Transcoder) *Converter {
	return &Converter{
		Config:     cfg,
		Transcoder: tc,
		NewDepth:   NewMiDaSProvider,
		mappings:   projection.NewCache(),
	}
}

// NewMiDaSProvider opens the MiDaS model described by cfg.
func NewMiDaSProvider(cfg appconfig.DepthConfig) (depth.Provider, error) {
	opts := depth.DefaultOptions()
	opts.ModelPath = cfg.ModelPath
	opts.ORTSharedLibraryPath = cfg.ORTSharedLibraryPath
	if cfg.InputName != "" {
		opts.InputName = cfg.InputName
	}
	if cfg.OutputName != "" {
		opts.OutputName = cfg.OutputName
	}
	if cfg.InputSize > 0 {
		opts.InputSize = cfg.InputSize
	}
	return depth.NewMiDaS(opts)
}

// RunVR180 converts source into a side-by-side VR180 video and returns the
// path of the final file.
func (c *Converter) RunVR180(ctx context.Context, source string, includeAudio bool) (string, error) {
	return c.Run(ctx, compositor.VR180, source, includeAudio)
}

// RunAnaglyph converts source into a red/cyan anaglyph video and returns the
// path of the final file.
func (c *Converter) RunAnaglyph(ctx context.Context, source string, includeAudio bool) (string, error) {
	return c.Run(ctx, compositor.Anaglyph, source, includeAudio)
}

// Run converts source in mode. On failure the global sequence and any live
// segments published so far are left in the working tree.
func (c *Converter) Run(ctx context.Context, mode compositor.Mode, source string, includeAudio bool) (string, error) {
	if _, ok := compositor.ParseMode(string(mode)); !ok {
		return "", fmt.Errorf("unknown mode %q", mode)
	}
	if err := c.Config.Validate(); err != nil {
		return "", err
	}
	if c.Config.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Config.Pipeline.Timeout)
		defer cancel()
	}

	r := &run{
		c:            c,
		id:           uuid.New().String(),
		mode:         mode,
		source:       source,
		includeAudio: includeAudio,
		layout:       NewLayout(c.Config.Paths.WorkDir),
		started:      time.Now(),
	}
	r.log = log.With().Str("run", r.id).Str("mode", string(mode)).Logger()

	out, err := r.execute(ctx)
	if err != nil {
		r.log.Error().Err(err).Int("frames", r.committed()).Msg("Conversion failed")
		r.emit(stream.Event{Type: stream.RunFailed, Frames: r.committed(), Total: r.total, Msg: err.Error()})
		return "", err
	}
	r.log.Info().Str("file", out).Dur("elapsed", time.Since(r.started)).Msg("Conversion finished")
	r.emit(stream.Event{Type: stream.RunFinished, Frames: r.committed(), Total: r.total, Msg: out})
	return out, nil
}

func (c *Converter) hub() *stream.Hub {
	if c.Events != nil {
		return c.Events
	}
	return stream.Default()
}

func (c *Converter) mappingCache() *projection.Cache {
	if c.mappings == nil {
		c.mappings = projection.NewCache()
	}
	return c.mappings
}

// run is the state of one conversion. Only the goroutine executing it
// touches the assembler.
type run struct {
	c            *Converter
	id           string
	mode         compositor.Mode
	source       string
	includeAudio bool
	layout       Layout
	log          zerolog.Logger
	started      time.Time

	frames     *frames.DirStore
	extraction *frames.Extraction
	depth      depth.Provider
	asm        *assembler.Assembler
	publisher  *hls.Publisher
	mapping    *projection.Mapping
	audio      string
	total      int
}

func (r *run) emit(e stream.Event) {
	e.RunID = r.id
	r.c.hub().Broadcast(e)
}

func (r *run) committed() int {
	if r.asm == nil {
		return 0
	}
	return r.asm.Total()
}

func (r *run) execute(ctx context.Context) (string, error) {
	cfg := r.c.Config

	lock, err := AcquireLock(cfg.Paths.WorkDir, r.id)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.log.Warn().Err(err).Msg("Failed to release lock")
		}
	}()

	if err := r.layout.Prepare(); err != nil {
		return "", err
	}
	r.log.Info().Str("source", r.source).Str("work_dir", r.layout.Root).Msg("Starting conversion")
	r.emit(stream.Event{Type: stream.RunStarted, Msg: r.source})

	store, err := frames.NewDirStore(r.layout.Frames)
	if err != nil {
		return "", err
	}
	r.frames = store
	ex := &frames.Extractor{Decoder: r.c.Transcoder, Store: store, BatchSize: cfg.Video.BatchSize}
	r.extraction, err = ex.Extract(ctx, r.source)
	if err != nil {
		return "", err
	}
	r.total = r.extraction.TotalFrames

	if err := r.prepareAudio(ctx); err != nil {
		return "", err
	}
	if err := r.openDepth(); err != nil {
		return "", err
	}
	defer r.closeDepth()

	seq, err := frames.NewDirStore(r.layout.Sequence)
	if err != nil {
		return "", err
	}
	r.asm = assembler.New(seq, r.c.Transcoder, assembler.Options{
		FPS:        cfg.Video.OutputFPS,
		Codec:      cfg.Video.Codec,
		Bitrate:    cfg.Video.Bitrate,
		SegmentDir: r.layout.Segments,
	})
	r.publisher = &hls.Publisher{
		Segmenter:      r.c.Transcoder,
		FPS:            cfg.Video.OutputFPS,
		SegmentSeconds: cfg.Video.HLSSeconds,
	}
	if r.mode == compositor.VR180 {
		r.mapping = r.c.mappingCache().Get(cfg.Processing.OutputWidth, cfg.Processing.FieldOfView,
			r.extraction.Width, r.extraction.Height)
		if r.mapping.ValidCount() == 0 {
			r.log.Warn().Float64("fov", cfg.Processing.FieldOfView).Msg("Projection has no valid pixels; output will be black")
		}
	}

	for _, b := range r.extraction.Batches {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("cancelled before %s: %w", b, err)
		}
		if err := r.runBatch(ctx, b); err != nil {
			return "", err
		}
	}

	return r.finish(ctx)
}

// prepareAudio extracts the source audio once, when requested and present.
func (r *run) prepareAudio(ctx context.Context) error {
	if !r.includeAudio {
		return nil
	}
	if !r.extraction.HasAudio {
		r.log.Warn().Str("source", r.source).Msg("Source has no audio stream; continuing without audio")
		return nil
	}
	out := r.layout.AudioFile()
	if err := r.c.Transcoder.ExtractAudio(ctx, r.source, out); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	r.audio = out
	return nil
}

func (r *run) openDepth() error {
	if r.c.Depth != nil {
		r.depth = r.c.Depth
		return nil
	}
	if r.c.NewDepth == nil {
		return errors.New("no depth provider configured")
	}
	p, err := r.c.NewDepth(r.c.Config.Depth)
	if err != nil {
		return fmt.Errorf("open depth provider: %w", err)
	}
	r.depth = p
	return nil
}

func (r *run) closeDepth() {
	if r.c.Depth != nil || r.depth == nil {
		return
	}
	if err := r.depth.Close(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to close depth provider")
	}
}

// runBatch processes, stages, encodes, commits and streams one batch. The
// live stream append is best-effort; everything else is fatal.
func (r *run) runBatch(ctx context.Context, b frames.Batch) error {
	bctx := context.WithoutCancel(ctx)
	r.log.Info().Int("batch", b.Index).Int("start", b.Start).Int("end", b.End).Msg("Processing batch")
	r.emit(stream.Event{Type: stream.BatchStarted, Batch: b.Index, Frames: r.committed(), Total: r.total})

	bl := r.layout.Batch(b.Index)
	composites, local, err := r.processBatch(bctx, b, bl)
	if err != nil {
		return fmt.Errorf("%s: %w", b, err)
	}
	staged, err := r.asm.Stage(b, composites, local)
	if err != nil {
		return err
	}

	segment, encErr := r.asm.Encode(bctx, staged)
	if err := r.asm.Commit(staged); err != nil {
		return err
	}

	if encErr != nil {
		r.log.Warn().Err(encErr).Int("batch", b.Index).Msg("Batch segment encode failed; skipping live append")
		r.emit(stream.Event{Type: stream.SegmentSkipped, Batch: b.Index, Frames: r.committed(), Total: r.total, Msg: encErr.Error()})
	} else if res, ok := r.publisher.TryAppend(bctx, segment, r.layout.Stream); ok {
		r.emit(stream.Event{Type: stream.SegmentAppended, Batch: b.Index, Frames: r.committed(), Total: r.total,
			Msg: fmt.Sprintf("%d segments from %d", len(res.Segments), res.StartNumber)})
	} else {
		r.emit(stream.Event{Type: stream.SegmentSkipped, Batch: b.Index, Frames: r.committed(), Total: r.total})
	}

	if !r.c.Config.Processing.KeepIntermediates {
		if err := os.RemoveAll(bl.Root); err != nil {
			r.log.Warn().Err(err).Str("dir", bl.Root).Msg("Failed to remove batch directory")
		}
	}
	r.emit(stream.Event{Type: stream.BatchDone, Batch: b.Index, Frames: r.committed(), Total: r.total})
	return nil
}

// finish encodes the global sequence, adds audio and metadata, and builds
// the final stream. Every step here is fatal.
func (r *run) finish(ctx context.Context) (string, error) {
	assembled := r.layout.AssembledFile()
	if err := r.asm.Finalize(ctx, assembled); err != nil {
		return "", err
	}

	video := assembled
	if r.audio != "" {
		muxed := r.layout.MuxedFile()
		if err := r.c.Transcoder.MuxAudio(ctx, assembled, r.audio, muxed); err != nil {
			return "", fmt.Errorf("mux audio: %w", err)
		}
		video = muxed
	}

	final := r.layout.FinalFile(r.mode)
	meta := transcode.VR180Metadata
	if r.mode == compositor.Anaglyph {
		meta = transcode.AnaglyphMetadata
	}
	if err := r.c.Transcoder.InjectMetadata(ctx, video, final, meta); err != nil {
		return "", fmt.Errorf("inject metadata: %w", err)
	}

	if _, err := r.publisher.Append(ctx, final, r.layout.FinalHLS); err != nil {
		return "", fmt.Errorf("final stream: %w", err)
	}
	if err := hls.Seal(r.layout.FinalHLS); err != nil {
		return "", fmt.Errorf("final stream: %w", err)
	}

	if r.c.Sink != nil {
		if err := r.c.Sink.Publish(ctx, r.id, final, r.layout.FinalHLS); err != nil {
			r.log.Warn().Err(err).Msg("Artifact upload failed")
		}
	}
	return final, nil
}
