// Package assembler turns per-batch composite frames into one globally
// ordered frame sequence and encodes both the per-batch segments and the
// final single file.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/frames"
	"github.com/stevecastle/stereo180/transcode"
)

// Encoder is the part of the transcoder the assembler needs.
type Encoder interface {
	EncodeSequence(ctx context.Context, req transcode.EncodeRequest) error
}

// Composite is a handle to one composited frame. Index is the source frame
// index it was derived from.
type Composite struct {
	Index int
	Key   string
	Store frames.Store
}

// Local is a batch's composites renumbered from 0 inside the batch's own
// store, ready to encode and commit.
type Local struct {
	Batch   int
	Start   int
	Count   int
	Store   *frames.DirStore
	Segment string
}

// Options configures the encodes.
type Options struct {
	FPS        int
	Codec      string
	Bitrate    string
	SegmentDir string
}

// Assembler owns the global frame counter. It is not safe for concurrent use:
// exactly one goroutine stages, commits and finalizes.
type Assembler struct {
	sequence  *frames.DirStore
	encoder   Encoder
	opts      Options
	next      int
	nextBatch int
}

// New returns an assembler writing the global sequence into sequence.
func New(sequence *frames.DirStore, encoder Encoder, opts Options) *Assembler {
	return &Assembler{sequence: sequence, encoder: encoder, opts: opts}
}

// Total is the number of frames committed so far.
func (a *Assembler) Total() int {
	return a.next
}

// Batches is the number of batches committed so far.
func (a *Assembler) Batches() int {
	return a.nextBatch
}

// Stage renumbers the batch's composites into local, zero-based and in index
// order. Composites must cover exactly the batch's frame indices.
func (a *Assembler) Stage(batch frames.Batch, composites []Composite, local *frames.DirStore) (*Local, error) {
	if len(composites) != batch.Len() {
		return nil, fmt.Errorf("%s: %d composites for %d frames", batch, len(composites), batch.Len())
	}
	ordered := make([]Composite, len(composites))
	copy(ordered, composites)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for i, c := range ordered {
		if c.Index != batch.Start+i {
			return nil, fmt.Errorf("%s: composite %d out of range or duplicated", batch, c.Index)
		}
		key := frames.Key(i)
		if c.Store.Path(c.Key) == local.Path(key) {
			continue
		}
		if err := local.Copy(key, c.Store, c.Key); err != nil {
			return nil, fmt.Errorf("stage %s: %w", batch, err)
		}
	}
	return &Local{Batch: batch.Index, Start: batch.Start, Count: len(ordered), Store: local}, nil
}

// Encode encodes the local sequence into the batch's segment file.
func (a *Assembler) Encode(ctx context.Context, local *Local) (string, error) {
	out := filepath.Join(a.opts.SegmentDir, fmt.Sprintf("batch_%03d.mp4", local.Batch))
	err := a.encoder.EncodeSequence(ctx, transcode.EncodeRequest{
		Dir:     local.Store.Dir,
		Pattern: transcode.FramePattern,
		FPS:     a.opts.FPS,
		Codec:   a.opts.Codec,
		Bitrate: a.opts.Bitrate,
		Output:  out,
	})
	if err != nil {
		return "", fmt.Errorf("encode batch %d: %w", local.Batch, err)
	}
	local.Segment = out
	return out, nil
}

// Commit appends local to the global sequence. The counter only advances
// once every frame of the batch has been written. Committing any batch other
// than the next expected one panics.
func (a *Assembler) Commit(local *Local) error {
	if local.Batch != a.nextBatch {
		panic(fmt.Sprintf("assembler: batch %d committed, expected batch %d", local.Batch, a.nextBatch))
	}
	for i := 0; i < local.Count; i++ {
		if err := a.sequence.Copy(frames.Key(a.next+i), local.Store, frames.Key(i)); err != nil {
			return fmt.Errorf("commit batch %d frame %d: %w", local.Batch, i, err)
		}
	}
	a.next += local.Count
	a.nextBatch++
	log.Debug().Int("batch", local.Batch).Int("frames", local.Count).Int("total", a.next).Msg("Committed batch")
	return nil
}

// ErrEmptySequence is returned by Finalize when nothing was committed.
var ErrEmptySequence = errors.New("global sequence is empty")

// Finalize encodes the whole global sequence into out.
func (a *Assembler) Finalize(ctx context.Context, out string) error {
	if a.next == 0 {
		return ErrEmptySequence
	}
	err := a.encoder.EncodeSequence(ctx, transcode.EncodeRequest{
		Dir:     a.sequence.Dir,
		Pattern: transcode.FramePattern,
		FPS:     a.opts.FPS,
		Codec:   a.opts.Codec,
		Bitrate: a.opts.Bitrate,
		Output:  out,
	})
	if err != nil {
		return fmt.Errorf("encode final sequence: %w", err)
	}
	log.Info().Int("frames", a.next).Str("file", out).Msg("Encoded final sequence")
	return nil
}
