package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/stevecastle/stereo180/assembler"
	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/depth"
	"github.com/stevecastle/stereo180/faults"
	"github.com/stevecastle/stereo180/frames"
	"github.com/stevecastle/stereo180/parallel"
	"github.com/stevecastle/stereo180/projection"
	"github.com/stevecastle/stereo180/stereo"
)

// processBatch estimates depth for every frame in order, then synthesizes,
// projects and composites the frames in parallel. Composites are written to
// the batch's composited store already numbered from 0, so staging them does
// not copy.
func (r *run) processBatch(ctx context.Context, b frames.Batch, bl BatchLayout) ([]assembler.Composite, *frames.DirStore, error) {
	cfg := r.c.Config.Processing
	if err := bl.Create(cfg.KeepIntermediates); err != nil {
		return nil, nil, err
	}
	composited, err := frames.NewDirStore(bl.Composited)
	if err != nil {
		return nil, nil, err
	}

	for _, f := range b.Frames {
		img, err := r.loadFrame(f)
		if err != nil {
			return nil, nil, err
		}
		field, err := r.depth.Predict(ctx, img)
		if err != nil {
			return nil, nil, fmt.Errorf("depth for frame %d: %w", f.Index, err)
		}
		if err := depth.SaveField(depthPath(bl, f), field); err != nil {
			return nil, nil, fmt.Errorf("%w: depth for frame %d: %v", faults.ErrDiskWrite, f.Index, err)
		}
	}

	synth := stereo.Synthesizer{MaxShift: cfg.MaxShift, InvertDepth: cfg.InvertDepth}
	composites := make([]assembler.Composite, b.Len())
	err = parallel.Each(b.Len(), cfg.Workers, func(i int) error {
		f := b.Frames[i]
		img, err := r.loadFrame(f)
		if err != nil {
			return err
		}
		field, err := depth.LoadField(depthPath(bl, f))
		if err != nil {
			return fmt.Errorf("load depth for frame %d: %w", f.Index, err)
		}
		pair, err := synth.Synthesize(img, field)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}
		if cfg.KeepIntermediates {
			if err := saveEyes(bl.Left, bl.Right, f.Key, pair.Left, pair.Right); err != nil {
				return err
			}
		}

		out, err := r.composite(bl, f, pair)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}
		key := frames.Key(i)
		if err := composited.Save(key, out); err != nil {
			return err
		}
		composites[i] = assembler.Composite{Index: f.Index, Key: key, Store: composited}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return composites, composited, nil
}

// composite turns one eye pair into the mode's output frame.
func (r *run) composite(bl BatchLayout, f frames.Frame, pair stereo.Pair) (*image.RGBA, error) {
	if r.mode == compositor.Anaglyph {
		return compositor.MakeAnaglyph(pair.Left, pair.Right)
	}
	left, err := projection.Project(pair.Left, r.mapping)
	if err != nil {
		return nil, err
	}
	right, err := projection.Project(pair.Right, r.mapping)
	if err != nil {
		return nil, err
	}
	if r.c.Config.Processing.KeepIntermediates {
		if err := saveEyes(bl.Projected, bl.Projected, f.Key, left, right); err != nil {
			return nil, err
		}
	}
	return compositor.SideBySide(left, right)
}

// loadFrame reads a decoded frame and checks it against the run's size.
func (r *run) loadFrame(f frames.Frame) (*image.RGBA, error) {
	img, err := r.frames.Load(f.Key)
	if err != nil {
		return nil, fmt.Errorf("load frame %d: %w", f.Index, err)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w != r.extraction.Width || h != r.extraction.Height {
		return nil, faults.Drift(fmt.Sprintf("frame %d", f.Index), r.extraction.Width, r.extraction.Height, w, h)
	}
	return img, nil
}

func depthPath(bl BatchLayout, f frames.Frame) string {
	return filepath.Join(bl.Depth, strings.TrimSuffix(f.Key, filepath.Ext(f.Key))+".dpth")
}

// saveEyes writes left and right as left_<key> and right_<key>.
func saveEyes(leftDir, rightDir, key string, left, right *image.RGBA) error {
	if err := (&frames.DirStore{Dir: leftDir}).Save("left_"+key, left); err != nil {
		return err
	}
	return (&frames.DirStore{Dir: rightDir}).Save("right_"+key, right)
}
