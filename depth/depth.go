// Package depth defines per-frame depth fields and the providers that
// estimate them from a single RGB frame.
package depth

import (
	"context"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Field is a single-channel depth map normalized to [0,1], higher = closer.
// Values are row-major with len(Values) == Width*Height.
type Field struct {
	Width  int
	Height int
	Values []float32
}

// Provider estimates a depth field with the same size as img.
type Provider interface {
	Predict(ctx context.Context, img *image.RGBA) (*Field, error)
	Close() error
}

// NewField allocates a zeroed field.
func NewField(w, h int) *Field {
	return &Field{Width: w, Height: h, Values: make([]float32, w*h)}
}

// Uniform returns a field with every pixel set to v.
func Uniform(w, h int, v float32) *Field {
	f := NewField(w, h)
	for i := range f.Values {
		f.Values[i] = v
	}
	return f
}

// At returns the value at (x, y).
func (f *Field) At(x, y int) float32 {
	return f.Values[y*f.Width+x]
}

// Normalize rescales the field in place to [0,1] by min-max. A constant
// field becomes 0.5 everywhere.
func (f *Field) Normalize() {
	if len(f.Values) == 0 {
		return
	}
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range f.Values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for i, v := range f.Values {
		if span <= 0 {
			f.Values[i] = 0.5
			continue
		}
		f.Values[i] = (v - lo) / span
	}
}

// Gray renders the field as an 8-bit image for inspection.
func (f *Field) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Values {
		g.Pix[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return g
}

// Resize returns the field scaled to w x h with Catmull-Rom interpolation.
// The field must already be in [0,1].
func (f *Field) Resize(w, h int) *Field {
	if w == f.Width && h == f.Height {
		out := NewField(w, h)
		copy(out.Values, f.Values)
		return out
	}

	src := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src.SetGray16(x, y, color.Gray16{Y: uint16(clamp01(f.At(x, y))*65535 + 0.5)})
		}
	}
	dst := image.NewGray16(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := NewField(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Values[y*w+x] = float32(dst.Gray16At(x, y).Y) / 65535
		}
	}
	return out
}

// Flat is a Provider that returns the same value for every pixel. It stands
// in for a model when depth estimation is disabled.
type Flat struct {
	Value float32
}

// Predict returns a uniform field sized to img.
func (p Flat) Predict(ctx context.Context, img *image.RGBA) (*Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	return Uniform(b.Dx(), b.Dy(), p.Value), nil
}

// Close is a no-op.
func (Flat) Close() error { return nil }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
