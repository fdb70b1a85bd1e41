// Package stereo synthesizes a left/right eye pair from one frame and its
// depth field by horizontal disparity scatter followed by hole inpainting.
package stereo

import (
	"image"
	"math"

	"github.com/stevecastle/stereo180/depth"
	"github.com/stevecastle/stereo180/faults"
)

// InpaintRadius is the neighbourhood searched when filling a hole.
const InpaintRadius = 3

// NeutralDepth is substituted when a frame has no depth field. With the
// default convention it gives no disparity at all.
const NeutralDepth = 1.0

// Pair is the left and right eye image for one frame.
type Pair struct {
	Left  *image.RGBA
	Right *image.RGBA
}

// Synthesizer holds the per-run disparity settings.
type Synthesizer struct {
	// MaxShift is the largest disparity in pixels.
	MaxShift int
	// InvertDepth shifts high depth values most instead of low ones.
	InvertDepth bool
}

// Synthesize is Synthesizer{MaxShift: maxShift}.Synthesize.
func Synthesize(frame *image.RGBA, field *depth.Field, maxShift int) (Pair, error) {
	return Synthesizer{MaxShift: maxShift}.Synthesize(frame, field)
}

// Synthesize builds the eye pair. Left receives each source pixel at x+d and
// right at x-d, clamped to the row; rows are scanned left to right and later
// writers win. Unwritten pixels are inpainted per eye.
func (s Synthesizer) Synthesize(frame *image.RGBA, field *depth.Field) (Pair, error) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if field == nil {
		field = depth.Uniform(w, h, s.neutral())
	}
	if field.Width != w || field.Height != h {
		return Pair{}, faults.Mismatch("frame/depth", w, h, field.Width, field.Height)
	}

	left := image.NewRGBA(image.Rect(0, 0, w, h))
	right := image.NewRGBA(image.Rect(0, 0, w, h))
	leftKnown := make([]bool, w*h)
	rightKnown := make([]bool, w*h)

	for y := 0; y < h; y++ {
		srcRow := frame.Pix[frame.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			d := s.shift(field.Values[y*w+x])
			px := srcRow[x*4 : x*4+4]

			lx := clampInt(x+d, 0, w-1)
			copyPixel(left, lx, y, px)
			leftKnown[y*w+lx] = true

			rx := clampInt(x-d, 0, w-1)
			copyPixel(right, rx, y, px)
			rightKnown[y*w+rx] = true
		}
	}

	Inpaint(left, leftKnown, InpaintRadius)
	Inpaint(right, rightKnown, InpaintRadius)
	return Pair{Left: left, Right: right}, nil
}

// Shift returns the integer disparity for a normalized depth value.
func (s Synthesizer) Shift(v float32) int {
	return s.shift(v)
}

func (s Synthesizer) shift(v float32) int {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	if !s.InvertDepth {
		v = 1 - v
	}
	return int(math.Round(float64(v) * float64(s.MaxShift)))
}

func (s Synthesizer) neutral() float32 {
	if s.InvertDepth {
		return 1 - NeutralDepth
	}
	return NeutralDepth
}

func copyPixel(dst *image.RGBA, x, y int, px []uint8) {
	i := y*dst.Stride + x*4
	dst.Pix[i+0] = px[0]
	dst.Pix[i+1] = px[1]
	dst.Pix[i+2] = px[2]
	dst.Pix[i+3] = 255
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
