// Package compositor combines processed eye images into the final frame.
package compositor

import (
	"image"

	"github.com/stevecastle/stereo180/faults"
	"golang.org/x/image/draw"
)

// Mode selects the output representation.
type Mode string

const (
	// VR180 is a side-by-side equirectangular pair.
	VR180 Mode = "vr180"
	// Anaglyph is a single red/cyan image.
	Anaglyph Mode = "anaglyph"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case VR180, Anaglyph:
		return Mode(s), true
	}
	return "", false
}

// SideBySide places left and right next to each other.
func SideBySide(left, right *image.RGBA) (*image.RGBA, error) {
	lb, rb := left.Bounds(), right.Bounds()
	if lb.Size() != rb.Size() {
		return nil, faults.Mismatch("left/right", lb.Dx(), lb.Dy(), rb.Dx(), rb.Dy())
	}
	w, h := lb.Dx(), lb.Dy()
	out := image.NewRGBA(image.Rect(0, 0, 2*w, h))
	draw.Draw(out, image.Rect(0, 0, w, h), left, lb.Min, draw.Src)
	draw.Draw(out, image.Rect(w, 0, 2*w, h), right, rb.Min, draw.Src)
	return out, nil
}

// SplitSideBySide returns views of the two halves of a side-by-side frame.
func SplitSideBySide(img *image.RGBA) (left, right *image.RGBA) {
	b := img.Bounds()
	mid := b.Min.X + b.Dx()/2
	left = img.SubImage(image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y)).(*image.RGBA)
	right = img.SubImage(image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y)).(*image.RGBA)
	return left, right
}

// MakeAnaglyph takes red from left and green and blue from right.
func MakeAnaglyph(left, right *image.RGBA) (*image.RGBA, error) {
	lb, rb := left.Bounds(), right.Bounds()
	if lb.Size() != rb.Size() {
		return nil, faults.Mismatch("left/right", lb.Dx(), lb.Dy(), rb.Dx(), rb.Dy())
	}
	w, h := lb.Dx(), lb.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		li := left.PixOffset(lb.Min.X, lb.Min.Y+y)
		ri := right.PixOffset(rb.Min.X, rb.Min.Y+y)
		oi := out.PixOffset(0, y)
		for x := 0; x < w; x++ {
			out.Pix[oi+0] = left.Pix[li+0]
			out.Pix[oi+1] = right.Pix[ri+1]
			out.Pix[oi+2] = right.Pix[ri+2]
			out.Pix[oi+3] = 255
			li += 4
			ri += 4
			oi += 4
		}
	}
	return out, nil
}
