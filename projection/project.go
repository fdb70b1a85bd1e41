package projection

import (
	"image"
	"math"

	"github.com/stevecastle/stereo180/faults"
)

// Project samples img through m and returns the equirectangular image,
// flipped vertically. Invalid pixels are opaque black.
func Project(img *image.RGBA, m *Mapping) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() != m.SrcW || b.Dy() != m.SrcH {
		return nil, faults.Drift("projection source", m.SrcW, m.SrcH, b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, m.OutW, m.OutH))
	base := img.PixOffset(b.Min.X, b.Min.Y)
	src := img.Pix[base:]
	for y := 0; y < m.OutH; y++ {
		row := dst.Pix[(m.OutH-1-y)*dst.Stride:]
		for x := 0; x < m.OutW; x++ {
			out := row[x*4 : x*4+4]
			i := y*m.OutW + x
			if !m.Valid[i] {
				out[0], out[1], out[2], out[3] = 0, 0, 0, 255
				continue
			}
			bilinear(src, img.Stride, float64(m.X[i]), float64(m.Y[i]), out)
		}
	}
	return dst, nil
}

// bilinear samples at (fx, fy). Callers guarantee fx+1 and fy+1 are in bounds.
func bilinear(pix []uint8, stride int, fx, fy float64, out []uint8) {
	x := int(math.Floor(fx))
	y := int(math.Floor(fy))
	tx := fx - float64(x)
	ty := fy - float64(y)

	i00 := y*stride + x*4
	i10 := i00 + 4
	i01 := i00 + stride
	i11 := i01 + 4

	w00 := (1 - tx) * (1 - ty)
	w10 := tx * (1 - ty)
	w01 := (1 - tx) * ty
	w11 := tx * ty

	for c := 0; c < 3; c++ {
		val := w00*float64(pix[i00+c]) + w10*float64(pix[i10+c]) + w01*float64(pix[i01+c]) + w11*float64(pix[i11+c])
		if val > 255 {
			val = 255
		}
		out[c] = uint8(val + 0.5)
	}
	out[3] = 255
}
