package stereo

import (
	"image"
	"math"
)

// Inpaint fills every pixel whose known flag is false. Holes are filled from
// the outside in: each pass fills the holes that have at least one known
// pixel within radius, using an inverse-distance weighted mean of those
// pixels, and the filled pixels become known for the next pass. known is
// updated in place.
func Inpaint(img *image.RGBA, known []bool, radius int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if radius < 1 {
		radius = 1
	}

	var holes []int
	for i, k := range known {
		if !k {
			holes = append(holes, i)
		}
	}
	if len(holes) == 0 || len(holes) == w*h {
		return
	}

	type fill struct {
		idx int
		rgb [3]uint8
	}
	weights := distanceWeights(radius)

	for len(holes) > 0 {
		var filled []fill
		remaining := holes[:0]
		for _, idx := range holes {
			x, y := idx%w, idx/w
			var sum [3]float64
			var wsum float64
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || !known[ny*w+nx] {
						continue
					}
					wt := weights[(dy+radius)*(2*radius+1)+dx+radius]
					if wt == 0 {
						continue
					}
					p := ny*img.Stride + nx*4
					sum[0] += wt * float64(img.Pix[p+0])
					sum[1] += wt * float64(img.Pix[p+1])
					sum[2] += wt * float64(img.Pix[p+2])
					wsum += wt
				}
			}
			if wsum == 0 {
				remaining = append(remaining, idx)
				continue
			}
			filled = append(filled, fill{idx: idx, rgb: [3]uint8{
				uint8(sum[0]/wsum + 0.5),
				uint8(sum[1]/wsum + 0.5),
				uint8(sum[2]/wsum + 0.5),
			}})
		}
		if len(filled) == 0 {
			return
		}
		for _, f := range filled {
			x, y := f.idx%w, f.idx/w
			p := y*img.Stride + x*4
			img.Pix[p+0] = f.rgb[0]
			img.Pix[p+1] = f.rgb[1]
			img.Pix[p+2] = f.rgb[2]
			img.Pix[p+3] = 255
			known[f.idx] = true
		}
		holes = remaining
	}
}

// distanceWeights returns 1/distance for every offset inside the circular
// window, and 0 outside it and at the centre.
func distanceWeights(radius int) []float64 {
	side := 2*radius + 1
	out := make([]float64, side*side)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d := math.Hypot(float64(dx), float64(dy))
			if d == 0 || d > float64(radius) {
				continue
			}
			out[(dy+radius)*side+dx+radius] = 1 / d
		}
	}
	return out
}
