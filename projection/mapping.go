// Package projection reprojects a flat perspective image onto an
// equirectangular half-sphere for VR180 playback.
package projection

import (
	"math"
	"runtime"
	"sync"

	"github.com/stevecastle/stereo180/parallel"
)

// Mapping is a per-pixel lookup from the OutW x OutH equirectangular grid
// into source image coordinates. Valid is false where the direction falls
// behind the camera or outside the source frame.
//
// X, Y and Valid are indexed y*OutW+x in grid order, where grid row 0 is the
// lowest latitude. Project writes the grid flipped, so output row 0 is grid
// row OutH-1. Use ValidAt to test a pixel of a projected image.
type Mapping struct {
	OutW, OutH int
	SrcW, SrcH int
	FOV        float64
	X, Y       []float32
	Valid      []bool
}

// ValidCount returns the number of destination pixels that sample the source.
func (m *Mapping) ValidCount() int {
	n := 0
	for _, v := range m.Valid {
		if v {
			n++
		}
	}
	return n
}

// ValidAt reports whether pixel (x, y) of an image produced by Project
// samples the source.
func (m *Mapping) ValidAt(x, y int) bool {
	if x < 0 || x >= m.OutW || y < 0 || y >= m.OutH {
		return false
	}
	return m.Valid[(m.OutH-1-y)*m.OutW+x]
}

// BuildMapping computes the lookup tables for an outW x outW/2 grid covering
// 180 degrees of longitude and 90 degrees of latitude, seen through a pinhole
// camera with the given horizontal field of view in degrees. A field of view
// outside (0,180) yields a mapping with every pixel invalid.
func BuildMapping(outW int, fov float64, srcW, srcH int) *Mapping {
	outH := outW / 2
	m := &Mapping{
		OutW:  outW,
		OutH:  outH,
		SrcW:  srcW,
		SrcH:  srcH,
		FOV:   fov,
		X:     make([]float32, outW*outH),
		Y:     make([]float32, outW*outH),
		Valid: make([]bool, outW*outH),
	}
	if fov <= 0 || fov >= 180 || srcW < 2 || srcH < 2 {
		return m
	}

	focal := (float64(srcW) / 2) / math.Tan(fov*math.Pi/360)
	cx, cy := float64(srcW)/2, float64(srcH)/2
	maxX, maxY := float64(srcW-1), float64(srcH-1)

	parallel.For(outH, runtime.NumCPU(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			lat := (float64(y)/float64(outH) - 0.5) * math.Pi / 2
			sinLat, cosLat := math.Sincos(lat)
			for x := 0; x < outW; x++ {
				lon := (float64(x)/float64(outW) - 0.5) * math.Pi
				sinLon, cosLon := math.Sincos(lon)
				dx := cosLat * sinLon
				dy := sinLat
				dz := cosLat * cosLon
				if dz <= 0 {
					continue
				}
				xf := dx*focal/dz + cx
				yf := -dy*focal/dz + cy
				if xf < 0 || xf >= maxX || yf < 0 || yf >= maxY {
					continue
				}
				i := y*outW + x
				m.X[i] = float32(xf)
				m.Y[i] = float32(yf)
				m.Valid[i] = true
			}
		}
	})
	return m
}

type cacheKey struct {
	outW, srcW, srcH int
	fov              float64
}

// Cache memoizes mappings per (outW, fov, srcW, srcH). It is safe for
// concurrent use; concurrent misses on the same key build it once.
type Cache struct {
	mu       sync.Mutex
	mappings map[cacheKey]*Mapping
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{mappings: make(map[cacheKey]*Mapping)}
}

// Get returns the cached mapping for the combination, building it on a miss.
func (c *Cache) Get(outW int, fov float64, srcW, srcH int) *Mapping {
	key := cacheKey{outW: outW, srcW: srcW, srcH: srcH, fov: fov}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mappings == nil {
		c.mappings = make(map[cacheKey]*Mapping)
	}
	if m, ok := c.mappings[key]; ok {
		return m
	}
	m := BuildMapping(outW, fov, srcW, srcH)
	c.mappings[key] = m
	return m
}

// Len returns the number of cached mappings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mappings)
}
