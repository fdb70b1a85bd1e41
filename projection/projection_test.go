package projection

import (
	"errors"
	"image"
	"image/color"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/stevecastle/stereo180/faults"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// TestBuildMappingDeterministic verifies identical inputs give identical tables
func TestBuildMappingDeterministic(t *testing.T) {
	a := BuildMapping(64, 140, 48, 32)
	b := BuildMapping(64, 140, 48, 32)
	if !reflect.DeepEqual(a, b) {
		t.Error("BuildMapping() differs between identical calls")
	}
	if a.OutW != 64 || a.OutH != 32 {
		t.Errorf("grid = %dx%d; want 64x32", a.OutW, a.OutH)
	}
	if a.ValidCount() == 0 {
		t.Error("ValidCount() = 0; want some valid pixels")
	}
}

// TestBuildMappingCentre verifies the grid centre looks straight down the optical axis
func TestBuildMappingCentre(t *testing.T) {
	m := BuildMapping(64, 90, 40, 30)
	i := 16*64 + 32
	if !m.Valid[i] {
		t.Fatal("centre pixel invalid")
	}
	if math.Abs(float64(m.X[i])-20) > 1e-4 || math.Abs(float64(m.Y[i])-15) > 1e-4 {
		t.Errorf("centre maps to (%v,%v); want (20,15)", m.X[i], m.Y[i])
	}
	for i, v := range m.Valid {
		if !v {
			continue
		}
		if m.X[i] < 0 || m.X[i] >= 39 || m.Y[i] < 0 || m.Y[i] >= 29 {
			t.Fatalf("valid pixel %d maps outside source: (%v,%v)", i, m.X[i], m.Y[i])
		}
	}
}

// TestInvalidFieldOfView verifies out-of-range fields of view give an all-invalid mapping
func TestInvalidFieldOfView(t *testing.T) {
	for _, fov := range []float64{180, 200, 0, -10} {
		m := BuildMapping(32, fov, 16, 16)
		if n := m.ValidCount(); n != 0 {
			t.Errorf("fov %v ValidCount() = %d; want 0", fov, n)
		}
		out, err := Project(solid(16, 16, color.RGBA{255, 255, 255, 255}), m)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		for i := 0; i < len(out.Pix); i += 4 {
			if out.Pix[i] != 0 || out.Pix[i+1] != 0 || out.Pix[i+2] != 0 {
				t.Fatalf("fov %v pixel %d not black", fov, i/4)
			}
		}
	}
}

// TestProjectSolid verifies a solid source stays solid where valid
func TestProjectSolid(t *testing.T) {
	c := color.RGBA{90, 140, 200, 255}
	m := BuildMapping(64, 120, 48, 32)
	out, err := Project(solid(48, 32, c), m)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	for y := 0; y < m.OutH; y++ {
		for x := 0; x < m.OutW; x++ {
			valid := m.ValidAt(x, y)
			got := out.RGBAAt(x, y)
			if valid && got != c {
				t.Fatalf("(%d,%d) = %v; want %v", x, y, got, c)
			}
			if !valid && got != (color.RGBA{0, 0, 0, 255}) {
				t.Fatalf("(%d,%d) = %v; want black", x, y, got)
			}
		}
	}
}

// TestValidAt verifies output coordinates address the flipped grid row
func TestValidAt(t *testing.T) {
	m := &Mapping{OutW: 2, OutH: 2, Valid: []bool{true, false, false, false}}
	tests := []struct {
		x, y int
		want bool
	}{
		{0, 1, true},
		{0, 0, false},
		{1, 1, false},
		{-1, 0, false},
		{0, 2, false},
	}
	for _, tt := range tests {
		if got := m.ValidAt(tt.x, tt.y); got != tt.want {
			t.Errorf("ValidAt(%d, %d) = %v; want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

// TestProjectFlip verifies the top of the source ends up at the top of the output
func TestProjectFlip(t *testing.T) {
	src := solid(40, 40, color.RGBA{0, 0, 255, 255})
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.SetRGBA(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	m := BuildMapping(64, 90, 40, 40)
	out, err := Project(src, m)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	// upper rows of the mapping grid sample the lower half of the source;
	// after the flip they sit at the bottom.
	top := out.RGBAAt(32, 10)
	bottom := out.RGBAAt(32, 21)
	if top.R != 255 || bottom.B != 255 {
		t.Errorf("top = %v, bottom = %v; want red over blue", top, bottom)
	}
}

// TestProjectDrift verifies a frame of the wrong size is rejected
func TestProjectDrift(t *testing.T) {
	m := BuildMapping(32, 140, 16, 16)
	_, err := Project(solid(18, 16, color.RGBA{}), m)
	if !errors.Is(err, faults.ErrDimensionDrift) {
		t.Errorf("Project() error = %v; want ErrDimensionDrift", err)
	}
}

// TestCache verifies mappings are shared per key under concurrent access
func TestCache(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	results := make([]*Mapping, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(32, 140, 16, 16)
		}(i)
	}
	wg.Wait()
	for _, m := range results[1:] {
		if m != results[0] {
			t.Fatal("Get() returned distinct mappings for the same key")
		}
	}
	c.Get(32, 120, 16, 16)
	if c.Len() != 2 {
		t.Errorf("Len() = %d; want 2", c.Len())
	}
}
