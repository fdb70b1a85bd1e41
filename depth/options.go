package depth

import (
	"image"

	"github.com/nfnt/resize"
)

// Options configures the MiDaS ONNX provider.
type Options struct {
	ModelPath            string
	ORTSharedLibraryPath string
	InputName            string
	OutputName           string
	InputSize            int // square model input, 256 for MiDaS v2.1 small
	Mean                 [3]float32
	Std                  [3]float32
}

// DefaultOptions returns settings for MiDaS v2.1 small.
func DefaultOptions() Options {
	return Options{
		InputName:  "0",
		OutputName: "797",
		InputSize:  256,
		Mean:       [3]float32{0.485, 0.456, 0.406},
		Std:        [3]float32{0.229, 0.224, 0.225},
	}
}

// preprocess resizes img to size x size and returns an ImageNet-normalized
// NCHW float tensor.
func preprocess(img image.Image, size int, mean, std [3]float32) []float32 {
	scaled := resize.Resize(uint(size), uint(size), img, resize.Bicubic)
	b := scaled.Bounds()
	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := scaled.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*size + x
			data[i] = (float32(r>>8)/255 - mean[0]) / std[0]
			data[plane+i] = (float32(g>>8)/255 - mean[1]) / std[1]
			data[2*plane+i] = (float32(bl>>8)/255 - mean[2]) / std[2]
		}
	}
	return data
}

// fieldFromOutput turns raw relative inverse depth of size outW x outH into a
// normalized field of the frame's size.
func fieldFromOutput(raw []float32, outW, outH, frameW, frameH int) *Field {
	f := NewField(outW, outH)
	copy(f.Values, raw)
	f.Normalize()
	return f.Resize(frameW, frameH)
}
