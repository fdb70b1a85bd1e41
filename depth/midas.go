//go:build cgo

package depth

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/faults"
	ort "github.com/yalue/onnxruntime_go"
)

// MiDaS runs a MiDaS ONNX model through ONNX Runtime. The session and its
// tensors are created once and reused; Predict calls are serialized.
type MiDaS struct {
	mu      sync.Mutex
	opts    Options
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	session *ort.AdvancedSession
}

// NewMiDaS loads the model and prepares an inference session.
func NewMiDaS(opts Options) (*MiDaS, error) {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	} else if opts.ORTSharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.ORTSharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: onnxruntime init: %v", faults.ErrExternalTool, err)
		}
	}

	s := int64(opts.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s, s))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("%w: load %s: %v", faults.ErrExternalTool, opts.ModelPath, err)
	}

	log.Info().Str("model", opts.ModelPath).Int("input", opts.InputSize).Msg("MiDaS session ready")
	return &MiDaS{opts: opts, input: input, output: output, session: session}, nil
}

// Predict estimates depth for img, normalized to [0,1] and sized to img.
func (m *MiDaS) Predict(ctx context.Context, img *image.RGBA) (*Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), preprocess(img, m.opts.InputSize, m.opts.Mean, m.opts.Std))
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: midas inference: %v", faults.ErrExternalTool, err)
	}

	b := img.Bounds()
	return fieldFromOutput(m.output.GetData(), m.opts.InputSize, m.opts.InputSize, b.Dx(), b.Dy()), nil
}

// Close releases the session and the runtime environment.
func (m *MiDaS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.input.Destroy()
		m.output.Destroy()
		m.session = nil
	}
	return ort.DestroyEnvironment()
}
