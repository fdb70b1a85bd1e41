//go:build !cgo

package depth

import (
	"context"
	"errors"
	"image"
)

// ErrCGORequired is returned when MiDaS inference is attempted without CGO support.
var ErrCGORequired = errors.New("MiDaS depth requires CGO support; rebuild with CGO_ENABLED=1")

// MiDaS is unavailable without cgo.
type MiDaS struct{}

// NewMiDaS always fails in non-cgo builds.
func NewMiDaS(opts Options) (*MiDaS, error) {
	return nil, ErrCGORequired
}

// Predict always fails in non-cgo builds.
func (m *MiDaS) Predict(ctx context.Context, img *image.RGBA) (*Field, error) {
	return nil, ErrCGORequired
}

// Close is a no-op.
func (m *MiDaS) Close() error { return nil }
