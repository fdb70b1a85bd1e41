// Package faults defines the error taxonomy shared by the conversion stages.
// Stages wrap one of the sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceRead means the source video could not be opened or decoded to
	// at least one frame. Fatal before any batch starts.
	ErrSourceRead = errors.New("source read error")

	// ErrShapeMismatch means two images paired inside a batch differ in size.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDimensionDrift means a frame's size differs from the size the run
	// established with its first frame.
	ErrDimensionDrift = errors.New("dimension drift")

	// ErrExternalTool means ffmpeg, ffprobe or the depth model failed.
	ErrExternalTool = errors.New("external tool error")

	// ErrDiskWrite means the working directory could not be prepared or written.
	ErrDiskWrite = errors.New("disk write error")
)

// maxOutputTail bounds how much tool output is kept on a ToolError.
const maxOutputTail = 2048

// ToolError records a failed external process invocation.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

// NewToolError builds a ToolError keeping only the tail of output.
func NewToolError(tool string, args []string, output []byte, err error) *ToolError {
	out := strings.TrimSpace(string(output))
	if len(out) > maxOutputTail {
		out = "..." + out[len(out)-maxOutputTail:]
	}
	return &ToolError{Tool: tool, Args: args, Output: out, Err: err}
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

// Unwrap exposes both the process error and ErrExternalTool.
func (e *ToolError) Unwrap() []error {
	return []error{ErrExternalTool, e.Err}
}

// Mismatch returns an ErrShapeMismatch describing two sizes.
func Mismatch(what string, aw, ah, bw, bh int) error {
	return fmt.Errorf("%w: %s %dx%d vs %dx%d", ErrShapeMismatch, what, aw, ah, bw, bh)
}

// Drift returns an ErrDimensionDrift describing the expected and actual size.
func Drift(what string, wantW, wantH, gotW, gotH int) error {
	return fmt.Errorf("%w: %s is %dx%d, run established %dx%d", ErrDimensionDrift, what, gotW, gotH, wantW, wantH)
}
