package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/faults"
)

// Layout is the working tree of one run. Everything under Root belongs to
// the run and is purged when the next run starts.
type Layout struct {
	Root     string
	Frames   string
	Batches  string
	Sequence string
	Segments string
	Audio    string
	Output   string
	Stream   string
	FinalHLS string
}

// BatchLayout holds one batch's intermediate directories.
type BatchLayout struct {
	Root       string
	Depth      string
	Left       string
	Right      string
	Projected  string
	Composited string
}

// NewLayout describes the tree under root without touching the disk.
func NewLayout(root string) Layout {
	output := filepath.Join(root, "output")
	return Layout{
		Root:     root,
		Frames:   filepath.Join(root, "frames"),
		Batches:  filepath.Join(root, "batches"),
		Sequence: filepath.Join(root, "sequence"),
		Segments: filepath.Join(root, "segments"),
		Audio:    filepath.Join(root, "audio"),
		Output:   output,
		Stream:   filepath.Join(output, "stream"),
		FinalHLS: filepath.Join(output, "final_hls"),
	}
}

func (l Layout) dirs() []string {
	return []string{l.Frames, l.Batches, l.Sequence, l.Segments, l.Audio, l.Output, l.Stream, l.FinalHLS}
}

// Prepare removes every run directory and recreates it empty. Files placed
// directly in Root by someone else are left alone.
func (l Layout) Prepare() error {
	if err := os.MkdirAll(l.Root, 0755); err != nil {
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	for _, d := range l.dirs() {
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("%w: purge %s: %v", faults.ErrDiskWrite, d, err)
		}
	}
	for _, d := range l.dirs() {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
		}
	}
	return nil
}

// Batch returns the directories for batch i.
func (l Layout) Batch(i int) BatchLayout {
	root := filepath.Join(l.Batches, fmt.Sprintf("batch_%03d", i))
	return BatchLayout{
		Root:       root,
		Depth:      filepath.Join(root, "depth"),
		Left:       filepath.Join(root, "left"),
		Right:      filepath.Join(root, "right"),
		Projected:  filepath.Join(root, "projected"),
		Composited: filepath.Join(root, "composited"),
	}
}

// AudioFile is where the source audio track is extracted.
func (l Layout) AudioFile() string {
	return filepath.Join(l.Audio, "audio.wav")
}

// AssembledFile is the encode of the global sequence before audio and
// metadata.
func (l Layout) AssembledFile() string {
	return filepath.Join(l.Output, "assembled.mp4")
}

// MuxedFile is the assembled file with audio.
func (l Layout) MuxedFile() string {
	return filepath.Join(l.Output, "assembled_audio.mp4")
}

// FinalFile is the deliverable for mode.
func (l Layout) FinalFile(mode compositor.Mode) string {
	if mode == compositor.Anaglyph {
		return filepath.Join(l.Output, "final_anaglyph.mp4")
	}
	return filepath.Join(l.Output, "final_vr_180.mp4")
}

// Create makes the batch directories. Left, right and projected are only
// needed when intermediates are kept.
func (b BatchLayout) Create(keep bool) error {
	dirs := []string{b.Depth, b.Composited}
	if keep {
		dirs = append(dirs, b.Left, b.Right, b.Projected)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
		}
	}
	return nil
}
