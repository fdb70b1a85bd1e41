// Package frames holds decoded source frames: typed handles, batching, and
// the store that persists their pixels.
package frames

import "fmt"

// Frame is a handle to one decoded source frame. Index is 0-based and
// contiguous across the run; Key names the image in its Store.
type Frame struct {
	Index int
	Key   string
}

// Batch is a contiguous run of frames processed and published together.
// Start and End are inclusive frame indices.
type Batch struct {
	Index  int
	Start  int
	End    int
	Frames []Frame
}

// Len returns the number of frames in the batch.
func (b Batch) Len() int {
	return len(b.Frames)
}

func (b Batch) String() string {
	return fmt.Sprintf("batch %d [%d,%d]", b.Index, b.Start, b.End)
}

// Key returns the canonical zero-padded name for sequence position i.
func Key(i int) string {
	return fmt.Sprintf("frame_%06d.png", i)
}

// Partition splits frames into batches of size, in order. The last batch
// takes the remainder.
func Partition(frames []Frame, size int) []Batch {
	if size < 1 {
		size = 1
	}
	var batches []Batch
	for start := 0; start < len(frames); start += size {
		end := start + size
		if end > len(frames) {
			end = len(frames)
		}
		chunk := frames[start:end]
		batches = append(batches, Batch{
			Index:  len(batches),
			Start:  chunk[0].Index,
			End:    chunk[len(chunk)-1].Index,
			Frames: chunk,
		})
	}
	return batches
}
