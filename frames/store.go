package frames

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/stevecastle/stereo180/faults"
	"golang.org/x/image/draw"
)

// Store persists frame images by key. The pipeline keeps its ordering in
// typed handles; a Store is only where the pixels live.
type Store interface {
	Save(key string, img image.Image) error
	Load(key string) (*image.RGBA, error)
	// Copy copies srcKey from src into this store as dstKey without re-encoding.
	Copy(dstKey string, src Store, srcKey string) error
	// Path returns the file backing key, for handing to external tools.
	Path(key string) string
	// Keys lists stored PNG keys in frame order.
	Keys() ([]string, error)
}

// DirStore keeps each frame as a PNG file in one directory.
type DirStore struct {
	Dir string
}

// NewDirStore creates dir if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	return &DirStore{Dir: dir}, nil
}

var _ Store = (*DirStore)(nil)

// Path returns the file for key.
func (s *DirStore) Path(key string) string {
	return filepath.Join(s.Dir, key)
}

// Save encodes img as PNG at BestSpeed.
func (s *DirStore) Save(key string, img image.Image) error {
	f, err := os.Create(s.Path(key))
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode %s: %v", faults.ErrDiskWrite, key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	return nil
}

// Load decodes key into an RGBA image.
func (s *DirStore) Load(key string) (*image.RGBA, error) {
	f, err := os.Open(s.Path(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return ToRGBA(img), nil
}

// Copy copies the file behind srcKey.
func (s *DirStore) Copy(dstKey string, src Store, srcKey string) error {
	in, err := os.Open(src.Path(srcKey))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(s.Path(dstKey))
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: copy %s: %v", faults.ErrDiskWrite, srcKey, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %v", faults.ErrDiskWrite, err)
	}
	return nil
}

// Keys lists *.png entries in frame order. Names that differ only in their
// numeric suffix compare by number, so frame_1000000 follows frame_999999.
func (s *DirStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			keys = append(keys, e.Name())
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys, nil
}

var numberedKey = regexp.MustCompile(`^(.*?)(\d+)\.(?i:png)$`)

func keyLess(a, b string) bool {
	ma, mb := numberedKey.FindStringSubmatch(a), numberedKey.FindStringSubmatch(b)
	if ma != nil && mb != nil && ma[1] == mb[1] {
		na, errA := strconv.Atoi(ma[2])
		nb, errB := strconv.Atoi(mb[2])
		if errA == nil && errB == nil && na != nb {
			return na < nb
		}
	}
	return a < b
}

// ToRGBA converts any image to *image.RGBA anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
