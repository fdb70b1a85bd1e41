package depth

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

// fieldMagic prefixes every encoded field.
var fieldMagic = [4]byte{'D', 'P', 'T', 'H'}

// MaxFieldPixels bounds the header dimensions ReadField accepts, so a
// corrupt header cannot force a huge allocation. 8192x8192 covers 8K frames.
const MaxFieldPixels = 8192 * 8192

// WriteField encodes f as a zstd-compressed stream: magic, uint32 width,
// uint32 height, then little-endian float32 values.
func WriteField(w io.Writer, f *Field) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	var hdr [12]byte
	copy(hdr[:4], fieldMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(f.Width))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(f.Height))
	if _, err := bw.Write(hdr[:]); err != nil {
		enc.Close()
		return err
	}
	var buf [4]byte
	for _, v := range f.Values {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadField decodes a field written by WriteField.
func ReadField(r io.Reader) (*Field, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("read depth header: %w", err)
	}
	if [4]byte(hdr[:4]) != fieldMagic {
		return nil, errors.New("not a depth field")
	}
	w := int(binary.LittleEndian.Uint32(hdr[4:8]))
	h := int(binary.LittleEndian.Uint32(hdr[8:12]))
	if w <= 0 || h <= 0 || w > MaxFieldPixels/h {
		return nil, fmt.Errorf("depth field size %dx%d out of range", w, h)
	}

	f := NewField(w, h)
	var buf [4]byte
	for i := range f.Values {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("read depth values: %w", err)
		}
		f.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
	}
	return f, nil
}

// SaveField writes f to path.
func SaveField(path string, f *Field) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteField(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LoadField reads a field from path.
func LoadField(path string) (*Field, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return ReadField(in)
}
