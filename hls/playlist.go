package hls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	header      = "#EXTM3U"
	endList     = "#EXT-X-ENDLIST"
	tagInf      = "#EXTINF:"
	tagSequence = "#EXT-X-MEDIA-SEQUENCE:"
	tagTarget   = "#EXT-X-TARGETDURATION:"
	tagType     = "#EXT-X-PLAYLIST-TYPE:"
	tagDiscont  = "#EXT-X-DISCONTINUITY"
)

// ErrNotPlaylist is returned for input without the #EXTM3U header.
var ErrNotPlaylist = errors.New("not an m3u8 playlist")

// Entry is one media segment reference.
type Entry struct {
	URI      string
	Duration float64
	// Number is parsed from segment_NNNNN.ts names, -1 otherwise.
	Number int
	// Discontinuity is set when the entry follows an EXT-X-DISCONTINUITY tag.
	Discontinuity bool
}

// Playlist is the subset of a media playlist the publisher writes.
type Playlist struct {
	Type           string
	TargetDuration int
	MediaSequence  int
	Entries        []Entry
	Ended          bool
}

// Numbers returns the segment numbers of all entries in order.
func (p *Playlist) Numbers() []int {
	out := make([]int, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Number
	}
	return out
}

// Duration sums the entry durations.
func (p *Playlist) Duration() float64 {
	var d float64
	for _, e := range p.Entries {
		d += e.Duration
	}
	return d
}

// Contiguous reports whether segment numbers increase by exactly one.
func (p *Playlist) Contiguous() bool {
	for i := 1; i < len(p.Entries); i++ {
		if p.Entries[i].Number != p.Entries[i-1].Number+1 {
			return false
		}
	}
	return true
}

// ParsePlaylist reads a media playlist.
func ParsePlaylist(r io.Reader) (*Playlist, error) {
	sc := bufio.NewScanner(r)
	pl := &Playlist{}
	first := true
	var pending *Entry
	discont := false

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first {
			if line != header {
				return nil, ErrNotPlaylist
			}
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, tagInf):
			v := strings.TrimPrefix(line, tagInf)
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("bad EXTINF %q: %w", line, err)
			}
			pending = &Entry{Duration: d, Discontinuity: discont}
			discont = false
		case strings.HasPrefix(line, tagSequence):
			n, err := strconv.Atoi(strings.TrimPrefix(line, tagSequence))
			if err != nil {
				return nil, fmt.Errorf("bad media sequence %q: %w", line, err)
			}
			pl.MediaSequence = n
		case strings.HasPrefix(line, tagTarget):
			n, err := strconv.Atoi(strings.TrimPrefix(line, tagTarget))
			if err != nil {
				return nil, fmt.Errorf("bad target duration %q: %w", line, err)
			}
			pl.TargetDuration = n
		case strings.HasPrefix(line, tagType):
			pl.Type = strings.TrimPrefix(line, tagType)
		case line == tagDiscont:
			discont = true
		case line == endList:
			pl.Ended = true
		case strings.HasPrefix(line, "#"):
			// other tags are not needed
		default:
			if pending == nil {
				return nil, fmt.Errorf("segment %q without EXTINF", line)
			}
			pending.URI = line
			pending.Number = -1
			if m := segmentName.FindStringSubmatch(line); m != nil {
				pending.Number, _ = strconv.Atoi(m[1])
			}
			pl.Entries = append(pl.Entries, *pending)
			pending = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, ErrNotPlaylist
	}
	return pl, nil
}

// ReadPlaylist parses the playlist at path.
func ReadPlaylist(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePlaylist(f)
}
