// Package pathcodec encodes sibling ranks as fixed-width base36 segments.
// Concatenated segments form a materialized path whose lexicographic
// order equals the tree's depth-first order, so subtree queries reduce
// to prefix scans on the storage index.
package pathcodec

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const radix = 36

// DefaultWidth bounds each node to 36^3-1 = 46655 children.
const DefaultWidth = 3

var (
	// ErrCapacityExceeded is returned when a rank does not fit into a
	// fixed-width segment, or a path would exceed the configured depth.
	ErrCapacityExceeded = errors.New("pathcodec: capacity exceeded")
	// ErrBadSegment is returned when decoding malformed input.
	ErrBadSegment = errors.New("pathcodec: bad segment")
)

// Codec converts between integer sibling ranks and fixed-width segments.
// The zero value is not usable; obtain one via New.
type Codec struct {
	width int
	max   int // largest encodable rank, 36^width - 1
}

func New(width int) (Codec, error) {
	if width < 1 || width > 8 {
		return Codec{}, fmt.Errorf("pathcodec: invalid segment width %d", width)
	}
	max := 1
	for i := 0; i < width; i++ {
		max *= radix
	}
	return Codec{width: width, max: max - 1}, nil
}

func (c Codec) Width() int {
	return c.width
}

// MaxRank is the largest rank a single segment can hold.
func (c Codec) MaxRank() int {
	return c.max
}

// Encode converts a non-negative rank into a zero-padded base36 segment.
// Lexicographic comparison of segments matches numeric comparison of ranks.
func (c Codec) Encode(rank int) (string, error) {
	if rank < 0 {
		return "", fmt.Errorf("%w: negative rank %d", ErrBadSegment, rank)
	}
	if rank > c.max {
		return "", fmt.Errorf("%w: rank %d does not fit in %d base36 digits", ErrCapacityExceeded, rank, c.width)
	}

	buf := make([]byte, c.width)
	for i := c.width - 1; i >= 0; i-- {
		buf[i] = digits[rank%radix]
		rank /= radix
	}
	return string(buf), nil
}

// Decode converts a segment back into its rank.
func (c Codec) Decode(segment string) (int, error) {
	if len(segment) != c.width {
		return 0, fmt.Errorf("%w: segment %q has length %d, want %d", ErrBadSegment, segment, len(segment), c.width)
	}
	rank := 0
	for i := 0; i < len(segment); i++ {
		d := strings.IndexByte(digits, segment[i])
		if d < 0 {
			return 0, fmt.Errorf("%w: segment %q has invalid digit %q", ErrBadSegment, segment, segment[i])
		}
		rank = rank*radix + d
	}
	return rank, nil
}

// Append extends a parent path by one encoded rank.
func (c Codec) Append(parentPath string, rank int) (string, error) {
	seg, err := c.Encode(rank)
	if err != nil {
		return "", err
	}
	return parentPath + seg, nil
}

// Split breaks a path into its segments.
func (c Codec) Split(path string) ([]string, error) {
	if len(path)%c.width != 0 {
		return nil, fmt.Errorf("%w: path %q is not a multiple of width %d", ErrBadSegment, path, c.width)
	}
	segs := make([]string, 0, len(path)/c.width)
	for i := 0; i < len(path); i += c.width {
		segs = append(segs, path[i:i+c.width])
	}
	return segs, nil
}

// Depth is the number of segments in a path. A root path holds exactly
// one segment, so depth(root) = 0.
func (c Codec) Depth(path string) int {
	if len(path) == 0 {
		return 0
	}
	return len(path)/c.width - 1
}

// IsPrefix reports whether ancestor's path is a whole-segment prefix of
// descendant's path. Equal paths are not considered prefixes.
func (c Codec) IsPrefix(ancestorPath, descendantPath string) bool {
	if len(ancestorPath) == 0 || len(ancestorPath) >= len(descendantPath) {
		return false
	}
	return strings.HasPrefix(descendantPath, ancestorPath)
}

// CommonPrefix returns the longest whole-segment prefix shared by two
// paths. An empty result means the nodes live under different roots.
func (c Codec) CommonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	common := 0
	for i := 0; i+c.width <= n; i += c.width {
		if a[i:i+c.width] != b[i:i+c.width] {
			break
		}
		common = i + c.width
	}
	return a[:common]
}
