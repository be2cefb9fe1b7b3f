// Package stream implements single byte-range resolution (RFC 7233) and
// the bounded body readers used to send a window of a stored object.
package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable is returned for any range header that cannot be
// served against the object size.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// Plan describes what to send for one request.
type Plan struct {
	// Partial is true for a 206 response.
	Partial bool
	// Start and End are inclusive byte offsets. For a full response they
	// span the whole object (End is -1 for an empty object).
	Start int64
	End   int64
	// Size is the total object size.
	Size int64
}

// Length is the number of body bytes.
func (p Plan) Length() int64 {
	return p.End - p.Start + 1
}

// ContentRange returns the Content-Range value for a partial response.
func (p Plan) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", p.Start, p.End, p.Size)
}

// UnsatisfiedRange is the Content-Range value sent with a 416.
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Resolve turns an optional Range header into a Plan for an object of
// size bytes. An empty header means the full object. Supported forms are
// "bytes=start-end", "bytes=start-" and "bytes=-suffix"; end is clamped
// to size-1. Everything else returns ErrUnsatisfiable.
func Resolve(header string, size int64) (Plan, error) {
	if size < 0 {
		return Plan{}, fmt.Errorf("negative object size %d", size)
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return Plan{Start: 0, End: size - 1, Size: size}, nil
	}

	unit, set, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return Plan{}, ErrUnsatisfiable
	}
	set = strings.TrimSpace(set)
	if strings.Contains(set, ",") {
		return Plan{}, ErrUnsatisfiable
	}

	first, last, ok := strings.Cut(set, "-")
	if !ok {
		return Plan{}, ErrUnsatisfiable
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	var start, end int64
	switch {
	case first == "" && last == "":
		return Plan{}, ErrUnsatisfiable
	case first == "":
		n, ok := parseBound(last)
		if !ok || n == 0 || size == 0 {
			return Plan{}, ErrUnsatisfiable
		}
		if n > size {
			n = size
		}
		start, end = size-n, size-1
	default:
		s, ok := parseBound(first)
		if !ok {
			return Plan{}, ErrUnsatisfiable
		}
		start, end = s, size-1
		if last != "" {
			e, ok := parseBound(last)
			if !ok || e < s {
				return Plan{}, ErrUnsatisfiable
			}
			end = min(e, size-1)
		}
		if start >= size {
			return Plan{}, ErrUnsatisfiable
		}
	}

	return Plan{Partial: true, Start: start, End: end, Size: size}, nil
}

// parseBound accepts only plain decimal digits.
func parseBound(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
