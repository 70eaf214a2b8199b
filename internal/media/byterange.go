package media

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is an inclusive interval [Start, End] into a file.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range value for a 206 response.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiedRange renders the Content-Range value for a 416 response.
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange parses a single-range "bytes=" header against an entity of the
// given size. ok is false when the header is absent, in which case the full
// entity should be served. Anything that is not exactly one satisfiable
// range, including multi-range requests, yields ErrInvalidRange.
func ParseRange(header string, size int64) (r ByteRange, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ByteRange{}, false, nil
	}

	const unit = "bytes="
	if len(header) < len(unit) || !strings.EqualFold(header[:len(unit)], unit) {
		return ByteRange{}, false, ErrInvalidRange
	}
	spec := strings.TrimSpace(header[len(unit):])
	if strings.Contains(spec, ",") {
		return ByteRange{}, false, ErrInvalidRange
	}

	first, last, found := strings.Cut(spec, "-")
	if !found {
		return ByteRange{}, false, ErrInvalidRange
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)

	switch {
	case first == "" && last == "":
		return ByteRange{}, false, ErrInvalidRange

	case first == "":
		// suffix form: the final N bytes
		n, err := parseOffset(last)
		if err != nil || n == 0 {
			return ByteRange{}, false, ErrInvalidRange
		}
		r = ByteRange{Start: max(0, size-n), End: size - 1}

	case last == "":
		start, err := parseOffset(first)
		if err != nil {
			return ByteRange{}, false, ErrInvalidRange
		}
		r = ByteRange{Start: start, End: size - 1}

	default:
		start, err := parseOffset(first)
		if err != nil {
			return ByteRange{}, false, ErrInvalidRange
		}
		end, err := parseOffset(last)
		if err != nil {
			return ByteRange{}, false, ErrInvalidRange
		}
		r = ByteRange{Start: start, End: end}
	}

	if r.Start < 0 || r.Start > r.End || r.End >= size {
		return ByteRange{}, false, ErrInvalidRange
	}
	return r, true, nil
}

// parseOffset accepts only unsigned decimal digits.
func parseOffset(s string) (int64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
