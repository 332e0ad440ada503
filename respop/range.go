// Part of the Response Operation (spec.md §4.4): Range header parsing.
//
// Grounded on the shape of badu-http's filetransport/http_range.go, which
// parsed the same "bytes=a-b,c-d" grammar for net/http-style range
// requests; the clamping and rejection rules here follow spec.md's §4.4
// "Range parsing" steps rather than RFC 7233's own (closely related, but
// not identical) multi-range coalescing suggestions — this server never
// merges or sorts ranges, per spec.md §9(c).
package respop

import (
	"strconv"
	"strings"
)

// Range is a 64-bit half-open byte interval [Start, End) within a
// resource, as described in spec.md §3's Range model.
type Range struct {
	Start, End int64 // End is exclusive
}

// Length reports the number of bytes the range covers.
func (r Range) Length() int64 { return r.End - r.Start }

const rangePrefix = "bytes="

// ParseRange implements spec.md §4.4's "Range parsing": given the raw
// Range header value and the resource size, it returns the list of
// satisfiable ranges in input order, preserving duplicates and overlaps.
// A header without the "bytes=" prefix is ignored (nil, false). A header
// with the prefix but zero satisfiable specs after filtering is reported
// via present=true, empty slice, so the caller can tell "no Range header" from
// "Range header present but unsatisfiable" (416 per P3/the body-assembly
// table).
func ParseRange(header string, size int64) (ranges []Range, present bool) {
	if !strings.HasPrefix(header, rangePrefix) {
		return nil, false
	}
	specs := strings.Split(header[len(rangePrefix):], ",")
	out := make([]Range, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		r, ok := parseOneRange(spec, size)
		if ok {
			out = append(out, r)
		}
	}
	return out, true
}

func parseOneRange(spec string, size int64) (Range, bool) {
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return Range{}, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	switch {
	case startStr == "" && endStr == "":
		return Range{}, false

	case startStr == "": // suffix form: -N, the last N bytes
		n, err := parseNonNegativeInt(endStr)
		if err != nil {
			return Range{}, false
		}
		if n > size {
			n = size
		}
		if n == 0 {
			return Range{}, false
		}
		return Range{Start: size - n, End: size}, true

	case endStr == "": // open form: M-, from M to the end
		m, err := parseNonNegativeInt(startStr)
		if err != nil {
			return Range{}, false
		}
		if m >= size {
			return Range{}, false
		}
		return Range{Start: m, End: size}, true

	default: // a-b
		a, err1 := parseNonNegativeInt(startStr)
		b, err2 := parseNonNegativeInt(endStr)
		if err1 != nil || err2 != nil {
			return Range{}, false
		}
		if a > b || a >= size {
			return Range{}, false
		}
		if b >= size {
			b = size - 1
		}
		return Range{Start: a, End: b + 1}, true
	}
}

func parseNonNegativeInt(s string) (int64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
