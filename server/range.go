package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedRange is wrapped by RangeError for syntactically valid range
// forms the server does not serve, such as suffix or multi-part ranges.
var ErrUnsupportedRange = errors.New("unsupported range")

// RangeError describes a Range header that was ignored.
type RangeError struct {
	Header string
	Err    error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range %q: %v", e.Header, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// Range is a single byte range. End is inclusive, or -1 when open ended.
type Range struct {
	Start int64
	End   int64
}

// ParseRange parses "bytes=N-" and "bytes=N-M".
func ParseRange(header string) (Range, error) {
	fail := func(err error) (Range, error) {
		return Range{}, &RangeError{Header: header, Err: err}
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return fail(errors.New("unit must be bytes"))
	}
	if strings.Contains(spec, ",") {
		return fail(ErrUnsupportedRange)
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return fail(errors.New("missing '-'"))
	}
	if first == "" {
		if _, err := strconv.ParseUint(last, 10, 64); err != nil {
			return fail(fmt.Errorf("bad suffix length %q", last))
		}
		return fail(ErrUnsupportedRange)
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return fail(fmt.Errorf("bad start %q", first))
	}
	if last == "" {
		return Range{Start: start, End: -1}, nil
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return fail(fmt.Errorf("bad end %q", last))
	}
	return Range{Start: start, End: end}, nil
}
