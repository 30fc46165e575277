package stream

import (
	"strconv"
	"strings"

	"mediastream/internal/domain"
)

// RangeKind classifies the outcome of resolving a Range header.
type RangeKind int

const (
	// RangeFull means no usable Range header: serve the whole file.
	RangeFull RangeKind = iota
	// RangePartial carries a validated byte interval.
	RangePartial
	// RangeInvalid means the header is malformed or describes an interval
	// the resolver rejects (start > end, end beyond the file). Callers
	// treat it as if the header were absent.
	RangeInvalid
	// RangeUnsatisfiable means the header is well-formed but starts at or
	// past the end of the file. Callers surface 416.
	RangeUnsatisfiable
)

func (k RangeKind) String() string {
	switch k {
	case RangeFull:
		return "full"
	case RangePartial:
		return "partial"
	case RangeInvalid:
		return "invalid"
	case RangeUnsatisfiable:
		return "unsatisfiable"
	default:
		return "unknown"
	}
}

// RangeResolution is the resolver's answer for one header/size pair.
type RangeResolution struct {
	Kind  RangeKind
	Range domain.ByteRange
}

// ResolveRange parses an HTTP Range header against a known file size.
//
// Accepted shapes are bytes=start-end, bytes=start- and bytes=-suffix.
// Out-of-bounds intervals are never clamped: end >= size or start > end is
// Invalid, start >= size is Unsatisfiable. The two failure kinds are kept
// distinct because they map to different HTTP behavior (ignore vs 416).
func ResolveRange(header string, size int64) RangeResolution {
	header = strings.TrimSpace(header)
	if header == "" {
		return RangeResolution{Kind: RangeFull}
	}
	if size <= 0 {
		return RangeResolution{Kind: RangeUnsatisfiable}
	}

	if !strings.HasPrefix(strings.ToLower(header), "bytes=") {
		return RangeResolution{Kind: RangeInvalid}
	}
	spec := strings.TrimSpace(header[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return RangeResolution{Kind: RangeInvalid}
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return RangeResolution{Kind: RangeInvalid}
	}
	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])

	// bytes=-suffix: last N bytes of the file.
	if startStr == "" {
		if endStr == "" {
			return RangeResolution{Kind: RangeInvalid}
		}
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return RangeResolution{Kind: RangeInvalid}
		}
		start := size - suffix
		if start < 0 {
			start = 0
		}
		return RangeResolution{Kind: RangePartial, Range: domain.ByteRange{Start: start, End: size - 1}}
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return RangeResolution{Kind: RangeInvalid}
	}
	if start >= size {
		return RangeResolution{Kind: RangeUnsatisfiable}
	}

	// bytes=start-: open-ended suffix.
	if endStr == "" {
		return RangeResolution{Kind: RangePartial, Range: domain.ByteRange{Start: start, End: size - 1}}
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return RangeResolution{Kind: RangeInvalid}
	}
	if end < start || end >= size {
		return RangeResolution{Kind: RangeInvalid}
	}
	return RangeResolution{Kind: RangePartial, Range: domain.ByteRange{Start: start, End: end}}
}
