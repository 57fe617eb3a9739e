// Package csiframe parses textual CSI records emitted by the radio's
// serial line into integer I/Q vectors.
package csiframe

import (
	"strconv"
	"strings"

	"github.com/barnettlynn/plkg/internal/plkgerr"
)

// Marker is the substring that identifies a CSI record on the wire.
const Marker = "CSI_DATA"

// Frame is the parsed integer sequence from one CSI_DATA line: an ordered
// sequence of signed integers, interpreted downstream either as N
// interleaved (I, Q) pairs or as N precomputed magnitudes.
type Frame struct {
	Values []int
}

// Parse extracts the bracketed, comma-separated integer list from a CSI
// line. It tolerates arbitrary prefix noise (e.g. per-frame MAC headers
// the radio logs ahead of the marker) by locating Marker first and then
// scanning forward for the bracketed region.
//
// A frame of odd length is still accepted here; amplitude computation
// downstream requires even length for I/Q frames and drops them (spec §4.1).
func Parse(line string) (Frame, error) {
	idx := strings.Index(line, Marker)
	if idx < 0 {
		return Frame{}, plkgerr.New(plkgerr.KindMalformedFrame, "csiframe", nil)
	}

	rest := line[idx:]
	open := strings.IndexByte(rest, '[')
	if open < 0 {
		return Frame{}, plkgerr.New(plkgerr.KindMalformedFrame, "csiframe", nil)
	}
	close := strings.IndexByte(rest[open:], ']')
	if close < 0 {
		return Frame{}, plkgerr.New(plkgerr.KindMalformedFrame, "csiframe", nil)
	}
	body := rest[open+1 : open+close]
	body = strings.TrimSpace(body)
	if body == "" {
		return Frame{}, plkgerr.New(plkgerr.KindMalformedFrame, "csiframe", nil)
	}

	fields := strings.Split(body, ",")
	values := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return Frame{}, plkgerr.New(plkgerr.KindMalformedFrame, "csiframe", nil)
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return Frame{}, plkgerr.New(plkgerr.KindMalformedFrame, "csiframe", err)
		}
		values = append(values, n)
	}

	return Frame{Values: values}, nil
}

// IsCSILine reports whether line looks like a CSI record, without fully
// parsing it. Used by the serial adapter to classify lines before
// dispatch.
func IsCSILine(line string) bool {
	return strings.Contains(line, Marker)
}
