// Package csiagg accumulates parsed CSI frames per endpoint and reduces
// them to the Channel Mean Vector the quantizer consumes.
package csiagg

import (
	"math"

	"github.com/barnettlynn/plkg/internal/csiframe"
	"github.com/barnettlynn/plkg/internal/plkgerr"
)

// Range is a half-open subcarrier interval [Start, End) to keep when
// building the Channel Mean Vector.
type Range struct {
	Start, End int
}

// DefaultRanges are the useful subcarriers of an HT40 OFDM symbol with
// nulls and pilots excluded (spec §4.2).
func DefaultRanges() []Range {
	return []Range{{10, 60}, {70, 118}}
}

const (
	// DefaultWindow is the number of most recent frames retained (W).
	DefaultWindow = 200
	// MinModalFrames is the minimum surviving frame count after modal
	// filtering; below this the aggregator fails with insufficient_data.
	MinModalFrames = 10
	// longFrameThreshold distinguishes HT40 (magnitude-only) frames from
	// HT20/Legacy (I/Q) frames by raw value-count.
	longFrameThreshold = 64
)

// Aggregator accumulates CSI frames for one endpoint and retains only the
// most recent Window frames.
type Aggregator struct {
	Window int
	frames []csiframe.Frame
}

// New returns an Aggregator with the given retention window. A window <= 0
// uses DefaultWindow.
func New(window int) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{Window: window}
}

// Add appends a parsed frame, evicting the oldest frame if the window is
// full.
func (a *Aggregator) Add(f csiframe.Frame) {
	a.frames = append(a.frames, f)
	if len(a.frames) > a.Window {
		a.frames = a.frames[len(a.frames)-a.Window:]
	}
}

// Count returns the number of frames currently retained.
func (a *Aggregator) Count() int {
	return len(a.frames)
}

// Reset discards all retained frames.
func (a *Aggregator) Reset() {
	a.frames = nil
}

// ChannelMean reduces the retained frames to a Channel Mean Vector per
// spec §4.2:
//  1. filter to the modal frame length L*, fail if fewer than
//     MinModalFrames survive.
//  2. convert each retained frame to a per-subcarrier amplitude profile.
//  3. slice and concatenate the configured valid subcarrier ranges.
//  4. take the column-wise arithmetic mean.
func (a *Aggregator) ChannelMean(ranges []Range) ([]float64, error) {
	if len(ranges) == 0 {
		ranges = DefaultRanges()
	}

	modalLen, kept := filterByModalLength(a.frames)
	if modalLen <= longFrameThreshold && modalLen%2 != 0 {
		// Odd-length I/Q frames cannot be paired into complex samples.
		kept = nil
	}
	if len(kept) < MinModalFrames {
		return nil, plkgerr.New(plkgerr.KindInsufficientData, "csiagg", nil)
	}

	profiles := make([][]float64, len(kept))
	for i, f := range kept {
		profiles[i] = amplitudeProfile(f.Values, modalLen)
	}
	n := len(profiles[0])

	cols, err := sliceRanges(ranges, n)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, plkgerr.New(plkgerr.KindNoValidSubcarriers, "csiagg", nil)
	}

	mean := make([]float64, len(cols))
	for j := range mean {
		sum := 0.0
		col := cols[j]
		for _, p := range profiles {
			sum += p[col]
		}
		mean[j] = sum / float64(len(profiles))
	}
	return mean, nil
}

// filterByModalLength returns the statistical mode of frame value-lengths
// and the subset of frames whose length equals it.
func filterByModalLength(frames []csiframe.Frame) (int, []csiframe.Frame) {
	counts := make(map[int]int)
	for _, f := range frames {
		counts[len(f.Values)]++
	}
	modal, best := 0, -1
	for length, c := range counts {
		if c > best || (c == best && length < modal) {
			modal, best = length, c
		}
	}
	kept := make([]csiframe.Frame, 0, best)
	for _, f := range frames {
		if len(f.Values) == modal {
			kept = append(kept, f)
		}
	}
	return modal, kept
}

// amplitudeProfile computes the per-subcarrier magnitude for one frame.
// HT40 frames (length > longFrameThreshold) are interpreted as already
// being magnitudes; shorter frames are interpreted as interleaved (I, Q)
// pairs.
func amplitudeProfile(values []int, modalLen int) []float64 {
	if modalLen > longFrameThreshold {
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = math.Abs(float64(v))
		}
		return out
	}

	n := len(values) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		iPart := float64(values[2*i])
		qPart := float64(values[2*i+1])
		out[i] = math.Hypot(iPart, qPart)
	}
	return out
}

// sliceRanges returns the column indices kept after intersecting each
// configured range with [0, n), in order.
func sliceRanges(ranges []Range, n int) ([]int, error) {
	var cols []int
	for _, r := range ranges {
		if r.Start >= n {
			continue
		}
		end := r.End
		if end > n {
			end = n
		}
		for c := r.Start; c < end; c++ {
			cols = append(cols, c)
		}
	}
	return cols, nil
}
