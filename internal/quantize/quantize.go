// Package quantize maps a Channel Mean Vector to a Raw Key: a fixed-length
// bit string sampled from amplitude anchors and voted over a neighborhood,
// using a Gray-coded dibit per anchor so adjacent amplitude tiers differ
// by a single bit.
package quantize

import (
	"sort"

	"github.com/barnettlynn/plkg/internal/bitstring"
	"github.com/barnettlynn/plkg/internal/plkgerr"
)

const (
	// DefaultKMain is the number of sampling anchors (k_main).
	DefaultKMain = 16
	// DefaultMNeighbors is the half-width of each voting window.
	DefaultMNeighbors = 2
)

// dibit is the Gray-code table: bin -> 2-bit emission.
var dibit = [4][2]byte{
	0: {0, 0},
	1: {0, 1},
	2: {1, 0},
	3: {1, 1},
}

// Quantize deterministically maps v (a Channel Mean Vector of length M) to
// a Raw Key of 2*kMain bits, packed MSB-first into bytes. kMain <= 0 or
// mNeighbors <= 0 fall back to the package defaults.
func Quantize(v []float64, kMain, mNeighbors int) ([]byte, error) {
	if kMain <= 0 {
		kMain = DefaultKMain
	}
	if mNeighbors <= 0 {
		mNeighbors = DefaultMNeighbors
	}

	m := len(v)
	if m < 2*mNeighbors+1 {
		return nil, plkgerr.New(plkgerr.KindQuantizerUnderflow, "quantize", nil)
	}

	q25, q50, q75 := percentiles(v)

	step := (m - 2*mNeighbors) / kMain
	if step < 1 {
		step = 1
	}

	bits := make([]byte, 0, 2*kMain)
	for i := 0; i < kMain; i++ {
		anchor := mNeighbors + i*step
		lo := clamp(anchor-mNeighbors, 0, m-1)
		hi := clamp(anchor+mNeighbors, 0, m-1)

		bin := votedBin(v[lo:hi+1], q25, q50, q75)
		bits = append(bits, dibit[bin][0], dibit[bin][1])
	}

	return bitstring.Pack(bits), nil
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// votedBin classifies every sample in window into one of four Gray-coded
// bins and returns the mode; ties favor the smallest-indexed bin.
func votedBin(window []float64, q25, q50, q75 float64) int {
	var counts [4]int
	for _, x := range window {
		counts[binOf(x, q25, q50, q75)]++
	}
	best, bestCount := 0, -1
	for bin, c := range counts {
		if c > bestCount {
			best, bestCount = bin, c
		}
	}
	return best
}

// binOf maps one sample to its Gray-coded bin. Note the 2/3 swap relative
// to plain quartile order: this is what makes adjacent amplitude tiers
// differ by a single bit in the emitted dibit.
func binOf(x, q25, q50, q75 float64) int {
	switch {
	case x < q25:
		return 0
	case x < q50:
		return 1
	case x < q75:
		return 3
	default:
		return 2
	}
}

// percentiles returns the 25th/50th/75th percentiles of v using linear
// interpolation between closest ranks.
func percentiles(v []float64) (q25, q50, q75 float64) {
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.25), percentile(sorted, 0.50), percentile(sorted, 0.75)
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
