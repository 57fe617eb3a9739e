// Package permute derives the Cascade protocol's per-pass permutation. It
// is pinned to a single documented algorithm (Fisher-Yates shuffle seeded
// from a math/rand/v2 PCG source) so that independent implementations of
// both endpoints interoperate: see spec.md's design note on the source's
// ambiguous, platform-default PRNG.
package permute

import "math/rand/v2"

// Permutation is a total bijection over {0, ..., n-1}: Forward[i] is the
// element placed at position i.
type Permutation struct {
	Forward []int
}

// Derive builds the deterministic permutation for pass p over n elements.
// Both endpoints call Derive(p, n) independently and are guaranteed to
// compute identical results, since the PCG source is seeded purely from p.
func Derive(pass, n int) Permutation {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	src := rand.NewPCG(uint64(pass), uint64(pass))
	rnd := rand.New(src)
	// Fisher-Yates, high to low, matching rand.Shuffle's own algorithm so
	// the sequence is exactly reproducible from the PCG stream alone.
	for i := n - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return Permutation{Forward: idx}
}

// At returns the element the permutation places at position i.
func (p Permutation) At(i int) int {
	return p.Forward[i]
}

// Len returns the size of the permuted domain.
func (p Permutation) Len() int {
	return len(p.Forward)
}
