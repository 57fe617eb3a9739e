// Package cascade implements the Cascade Reconciliation Engine (spec §4.4):
// the initiator, responder and eavesdropper roles that turn a noisy Raw Key
// pair into an identical Reconciled Key over the Public Message channel.
package cascade

import (
	"math"

	"github.com/barnettlynn/plkg/internal/permute"
)

// Block is a contiguous span of positions in a pass's permuted ordering,
// [Start, Start+Length).
type Block struct {
	Start  int
	Length int
}

// BlockSize returns b(p) = max(2, floor(b0 * 1.5^p)), computed directly
// from b0 and pass each call so rounding from one pass never compounds
// into the next.
func BlockSize(b0, pass int) int {
	size := int(math.Floor(float64(b0) * math.Pow(1.5, float64(pass))))
	if size < 2 {
		size = 2
	}
	return size
}

// Partition splits n permuted positions into contiguous blocks of size
// blockSize; the final block may be short.
func Partition(n, blockSize int) []Block {
	if blockSize < 1 {
		blockSize = 1
	}
	var blocks []Block
	for start := 0; start < n; start += blockSize {
		length := blockSize
		if start+length > n {
			length = n - start
		}
		blocks = append(blocks, Block{Start: start, Length: length})
	}
	return blocks
}

// Parity returns the XOR of the bits at permuted positions
// [start, start+length) under perm. bits is the expanded one-byte-per-bit
// key (see internal/bitstring).
func Parity(bits []byte, perm permute.Permutation, start, length int) byte {
	var p byte
	for j := start; j < start+length; j++ {
		p ^= bits[perm.At(j)]
	}
	return p & 1
}

// Parities computes the block parity string (in block order, one '0'/'1'
// character each) for the given partition.
func Parities(bits []byte, perm permute.Permutation, blocks []Block) string {
	out := make([]byte, len(blocks))
	for i, b := range blocks {
		if Parity(bits, perm, b.Start, b.Length) == 1 {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}
