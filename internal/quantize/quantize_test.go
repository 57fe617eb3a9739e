package quantize

import (
	"testing"

	"github.com/barnettlynn/plkg/internal/plkgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQuantizeUnderflow(t *testing.T) {
	_, err := Quantize([]float64{1, 2, 3}, 4, 2)
	assert.True(t, plkgerr.Is(err, plkgerr.KindQuantizerUnderflow))
}

func TestQuantizeOutputLength(t *testing.T) {
	v := make([]float64, 64)
	for i := range v {
		v[i] = float64(i)
	}
	raw, err := Quantize(v, 16, 2)
	require.NoError(t, err)
	assert.Equal(t, (2*16+7)/8, len(raw))
}

func TestQuantizeIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(5, 200).Draw(t, "n")
		v := rapid.SliceOfN(rapid.Float64Range(0, 1000), n, n).Draw(t, "v")

		a, errA := Quantize(v, 16, 2)
		b, errB := Quantize(v, 16, 2)
		require.Equal(t, errA, errB)
		assert.Equal(t, a, b)
	})
}

func TestBinOfGrayOrdering(t *testing.T) {
	// Adjacent amplitude tiers must differ by exactly one bit: in rising
	// amplitude order binOf yields bins 0, 1, 3, 2 (the 2/3 swap), which the
	// dibit table emits as 00, 01, 11, 10.
	assert.Equal(t, 0, binOf(0.5, 1, 2, 3))
	assert.Equal(t, 1, binOf(1.5, 1, 2, 3))
	assert.Equal(t, 3, binOf(2.5, 1, 2, 3))
	assert.Equal(t, 2, binOf(3.5, 1, 2, 3))
	assert.Equal(t, [2]byte{0, 0}, dibit[0])
	assert.Equal(t, [2]byte{0, 1}, dibit[1])
	assert.Equal(t, [2]byte{1, 0}, dibit[2])
	assert.Equal(t, [2]byte{1, 1}, dibit[3])
}
