package csiagg

import (
	"testing"

	"github.com/barnettlynn/plkg/internal/csiframe"
	"github.com/barnettlynn/plkg/internal/plkgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iqFrame(vals ...int) csiframe.Frame {
	return csiframe.Frame{Values: vals}
}

func TestChannelMeanInsufficientData(t *testing.T) {
	agg := New(0)
	for i := 0; i < 5; i++ {
		agg.Add(iqFrame(1, 2, 3, 4))
	}
	_, err := agg.ChannelMean(nil)
	assert.True(t, plkgerr.Is(err, plkgerr.KindInsufficientData))
}

func TestChannelMeanDropsMismatchedLengths(t *testing.T) {
	agg := New(0)
	modal := make([]int, 128)
	for i := range modal {
		if i%2 == 0 {
			modal[i] = 1
		}
	}
	for i := 0; i < 12; i++ {
		agg.Add(iqFrame(modal...))
	}
	// Add a handful of short, mismatched-length outliers that must be dropped.
	agg.Add(iqFrame(1, 2))
	agg.Add(iqFrame(3, 4))

	mean, err := agg.ChannelMean([]Range{{0, 64}})
	require.NoError(t, err)
	assert.Len(t, mean, 64)
}

func TestChannelMeanNoValidSubcarriers(t *testing.T) {
	agg := New(0)
	for i := 0; i < 12; i++ {
		agg.Add(iqFrame(1, 2, 3, 4))
	}
	_, err := agg.ChannelMean([]Range{{100, 200}})
	assert.True(t, plkgerr.Is(err, plkgerr.KindNoValidSubcarriers))
}

func TestChannelMeanHT40MagnitudePath(t *testing.T) {
	agg := New(0)
	long := make([]int, 128)
	for i := range long {
		long[i] = -5
	}
	for i := 0; i < 12; i++ {
		agg.Add(iqFrame(long...))
	}
	mean, err := agg.ChannelMean([]Range{{10, 60}, {70, 118}})
	require.NoError(t, err)
	for _, v := range mean {
		assert.Equal(t, 5.0, v)
	}
}

func TestChannelMeanHT20IQPath(t *testing.T) {
	agg := New(0)
	// 8 subcarriers worth of I/Q pairs, all magnitude 5 (3-4-5 triangle).
	short := make([]int, 0, 16)
	for i := 0; i < 8; i++ {
		short = append(short, 3, 4)
	}
	for i := 0; i < 12; i++ {
		agg.Add(iqFrame(short...))
	}
	mean, err := agg.ChannelMean([]Range{{0, 8}})
	require.NoError(t, err)
	for _, v := range mean {
		assert.InDelta(t, 5.0, v, 1e-9)
	}
}

func TestWindowEviction(t *testing.T) {
	agg := New(3)
	agg.Add(iqFrame(1))
	agg.Add(iqFrame(2))
	agg.Add(iqFrame(3))
	agg.Add(iqFrame(4))
	assert.Equal(t, 3, agg.Count())
}
