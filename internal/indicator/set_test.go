package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

func newTestSet(t *testing.T) *Set {
	t.Helper()
	s := NewSet()
	require.NoError(t, s.Add("fast", NewSMA(1)))
	require.NoError(t, s.Add("macd1", NewMACD(2, 3, 2)))
	return s
}

func TestSetValueResolution(t *testing.T) {
	t.Parallel()
	s := newTestSet(t)

	for i := 1; i <= 10; i++ {
		c := types.Candle{Close: float64(100 + i)}
		s.Update(&c)
	}

	assert.Equal(t, 110.0, s.Value("fast"), "bare id resolves the default output")
	assert.False(t, math.IsNaN(s.Value("macd1.signal")))
	assert.False(t, math.IsNaN(s.Value("macd1.histogram")))
	assert.True(t, math.IsNaN(s.Value("macd1.bogus")), "unknown output is NaN")
	assert.True(t, math.IsNaN(s.Value("nope")), "unknown id is NaN")
}

func TestSetRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	s := NewSet()

	require.NoError(t, s.Add("x", NewOBV()))
	assert.Error(t, s.Add("x", NewOBV()))
	assert.True(t, s.Has("x"))
	assert.Equal(t, 1, s.Len())
}

func TestSetParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	seq := newTestSet(t)
	par := newTestSet(t)
	for i := 1; i <= 30; i++ {
		c := types.Candle{Close: 100 + math.Sin(float64(i))}
		seq.Update(&c)
		par.UpdateParallel(&c)
	}

	for _, ref := range []string{"fast", "macd1.value", "macd1.signal", "macd1.histogram"} {
		assert.InDelta(t, seq.Value(ref), par.Value(ref), 1e-15, ref)
	}
}
