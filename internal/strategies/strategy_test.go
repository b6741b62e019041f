package strategies

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/core"
)

var nan = math.NaN()

func series(t *testing.T, cols map[string][]float64) *core.Series {
	t.Helper()
	n := 0
	for _, c := range cols {
		n = len(c)
	}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		bars[i] = core.Bar{Ts: t0.Add(time.Duration(i) * time.Hour), Open: 1, High: 1, Low: 1, Close: 1}
	}
	s := core.NewSeries("X", "1h", bars)
	for name, c := range cols {
		var err error
		s, err = s.WithColumn(name, c)
		require.NoError(t, err)
	}
	return s
}

func signal(t *testing.T, s *core.Series) []int {
	t.Helper()
	sig, ok := s.Signal()
	require.True(t, ok)
	return sig
}

func TestCrossoverSignals(t *testing.T) {
	s := series(t, map[string][]float64{
		"SMA_2": {nan, 1, 3, 3, 1, 5},
		"SMA_4": {nan, 2, 2, 3, 2, 2},
	})
	out, err := NewCrossover(2, 4).Generate(s)
	require.NoError(t, err)
	// positions: 0 0 1 0(tie) 0 1
	assert.Equal(t, []int{0, 0, 1, -1, 0, 1}, signal(t, out))
}

func TestSignalFirstBarIsZero(t *testing.T) {
	s := series(t, map[string][]float64{
		"SMA_2": {5, 5, 1},
		"SMA_4": {1, 1, 2},
	})
	out, err := NewCrossover(2, 4).Generate(s)
	require.NoError(t, err)
	sig := signal(t, out)
	assert.Equal(t, 0, sig[0], "long from the first bar must not produce a signal there")
	assert.Equal(t, []int{0, 0, -1}, sig)
}

func TestSignalsAreDiffOfPositions(t *testing.T) {
	s := series(t, map[string][]float64{
		"SMA_3": {nan, 2, 3, 1, 4, 4, 0, 9},
		"SMA_5": {1, 1, 1, 2, 2, nan, 1, 1},
	})
	c := NewCrossover(3, 5)
	pos, err := c.Positions(s)
	require.NoError(t, err)
	out, err := c.Generate(s)
	require.NoError(t, err)
	sig := signal(t, out)
	for i := range sig {
		assert.Contains(t, []int{-1, 0, 1}, sig[i])
		if i > 0 && sig[i] != 0 {
			assert.NotEqual(t, pos[i], pos[i-1])
		}
	}
}

func TestTrendFilterIsConjunction(t *testing.T) {
	s := series(t, map[string][]float64{
		"SMA_10":  {1, 3, 3, 3, 3},
		"SMA_30":  {2, 2, 2, 2, 2},
		"SMA_200": {1, 5, 1, 1, 5},
	})
	out, err := NewCrossoverTrend(10, 30, 200).Generate(s)
	require.NoError(t, err)
	// crossover alone: 0 1 1 1 1, trend: 1 0 1 1 0
	assert.Equal(t, []int{0, 0, 1, 0, -1}, signal(t, out))
}

func TestTrendNeverLongWhenTrendUndefined(t *testing.T) {
	s := series(t, map[string][]float64{
		"SMA_10":  {3, 3, 3},
		"SMA_30":  {2, 2, 2},
		"SMA_200": {nan, nan, nan},
	})
	out, err := NewCrossoverTrend(10, 30, 200).Generate(s)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, signal(t, out))
}

func TestMissingColumn(t *testing.T) {
	s := series(t, map[string][]float64{"SMA_10": {1, 2}})
	_, err := NewCrossover(10, 30).Generate(s)
	assert.ErrorIs(t, err, core.ErrMissingColumn)
}

func TestGenerateDoesNotMutateInput(t *testing.T) {
	s := series(t, map[string][]float64{"SMA_1": {1, 2}, "SMA_2": {2, 1}})
	_, err := NewCrossover(1, 2).Generate(s)
	require.NoError(t, err)
	_, ok := s.Signal()
	assert.False(t, ok)
}

func TestWithAddsFilter(t *testing.T) {
	c := NewConjunction("custom", 3, Rule{Left: "a", Right: "b"}).With(Rule{Left: "c", Right: "d"}, 7)
	assert.Equal(t, 7, c.Warmup())
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.Columns())
	assert.Len(t, c.Rules(), 2)
}

func TestFromParams(t *testing.T) {
	s, err := FromParams("crossover", 10, 30, 200)
	require.NoError(t, err)
	assert.Equal(t, "MA_Cross_10_30", s.Name())
	assert.Equal(t, 30, s.Warmup())

	s, err = FromParams("ma_cross_trend", 10, 30, 200)
	require.NoError(t, err)
	assert.Equal(t, "MA_Cross_10_30_Trend_200", s.Name())
	assert.Equal(t, 200, s.Warmup())
	assert.Equal(t, []string{"SMA_10", "SMA_30", "SMA_200"}, s.Columns())

	_, err = FromParams("rsi", 1, 2, 3)
	assert.ErrorIs(t, err, core.ErrUnknownStrategy)
}
