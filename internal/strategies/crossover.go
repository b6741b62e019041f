package strategies

import (
	"fmt"

	"backtester/internal/core"
)

// NewCrossover is long while SMA(short) > SMA(long).
func NewCrossover(short, long int) *Conjunction {
	return NewConjunction(
		fmt.Sprintf("MA_Cross_%d_%d", short, long),
		max(short, long),
		Rule{Left: core.SMAColumn(short), Right: core.SMAColumn(long)},
	)
}

// NewCrossoverTrend additionally requires SMA(long) > SMA(trend).
func NewCrossoverTrend(short, long, trend int) *Conjunction {
	c := NewCrossover(short, long).
		With(Rule{Left: core.SMAColumn(long), Right: core.SMAColumn(trend)}, trend)
	c.name = fmt.Sprintf("MA_Cross_%d_%d_Trend_%d", short, long, trend)
	return c
}
