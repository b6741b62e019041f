package data

import (
	"math/rand"
	"time"

	"backtester/internal/core"
)

// RandomWalk builds a synthetic series of n bars spaced by step. The same seed
// always yields the same series.
func RandomWalk(symbol string, step time.Duration, start time.Time, n int, startPrice, vol float64, seed int64) *core.Series {
	if step <= 0 {
		step = time.Minute
	}
	r := rand.New(rand.NewSource(seed))
	bars := make([]core.Bar, 0, n)
	price := startPrice
	ts := start
	for i := 0; i < n; i++ {
		open := price
		ret := (r.Float64() - 0.5) * 2.0 * vol // +/- vol
		closePx := open * (1.0 + ret)
		high := max(open, closePx) * (1.0 + r.Float64()*vol*0.5)
		low := min(open, closePx) * (1.0 - r.Float64()*vol*0.5)
		bars = append(bars, core.Bar{Ts: ts, Open: open, High: high, Low: low, Close: closePx, Volume: 10_000 + r.Float64()*5_000})
		price = closePx
		ts = ts.Add(step)
	}
	return core.NewSeries(symbol, FormatTimeframe(step), bars)
}
