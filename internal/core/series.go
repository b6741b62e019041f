package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Canonical indicator column names.
const (
	ColRSI    = "RSI_14"
	ColStochK = "STOCHk_14_3_3"
	ColStochD = "STOCHd_14_3_3"
)

// SMAColumn names the simple moving average column for a window.
func SMAColumn(window int) string { return "SMA_" + strconv.Itoa(window) }

// Series is an ordered bar table with optional indicator columns and an
// optional signal column. Columns are aligned with Bars; undefined values are NaN.
// A Series is treated as immutable: With* methods return a new Series.
type Series struct {
	Symbol string
	TF     string
	Bars   []Bar

	cols   map[string][]float64
	signal []int
}

func NewSeries(symbol, tf string, bars []Bar) *Series {
	return &Series{Symbol: symbol, TF: tf, Bars: bars, cols: map[string][]float64{}}
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Column returns the indicator column by name.
func (s *Series) Column(name string) ([]float64, bool) {
	c, ok := s.cols[name]
	return c, ok
}

// Columns lists indicator column names in sorted order.
func (s *Series) Columns() []string {
	out := make([]string, 0, len(s.cols))
	for k := range s.cols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Require returns ErrMissingColumn naming the first absent column.
func (s *Series) Require(names ...string) error {
	for _, n := range names {
		if _, ok := s.cols[n]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, n)
		}
	}
	return nil
}

// Signal returns the signal column, if generated.
func (s *Series) Signal() ([]int, bool) {
	return s.signal, s.signal != nil
}

// WithColumn returns a copy of s carrying the extra column.
func (s *Series) WithColumn(name string, vals []float64) (*Series, error) {
	if len(vals) != len(s.Bars) {
		return nil, fmt.Errorf("column %s: %d values for %d bars", name, len(vals), len(s.Bars))
	}
	out := s.shallow()
	out.cols[name] = vals
	return out, nil
}

// WithSignal returns a copy of s carrying the signal column.
func (s *Series) WithSignal(sig []int) (*Series, error) {
	if len(sig) != len(s.Bars) {
		return nil, fmt.Errorf("signal: %d values for %d bars", len(sig), len(s.Bars))
	}
	out := s.shallow()
	out.signal = sig
	return out, nil
}

// Closes copies the close prices.
func (s *Series) Closes() []float64 {
	r := make([]float64, len(s.Bars))
	for i := range s.Bars {
		r[i] = s.Bars[i].Close
	}
	return r
}

func (s *Series) Highs() []float64 {
	r := make([]float64, len(s.Bars))
	for i := range s.Bars {
		r[i] = s.Bars[i].High
	}
	return r
}

func (s *Series) Lows() []float64 {
	r := make([]float64, len(s.Bars))
	for i := range s.Bars {
		r[i] = s.Bars[i].Low
	}
	return r
}

// Validate checks the bar contract: non-empty, strictly increasing timestamps,
// positive prices and non-negative volume.
func (s *Series) Validate() error {
	if s.Len() == 0 {
		return ErrEmptySeries
	}
	for i, b := range s.Bars {
		if i > 0 && !b.Ts.After(s.Bars[i-1].Ts) {
			return fmt.Errorf("bar %d: timestamp %s not after %s", i, b.Ts, s.Bars[i-1].Ts)
		}
		if !(b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0) {
			return fmt.Errorf("bar %d: non-positive price", i)
		}
		if b.Volume < 0 || math.IsNaN(b.Volume) {
			return fmt.Errorf("bar %d: bad volume %v", i, b.Volume)
		}
	}
	return nil
}

// shallow shares bar and column slices; they are never written in place.
func (s *Series) shallow() *Series {
	cols := make(map[string][]float64, len(s.cols)+1)
	for k, v := range s.cols {
		cols[k] = v
	}
	return &Series{Symbol: s.Symbol, TF: s.TF, Bars: s.Bars, cols: cols, signal: s.signal}
}
