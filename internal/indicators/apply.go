package indicators

import (
	"backtester/internal/core"
)

// Calculator attaches indicator columns to a series.
type Calculator struct {
	// Oscillators adds RSI_14 and the 14/3/3 stochastic lines used for charts.
	Oscillators bool
}

// Apply returns s with one SMA column per window plus, optionally, the oscillators.
func (c Calculator) Apply(s *core.Series, windows []int) (*core.Series, error) {
	if s.Len() == 0 {
		return nil, core.ErrEmptySeries
	}
	out := s
	cl := s.Closes()
	var err error
	for _, w := range windows {
		name := core.SMAColumn(w)
		if _, ok := out.Column(name); ok {
			continue
		}
		if out, err = out.WithColumn(name, SMA(cl, w)); err != nil {
			return nil, err
		}
	}
	if !c.Oscillators {
		return out, nil
	}
	if out, err = out.WithColumn(core.ColRSI, RSI(cl, 14)); err != nil {
		return nil, err
	}
	k, d := Stoch(s.Highs(), s.Lows(), cl, 14, 3, 3)
	if out, err = out.WithColumn(core.ColStochK, k); err != nil {
		return nil, err
	}
	return out.WithColumn(core.ColStochD, d)
}
