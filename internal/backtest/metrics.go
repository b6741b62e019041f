package backtest

import "backtester/internal/core"

type Summary struct {
	InitialValue   float64 `json:"initialValue"`
	FinalValue     float64 `json:"finalValue"`
	TotalReturnPct float64 `json:"totalReturnPct"`
	BuyHoldPct     float64 `json:"buyHoldReturnPct"`
	Trades         int     `json:"trades"`

	MaxDD      float64 `json:"maxDD"` // percent, <= 0
	RoundTrips int     `json:"roundTrips"`
	WinRate    float64 `json:"winRate"`
	ProfitFact float64 `json:"profitFactor"`
	Fees       float64 `json:"fees"`
}

// BeatBuyHold reports whether the strategy outperformed holding the asset.
func (s Summary) BeatBuyHold() bool { return s.TotalReturnPct > s.BuyHoldPct }

type pair struct{ G, L float64 }

func Summarize(initial float64, pts []core.Point, trades []core.Trade) Summary {
	sm := Summary{InitialValue: initial, FinalValue: initial, Trades: len(trades)}
	if len(pts) > 0 {
		sm.FinalValue = pts[len(pts)-1].Total
		if c0 := pts[0].Close; c0 != 0 {
			sm.BuyHoldPct = (pts[len(pts)-1].Close - c0) / c0 * 100
		}
	}
	if initial != 0 {
		sm.TotalReturnPct = (sm.FinalValue - initial) / initial * 100
	}

	// round trips: each sell closes the preceding buy
	var pf pair
	var wins int
	var spent float64
	open := false
	for _, t := range trades {
		sm.Fees += t.Fee
		switch t.Side {
		case core.SideBuy:
			spent = t.Holdings + t.Fee
			open = true
		case core.SideSell:
			if !open {
				continue
			}
			open = false
			pnl := t.Cash - spent
			sm.RoundTrips++
			if pnl > 0 {
				wins++
				pf.G += pnl
			} else {
				pf.L += -pnl
			}
		}
	}
	if sm.RoundTrips > 0 {
		sm.WinRate = float64(wins) / float64(sm.RoundTrips)
	}
	if pf.L > 0 {
		sm.ProfitFact = pf.G / pf.L
	}

	// max drawdown on total value
	var peak, dd float64
	if len(pts) > 0 {
		peak = pts[0].Total
	}
	for _, p := range pts {
		if p.Total > peak {
			peak = p.Total
		}
		if peak <= 0 {
			continue
		}
		d := (p.Total - peak) / peak * 100
		if d < dd {
			dd = d
		}
	}
	sm.MaxDD = dd
	return sm
}
