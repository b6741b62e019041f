package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"backtester/internal/core"
)

const (
	DefaultInitialCash = 100000.0
	DefaultCommission  = 0.001
)

type Config struct {
	InitialCash float64         `json:"initialCash"`
	Commission  float64         `json:"commission"` // fraction per executed side, e.g. 0.001
	Logger      *zerolog.Logger `json:"-"`
}

func DefaultConfig() Config {
	return Config{InitialCash: DefaultInitialCash, Commission: DefaultCommission}
}

type Result struct {
	Points  []core.Point `json:"points"`
	Trades  []core.Trade `json:"trades"`
	Summary Summary      `json:"summary"`
}

// portfolio is the state carried from one bar to the next.
type portfolio struct {
	cash     float64
	holdings float64 // marked-to-market value of the position
	qty      float64
}

// Run replays the signal column of s against its closes with all-in/all-out
// sizing. A buy without cash or a sell without holdings is ignored.
func Run(s *core.Series, cfg Config) (Result, error) {
	if s.Len() == 0 {
		return Result{}, core.ErrEmptySeries
	}
	sig, ok := s.Signal()
	if !ok {
		return Result{}, core.ErrMissingSignal
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = DefaultInitialCash
	}
	if cfg.Commission < 0 || cfg.Commission >= 1 || math.IsNaN(cfg.Commission) {
		return Result{}, fmt.Errorf("commission %v out of [0,1)", cfg.Commission)
	}
	lg := zerolog.Nop()
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}

	bars := s.Bars
	points := make([]core.Point, len(bars))
	trades := make([]core.Trade, 0, 64)

	st := portfolio{cash: cfg.InitialCash}
	points[0] = point(bars[0], sig[0], st, core.None)

	for i := 1; i < len(bars); i++ {
		var tr *core.Trade
		st, tr = st.step(bars[i-1].Close, bars[i], sig[i], cfg.Commission)
		action := core.None
		if tr != nil {
			action = core.Buy
			if tr.Side == core.SideSell {
				action = core.Sell
			}
			trades = append(trades, *tr)
			lg.Debug().Time("ts", tr.TS).Str("side", string(tr.Side)).Float64("price", tr.Price).
				Float64("cash", tr.Cash).Float64("holdings", tr.Holdings).Msg("trade executed")
		} else if sig[i] != core.None {
			lg.Debug().Time("ts", bars[i].Ts).Int("signal", sig[i]).Msg("signal ignored")
		}
		points[i] = point(bars[i], sig[i], st, action)
	}

	return Result{
		Points:  points,
		Trades:  trades,
		Summary: Summarize(cfg.InitialCash, points, trades),
	}, nil
}

// step advances one bar: mark the position to market, then act on the signal.
func (p portfolio) step(prevClose float64, b core.Bar, signal int, fee float64) (portfolio, *core.Trade) {
	if p.holdings > 0 && prevClose != 0 && !math.IsNaN(prevClose) && !math.IsNaN(b.Close) {
		p.holdings *= b.Close / prevClose
	}

	price := b.Close
	switch {
	case signal > 0:
		if p.cash <= 0 || !(price > 0) {
			return p, nil
		}
		p.qty = p.cash * (1 - fee) / price
		p.holdings += p.qty * price
		paid := p.cash * fee
		p.cash = 0
		return p, &core.Trade{TS: b.Ts, Side: core.SideBuy, Price: price, Qty: p.qty, Fee: paid, Cash: p.cash, Holdings: p.holdings}
	case signal < 0:
		if p.holdings <= 0 {
			return p, nil
		}
		paid := p.holdings * fee
		p.cash += p.holdings * (1 - fee)
		qty := p.qty
		p.holdings, p.qty = 0, 0
		return p, &core.Trade{TS: b.Ts, Side: core.SideSell, Price: price, Qty: qty, Fee: paid, Cash: p.cash, Holdings: p.holdings}
	}
	return p, nil
}

func point(b core.Bar, signal int, p portfolio, action int) core.Point {
	return core.Point{
		TS:       b.Ts,
		Close:    b.Close,
		Signal:   signal,
		Cash:     p.cash,
		Holdings: p.holdings,
		Total:    p.cash + p.holdings,
		Action:   action,
	}
}
