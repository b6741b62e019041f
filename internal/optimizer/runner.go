package optimizer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backtester/internal/backtest"
	"backtester/internal/core"
	"backtester/internal/metrics"
	"backtester/internal/strategies"
)

// ErrInsufficientHistory marks a combination whose prepared series is shorter
// than the strategy warm-up. Such combinations are skipped, not failed.
var ErrInsufficientHistory = errors.New("insufficient history")

// Preparer turns the base series into the series for one timeframe.
type Preparer interface {
	Prepare(base *core.Series, tf string) (*core.Series, error)
}

// Indicators attaches the SMA columns for the given windows.
type Indicators interface {
	Apply(s *core.Series, windows []int) (*core.Series, error)
}

// Rank keys.
const (
	RankTotalReturn   = "total_return"
	RankFinalValue    = "final_value"
	RankBuyHoldExcess = "buy_hold_excess"
	RankWinRate       = "win_rate"
	RankProfitFactor  = "profit_factor"
)

type Config struct {
	InitialCash float64
	Commission  float64
	Strategy    string // strategies.Kind*
	RankBy      string
	Workers     int
	Logger      zerolog.Logger
	Metrics     *metrics.Recorder
	// Observer receives one event per finished combination. Calls are serialized.
	Observer func(Event)
}

type Experiment struct {
	ID       string           `json:"id"`
	Params   ParamSet         `json:"params"`
	Strategy string           `json:"strategy"`
	Summary  backtest.Summary `json:"summary"`
}

type Failure struct {
	Params ParamSet `json:"params"`
	Err    string   `json:"error"`
}

type Event struct {
	Done       int         `json:"done"`
	Total      int         `json:"total"`
	Outcome    string      `json:"outcome"`
	Params     ParamSet    `json:"params"`
	Experiment *Experiment `json:"experiment,omitempty"`
	Err        string      `json:"error,omitempty"`
}

// Report is the outcome of a sweep. Experiments are ranked best first.
type Report struct {
	Params      []string     `json:"params"`
	RankBy      string       `json:"rankBy"`
	Experiments []Experiment `json:"experiments"`
	Skipped     []ParamSet   `json:"skipped"`
	Failed      []Failure    `json:"failed"`
}

func (r Report) Best() (Experiment, bool) {
	if len(r.Experiments) == 0 {
		return Experiment{}, false
	}
	return r.Experiments[0], true
}

type Runner struct {
	cfg  Config
	prep Preparer
	ind  Indicators
}

// NewRunner wires the collaborators. A nil Preparer uses the base series as is.
func NewRunner(cfg Config, prep Preparer, ind Indicators) *Runner {
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = backtest.DefaultInitialCash
	}
	if cfg.Strategy == "" {
		cfg.Strategy = strategies.KindTrend
	}
	if cfg.RankBy == "" {
		cfg.RankBy = RankTotalReturn
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{cfg: cfg, prep: prep, ind: ind}
}

// Backtest runs one combination and returns the signal series it traded.
func (r *Runner) Backtest(base *core.Series, ps ParamSet) (*core.Series, backtest.Result, error) {
	short, err := ps.Int(ParamShort, 10)
	if err != nil {
		return nil, backtest.Result{}, err
	}
	long, err := ps.Int(ParamLong, 30)
	if err != nil {
		return nil, backtest.Result{}, err
	}
	trend, err := ps.Int(ParamTrend, 200)
	if err != nil {
		return nil, backtest.Result{}, err
	}
	strat, err := strategies.FromParams(r.cfg.Strategy, short, long, trend)
	if err != nil {
		return nil, backtest.Result{}, err
	}

	s := base
	if tf, ok := ps.Get(ParamTimeframe); ok && r.prep != nil {
		if s, err = r.prep.Prepare(base, tf); err != nil {
			return nil, backtest.Result{}, fmt.Errorf("prepare %s: %w", tf, err)
		}
	}
	if s.Len() < strat.Warmup() {
		return nil, backtest.Result{}, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientHistory, s.Len(), strat.Warmup())
	}
	if r.ind != nil {
		windows := []int{short, long}
		if slices.Contains(strat.Columns(), core.SMAColumn(trend)) {
			windows = append(windows, trend)
		}
		if s, err = r.ind.Apply(s, windows); err != nil {
			return nil, backtest.Result{}, fmt.Errorf("indicators: %w", err)
		}
	}
	sig, err := strat.Generate(s)
	if err != nil {
		return nil, backtest.Result{}, err
	}
	lg := r.cfg.Logger
	res, err := backtest.Run(sig, backtest.Config{InitialCash: r.cfg.InitialCash, Commission: r.cfg.Commission, Logger: &lg})
	if err != nil {
		return nil, backtest.Result{}, err
	}
	return sig, res, nil
}

type outcome struct {
	exp     *Experiment
	skipped bool
	err     error
}

// Run evaluates every grid point. One failing combination never stops the
// others; ranking happens after all of them have finished.
func (r *Runner) Run(ctx context.Context, base *core.Series, grid Grid) (Report, error) {
	if base.Len() == 0 {
		return Report{}, core.ErrEmptySeries
	}
	if err := grid.Validate(); err != nil {
		return Report{}, err
	}
	if _, err := rankKey(r.cfg.RankBy); err != nil {
		return Report{}, err
	}
	grid = r.collapseTrend(grid)
	sets := grid.Expand()
	results := make([]outcome, len(sets))
	lg := r.cfg.Logger
	lg.Info().Int("experiments", len(sets)).Int("workers", r.cfg.Workers).Str("strategy", r.cfg.Strategy).Msg("sweep started")

	var (
		obsMu sync.Mutex
		done  int
	)
	finish := func(ps ParamSet, o outcome) {
		obsMu.Lock()
		defer obsMu.Unlock()
		done++
		if r.cfg.Observer == nil {
			return
		}
		ev := Event{Done: done, Total: len(sets), Params: ps, Experiment: o.exp}
		switch {
		case o.skipped:
			ev.Outcome = metrics.OutcomeSkipped
		case o.err != nil:
			ev.Outcome, ev.Err = metrics.OutcomeFailed, o.err.Error()
		default:
			ev.Outcome = metrics.OutcomeOK
		}
		r.cfg.Observer(ev)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(r.cfg.Workers, len(sets)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.experiment(base, sets[i], i, len(sets))
				finish(sets[i], results[i])
			}
		}()
	}
feed:
	for i := range sets {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	rep := Report{Params: grid.Names(), RankBy: r.cfg.RankBy}
	for i, o := range results {
		switch {
		case o.skipped:
			rep.Skipped = append(rep.Skipped, sets[i])
		case o.err != nil:
			rep.Failed = append(rep.Failed, Failure{Params: sets[i], Err: o.err.Error()})
		default:
			rep.Experiments = append(rep.Experiments, *o.exp)
		}
	}
	Rank(rep.Experiments, r.cfg.RankBy)
	if best, ok := rep.Best(); ok {
		r.cfg.Metrics.RecordBest(best.Summary.TotalReturnPct)
		lg.Info().Str("best", best.Params.Key()).Float64("total_return_pct", best.Summary.TotalReturnPct).Msg("sweep finished")
	}
	lg.Info().Int("ok", len(rep.Experiments)).Int("skipped", len(rep.Skipped)).Int("failed", len(rep.Failed)).Msg("sweep summary")
	return rep, nil
}

// collapseTrend keeps only the first trend_window value when the strategy
// never reads the trend column, so the sweep does not repeat identical runs.
func (r *Runner) collapseTrend(g Grid) Grid {
	const markerTrend = 3
	strat, err := strategies.FromParams(r.cfg.Strategy, 1, 2, markerTrend)
	if err != nil || slices.Contains(strat.Columns(), core.SMAColumn(markerTrend)) {
		return g
	}
	out := Grid{Axes: make([]Axis, 0, len(g.Axes))}
	for _, ax := range g.Axes {
		if ax.Name == ParamTrend && len(ax.Values) > 1 {
			r.cfg.Logger.Warn().Str("strategy", r.cfg.Strategy).Strs("values", ax.Values).
				Msg("trend_window is not used by this strategy; sweeping the first value only")
			ax = Axis{Name: ax.Name, Values: ax.Values[:1]}
		}
		out.Axes = append(out.Axes, ax)
	}
	return out
}

func (r *Runner) experiment(base *core.Series, ps ParamSet, i, total int) (o outcome) {
	lg := r.cfg.Logger.With().Int("experiment", i+1).Int("of", total).Str("params", ps.Key()).Logger()
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			o = outcome{err: fmt.Errorf("panic: %v", rec)}
			lg.Error().Err(o.err).Bytes("stack", debug.Stack()).Msg("experiment failed")
			r.cfg.Metrics.RecordExperiment(metrics.OutcomeFailed, time.Since(start).Seconds())
		}
	}()

	_, res, err := r.Backtest(base, ps)
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		lg.Info().Err(err).Msg("experiment skipped")
		r.cfg.Metrics.RecordExperiment(metrics.OutcomeSkipped, 0)
		return outcome{skipped: true}
	case err != nil:
		lg.Error().Err(err).Msg("experiment failed")
		r.cfg.Metrics.RecordExperiment(metrics.OutcomeFailed, time.Since(start).Seconds())
		return outcome{err: err}
	}
	elapsed := time.Since(start)
	r.cfg.Metrics.RecordExperiment(metrics.OutcomeOK, elapsed.Seconds())
	lg.Info().Float64("total_return_pct", res.Summary.TotalReturnPct).Int("trades", res.Summary.Trades).
		Dur("took", elapsed).Msg("experiment done")
	return outcome{exp: &Experiment{
		ID:       ExperimentID(ps),
		Params:   ps,
		Strategy: r.cfg.Strategy,
		Summary:  res.Summary,
	}}
}

// ExperimentID is stable for a parameter set.
func ExperimentID(ps ParamSet) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(ps.Key())).String()
}

// Rank sorts experiments best first by key; ties keep grid order.
func Rank(exps []Experiment, key string) {
	metric, err := rankKey(key)
	if err != nil {
		metric, _ = rankKey(RankTotalReturn)
	}
	sort.SliceStable(exps, func(i, j int) bool {
		return metric(exps[i].Summary) > metric(exps[j].Summary)
	})
}

func rankKey(key string) (func(backtest.Summary) float64, error) {
	switch key {
	case "", RankTotalReturn:
		return func(s backtest.Summary) float64 { return s.TotalReturnPct }, nil
	case RankFinalValue:
		return func(s backtest.Summary) float64 { return s.FinalValue }, nil
	case RankBuyHoldExcess:
		return func(s backtest.Summary) float64 { return s.TotalReturnPct - s.BuyHoldPct }, nil
	case RankWinRate:
		return func(s backtest.Summary) float64 { return s.WinRate }, nil
	case RankProfitFactor:
		return func(s backtest.Summary) float64 { return s.ProfitFact }, nil
	}
	return nil, fmt.Errorf("unknown rank key %q", key)
}
