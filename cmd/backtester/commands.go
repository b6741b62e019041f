package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"backtester/internal/backtest"
	"backtester/internal/core"
	"backtester/internal/data"
	"backtester/internal/export"
	"backtester/internal/indicators"
	"backtester/internal/metrics"
	"backtester/internal/optimizer"
	"backtester/internal/state"
	"backtester/internal/web"
)

var syntheticStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (a *app) fetchCmd() *cobra.Command {
	var out string
	var years int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download klines from Binance into a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.conf
			if years <= 0 {
				years = c.YearsAgo
			}
			if out == "" {
				out = filepath.Join("data", fmt.Sprintf("%s_%s_%s.csv", c.Symbol, c.Interval, c.Market))
			}
			f := &data.Fetcher{
				Market:  c.Market,
				BaseURL: c.BinanceBaseURL,
				APIKey:  c.APIKey,
				Pause:   c.FetchPause,
				Logger:  a.log,
			}
			to := time.Now().UTC()
			from := to.AddDate(-years, 0, 0)
			bars, err := f.Fetch(cmd.Context(), c.Symbol, c.Interval, from, to)
			if err != nil {
				return err
			}
			if err := core.NewSeries(c.Symbol, c.Interval, bars).Validate(); err != nil {
				return fmt.Errorf("fetched bars: %w", err)
			}
			if err := export.EnsureDir(filepath.Dir(out)); err != nil {
				return err
			}
			if err := data.WriteCSV(out, bars); err != nil {
				return err
			}
			a.log.Info().Int("bars", len(bars)).Str("file", out).Msg("fetch done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "CSV file to write")
	cmd.Flags().IntVar(&years, "years", 0, "years of history (default from config)")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var (
		strategy           string
		tf                 string
		short, long, trend int
		best               bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest one parameter set and write its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.conf
			if strategy == "" {
				strategy = c.Strategy
			}
			ps := optimizer.ParamSet{
				{Name: optimizer.ParamTimeframe, Value: tf},
				{Name: optimizer.ParamShort, Value: strconv.Itoa(short)},
				{Name: optimizer.ParamLong, Value: strconv.Itoa(long)},
				{Name: optimizer.ParamTrend, Value: strconv.Itoa(trend)},
			}
			if best {
				st, err := state.New(c.StatePath).Load()
				if err != nil {
					return err
				}
				if st.Best == nil {
					return fmt.Errorf("no stored sweep result in %s", c.StatePath)
				}
				ps = paramsFrom(ps, st.Best.Params)
				strategy = st.Best.Strategy
			}

			base, err := a.loadBase()
			if err != nil {
				return err
			}
			run := optimizer.NewRunner(optimizer.Config{
				InitialCash: c.InitialCash,
				Commission:  c.Commission,
				Strategy:    strategy,
				Logger:      a.log,
			}, data.Resampler{}, indicators.Calculator{Oscillators: true})
			sig, res, err := run.Backtest(base, ps)
			if err != nil {
				return err
			}
			dir := filepath.Join(c.OutputDir, "run_"+optimizer.ExperimentID(ps)[:8])
			files, err := backtest.WriteArtifacts(dir, c.Symbol+" "+ps.Label(), sig, res)
			if err != nil {
				return err
			}
			printSummary(res.Summary)
			a.log.Info().Str("dir", dir).Int("files", len(files)).Msg("report written")
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&strategy, "strategy", "", "crossover|trend (default from config)")
	fl.StringVar(&tf, "tf", "1h", "timeframe to resample to")
	fl.IntVar(&short, "short", 10, "short SMA window")
	fl.IntVar(&long, "long", 30, "long SMA window")
	fl.IntVar(&trend, "trend", 200, "trend SMA window")
	fl.BoolVar(&best, "best", false, "reuse the best parameters of the last sweep")
	return cmd
}

// paramsFrom overrides the values of ps with stored ones, keeping order.
func paramsFrom(ps optimizer.ParamSet, stored map[string]string) optimizer.ParamSet {
	out := make(optimizer.ParamSet, len(ps))
	for i, p := range ps {
		if v, ok := stored[p.Name]; ok {
			p.Value = v
		}
		out[i] = p
	}
	return out
}

func (a *app) sweepCmd() *cobra.Command {
	var (
		gridFile string
		workers  int
		rankBy   string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every combination of a parameter grid and rank the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.conf
			grid := optimizer.DefaultGrid()
			if gridFile != "" {
				g, err := optimizer.LoadGrid(gridFile)
				if err != nil {
					return err
				}
				grid = g
			}
			if workers <= 0 {
				workers = c.Workers
			}
			if rankBy == "" {
				rankBy = c.RankBy
			}
			base, err := a.loadBase()
			if err != nil {
				return err
			}
			rec := metrics.New()
			run := optimizer.NewRunner(optimizer.Config{
				InitialCash: c.InitialCash,
				Commission:  c.Commission,
				Strategy:    c.Strategy,
				RankBy:      rankBy,
				Workers:     workers,
				Logger:      a.log,
				Metrics:     rec,
			}, data.Resampler{}, indicators.Calculator{})
			rep, err := run.Run(cmd.Context(), base, grid)
			if err != nil {
				return err
			}
			if len(rep.Experiments) == 0 {
				return fmt.Errorf("no experiment succeeded (%d skipped, %d failed)", len(rep.Skipped), len(rep.Failed))
			}
			if _, err := rep.WriteArtifacts(c.OutputDir); err != nil {
				return err
			}
			if err := rec.WriteTextfile(filepath.Join(c.OutputDir, "backtester.prom")); err != nil {
				a.log.Warn().Err(err).Msg("metrics textfile")
			}
			best, _ := rep.Best()
			err = state.New(c.StatePath).SaveBest(state.Best{
				ID:             best.ID,
				Symbol:         c.Symbol,
				Strategy:       best.Strategy,
				RankBy:         rep.RankBy,
				Params:         best.Params.Map(),
				TotalReturnPct: best.Summary.TotalReturnPct,
			})
			if err != nil {
				return err
			}
			printTop(rep, 5)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&gridFile, "grid", "g", "", "YAML parameter grid (default: built-in grid)")
	fl.IntVarP(&workers, "workers", "w", 0, "parallel experiments (default from config)")
	fl.StringVar(&rankBy, "rank-by", "", "total_return|final_value|buy_hold_excess|win_rate|profit_factor")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.conf
			if addr == "" {
				addr = c.HTTPAddr
			}
			base, err := a.loadBase()
			if err != nil {
				return err
			}
			srv := web.NewServer(base, web.Options{
				Addr:        addr,
				ArtifactDir: filepath.Join(c.OutputDir, "web"),
				InitialCash: c.InitialCash,
				Commission:  c.Commission,
				Strategy:    c.Strategy,
				RankBy:      c.RankBy,
				Workers:     c.Workers,
				Logger:      a.log,
			})
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear the stored best sweep result",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored best parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := state.New(a.conf.StatePath).Load()
			if err != nil {
				return err
			}
			if st.Best == nil {
				fmt.Printf("no stored sweep result in %s\n", a.conf.StatePath)
				return nil
			}
			b := st.Best
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "id\t%s\n", b.ID)
			fmt.Fprintf(w, "symbol\t%s\n", b.Symbol)
			fmt.Fprintf(w, "strategy\t%s\n", b.Strategy)
			fmt.Fprintf(w, "rank by\t%s\n", b.RankBy)
			names := make([]string, 0, len(b.Params))
			for name := range b.Params {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, b.Params[name])
			}
			fmt.Fprintf(w, "total return %%\t%s\n", export.Money(b.TotalReturnPct))
			fmt.Fprintf(w, "saved at\t%s\n", b.SavedAt.Format(time.RFC3339))
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the stored best parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.New(a.conf.StatePath).Reset(); err != nil {
				return err
			}
			a.log.Info().Str("file", a.conf.StatePath).Msg("state cleared")
			return nil
		},
	})
	return cmd
}

func printSummary(s backtest.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Initial Portfolio\t%s\n", export.Money(s.InitialValue))
	fmt.Fprintf(w, "Final Portfolio\t%s\n", export.Money(s.FinalValue))
	fmt.Fprintf(w, "Total Return (%%)\t%s\n", export.Money(s.TotalReturnPct))
	fmt.Fprintf(w, "Buy & Hold Return (%%)\t%s\n", export.Money(s.BuyHoldPct))
	fmt.Fprintf(w, "Total Trades\t%d\n", s.Trades)
	fmt.Fprintf(w, "Max Drawdown (%%)\t%s\n", export.Money(s.MaxDD))
	w.Flush()
	if s.BeatBuyHold() {
		fmt.Println("Strategy beat buy & hold.")
	} else {
		fmt.Println("Strategy did not beat buy & hold.")
	}
}

func printTop(rep optimizer.Report, n int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tparams\ttotal return %\tbuy & hold %\ttrades\tmax dd %")
	for i, e := range rep.Experiments {
		if i == n {
			break
		}
		s := e.Summary
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", i+1, e.Params.Label(), export.Money(s.TotalReturnPct),
			export.Money(s.BuyHoldPct), s.Trades, export.Money(s.MaxDD))
	}
	w.Flush()
	fmt.Printf("%d ok, %d skipped, %d failed\n", len(rep.Experiments), len(rep.Skipped), len(rep.Failed))
}
