package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"backtester/internal/cfg"
	"backtester/internal/core"
	"backtester/internal/data"
	"backtester/internal/logx"
)

var version = "0.1.0"

type app struct {
	configFile string
	random     int
	conf       cfg.Config
	log        zerolog.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "backtester",
		Short:         "Backtest moving-average strategies and sweep their parameters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "YAML config file")
	pf.String("symbol", "", "trading pair, e.g. BTCUSDT")
	pf.String("data", "", "bar CSV path or glob")
	pf.String("out", "", "output directory")
	pf.String("log-level", "", "debug|info|warn|error")
	pf.IntVar(&a.random, "random", 0, "use a synthetic random-walk series of this many 1m bars instead of CSV data")

	root.AddCommand(versionCmd(), a.fetchCmd(), a.runCmd(), a.sweepCmd(), a.serveCmd(), a.stateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	c, err := cfg.Load(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override := func(flag string, dst *string) {
		if v, _ := flags.GetString(flag); flags.Changed(flag) && v != "" {
			*dst = v
		}
	}
	override("symbol", &c.Symbol)
	override("data", &c.DataPath)
	override("out", &c.OutputDir)
	override("log-level", &c.LogLevel)
	if err := c.Validate(); err != nil {
		return err
	}
	a.conf = c
	a.log = logx.Setup(c.LogLevel, c.LogFormat)
	return nil
}

// loadBase returns the series every command works on.
func (a *app) loadBase() (*core.Series, error) {
	if a.random > 0 {
		return data.RandomWalk(a.conf.Symbol, time.Minute, syntheticStart, a.random, 30000, 0.002, 42), nil
	}
	s, err := data.LoadCSVGlob(a.conf.Symbol, a.conf.Interval, a.conf.DataPath)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	a.log.Info().Str("symbol", s.Symbol).Int("bars", s.Len()).Time("from", s.Bars[0].Ts).
		Time("to", s.Bars[s.Len()-1].Ts).Msg("bars loaded")
	return s, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backtester version %s\n", version)
		},
	}
}
