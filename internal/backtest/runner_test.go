package backtest

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/core"
)

func signalled(t *testing.T, closes []float64, sig []int) *core.Series {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{Ts: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	s, err := core.NewSeries("X", "1h", bars).WithSignal(sig)
	require.NoError(t, err)
	return s
}

func TestBuyAppliesCommission(t *testing.T) {
	s := signalled(t, []float64{100, 100, 100}, []int{0, 1, 0})
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)

	p := res.Points[1]
	assert.InDelta(t, 99900.0, p.Holdings, 1e-6)
	assert.Equal(t, 0.0, p.Cash)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, core.SideBuy, tr.Side)
	assert.InDelta(t, 999.0, tr.Qty, 1e-9)
	assert.InDelta(t, 100.0, tr.Fee, 1e-9)
	assert.Equal(t, core.Buy, p.Action)
}

func TestRoundTripAtSamePriceLosesCommissionTwice(t *testing.T) {
	s := signalled(t, []float64{100, 100, 100, 100}, []int{0, 1, 0, -1})
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)

	last := res.Points[3]
	assert.InDelta(t, 100000*0.999*0.999, last.Cash, 1e-6)
	assert.Less(t, last.Cash, 100000.0)
	assert.Equal(t, 0.0, last.Holdings)
	assert.Equal(t, 2, res.Summary.Trades)
	assert.Equal(t, 1, res.Summary.RoundTrips)
	assert.Equal(t, 0.0, res.Summary.WinRate)
}

func TestMarkToMarket(t *testing.T) {
	s := signalled(t, []float64{100, 100, 110, 121}, []int{0, 1, 0, 0})
	res, err := Run(s, Config{InitialCash: 1000, Commission: 0})
	require.NoError(t, err)
	assert.InDelta(t, 1100.0, res.Points[2].Holdings, 1e-9)
	assert.InDelta(t, 1210.0, res.Points[3].Total, 1e-9)
	assert.InDelta(t, 21.0, res.Summary.TotalReturnPct, 1e-9)
	assert.InDelta(t, 21.0, res.Summary.BuyHoldPct, 1e-9)
}

func TestSellWithoutHoldingsIsNoOp(t *testing.T) {
	s := signalled(t, []float64{100, 90, 80}, []int{0, -1, 0})
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	for _, p := range res.Points {
		assert.Equal(t, DefaultInitialCash, p.Cash)
		assert.Equal(t, 0.0, p.Holdings)
	}
	assert.Equal(t, -1, res.Points[1].Signal, "signal column is kept as generated")
	assert.Equal(t, core.None, res.Points[1].Action)
}

func TestBuyWithoutCashIsNoOp(t *testing.T) {
	s := signalled(t, []float64{100, 100, 100, 100}, []int{0, 1, 1, 0})
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, res.Points[1].Holdings, res.Points[2].Holdings)
	assert.Equal(t, 0.0, res.Points[2].Cash)
	assert.Equal(t, 1, res.Summary.Trades)
}

func TestFirstBarSignalIgnored(t *testing.T) {
	s := signalled(t, []float64{100, 100}, []int{1, 0})
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, DefaultInitialCash, res.Points[0].Cash)
}

func TestNoForcedLiquidation(t *testing.T) {
	s := signalled(t, []float64{100, 100, 120}, []int{0, 1, 0})
	res, err := Run(s, Config{InitialCash: 1000})
	require.NoError(t, err)
	last := res.Points[2]
	assert.Greater(t, last.Holdings, 0.0)
	assert.Equal(t, last.Holdings, res.Summary.FinalValue)
}

func TestZeroPreviousCloseSkipsMultiplier(t *testing.T) {
	p := portfolio{holdings: 500, qty: 5}
	next, tr := p.step(0, core.Bar{Close: 120}, 0, 0.001)
	assert.Nil(t, tr)
	assert.Equal(t, 500.0, next.holdings)

	next, _ = p.step(math.NaN(), core.Bar{Close: 120}, 0, 0.001)
	assert.Equal(t, 500.0, next.holdings)
}

func TestPortfolioInvariants(t *testing.T) {
	closes := []float64{100, 101, 99, 98, 103, 107, 104, 100, 95, 97, 102, 108}
	sig := []int{0, 1, 0, -1, 1, 0, 0, -1, 0, 1, 1, -1}
	res, err := Run(signalled(t, closes, sig), DefaultConfig())
	require.NoError(t, err)
	for i, p := range res.Points {
		assert.GreaterOrEqual(t, p.Cash, 0.0, "bar %d", i)
		assert.GreaterOrEqual(t, p.Holdings, 0.0, "bar %d", i)
		assert.False(t, p.Cash > 0 && p.Holdings > 0, "bar %d holds cash and a position", i)
		assert.InDelta(t, p.Cash+p.Holdings, p.Total, 1e-9)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	closes := []float64{100, 101, 99, 98, 103, 107, 104}
	sig := []int{0, 1, 0, -1, 1, 0, -1}
	a, err := Run(signalled(t, closes, sig), DefaultConfig())
	require.NoError(t, err)
	b, err := Run(signalled(t, closes, sig), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPreconditions(t *testing.T) {
	_, err := Run(core.NewSeries("X", "1h", nil), DefaultConfig())
	assert.ErrorIs(t, err, core.ErrEmptySeries)

	noSig := core.NewSeries("X", "1h", []core.Bar{{Close: 1}})
	_, err = Run(noSig, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrMissingSignal)

	_, err = Run(signalled(t, []float64{1}, []int{0}), Config{Commission: 1})
	assert.Error(t, err)
}

func TestSummarizeProfitFactorAndDrawdown(t *testing.T) {
	closes := []float64{100, 100, 110, 110, 110, 99, 99}
	sig := []int{0, 1, 0, -1, 1, 0, -1}
	res, err := Run(signalled(t, closes, sig), Config{InitialCash: 1000, Commission: 0})
	require.NoError(t, err)
	sm := res.Summary
	assert.Equal(t, 2, sm.RoundTrips)
	assert.InDelta(t, 0.5, sm.WinRate, 1e-9)
	// +100 then -110
	assert.InDelta(t, 100.0/110.0, sm.ProfitFact, 1e-9)
	assert.InDelta(t, -10.0, sm.MaxDD, 1e-9)
}

func TestWriteArtifacts(t *testing.T) {
	s := signalled(t, []float64{100, 100, 105, 103}, []int{0, 1, 0, -1})
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "run")
	files, err := WriteArtifacts(dir, "test <run>", s, res)
	require.NoError(t, err)
	for _, name := range []string{TradesFile, PointsFile, PriceSVG, EquitySVG, ReportHTML} {
		require.Contains(t, files, name)
		st, err := os.Stat(files[name])
		require.NoError(t, err)
		assert.Greater(t, st.Size(), int64(0), name)
	}
	assert.NotContains(t, files, IndicatorsSVG)
	page, err := os.ReadFile(files[ReportHTML])
	require.NoError(t, err)
	assert.Contains(t, string(page), "test &lt;run&gt;")
	assert.Contains(t, string(page), "Buy &amp; Hold")
}

func TestWriteArtifactsWithIndicators(t *testing.T) {
	s := signalled(t, []float64{100, 100, 105, 103}, []int{0, 1, 0, -1})
	cols := map[string][]float64{
		"SMA_10":       {math.NaN(), 100, 102, 103},
		"SMA_2":        {math.NaN(), 100, 102.5, 104},
		core.ColRSI:    {math.NaN(), math.NaN(), 70, 40},
		core.ColStochK: {math.NaN(), 20, 90, 60},
		core.ColStochD: {math.NaN(), math.NaN(), 55, 75},
	}
	for name, vals := range cols {
		var err error
		s, err = s.WithColumn(name, vals)
		require.NoError(t, err)
	}
	res, err := Run(s, DefaultConfig())
	require.NoError(t, err)

	files, err := WriteArtifacts(t.TempDir(), "ind", s, res)
	require.NoError(t, err)

	recs := readCSV(t, files[PointsFile])
	require.Len(t, recs, 5)
	assert.Equal(t, []string{"SMA_2", "SMA_10", core.ColRSI, core.ColStochK, core.ColStochD}, recs[0][7:])
	assert.Equal(t, []string{"", "", "", "", ""}, recs[1][7:])
	assert.Equal(t, "70.00000000", recs[3][9])

	require.Contains(t, files, IndicatorsSVG)
	osc, err := os.ReadFile(files[IndicatorsSVG])
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(osc), "<polyline"))
	assert.Contains(t, string(osc), core.ColRSI)
	assert.NotContains(t, string(osc), "NaN")

	price, err := os.ReadFile(files[PriceSVG])
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(price), "<polyline"), "close plus two SMAs")
	assert.Contains(t, string(price), "SMA_10")

	page, err := os.ReadFile(files[ReportHTML])
	require.NoError(t, err)
	assert.Contains(t, string(page), IndicatorsSVG)

	_, err = WriteArtifacts(t.TempDir(), "short", core.NewSeries("X", "1h", s.Bars[:2]), res)
	assert.Error(t, err)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}
