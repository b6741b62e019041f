package backtest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"backtester/internal/core"
	"backtester/internal/export"
)

// Artifact file names inside a run directory.
// IndicatorsSVG is written only when the series carries oscillator columns.
const (
	TradesFile    = "trades.csv"
	PointsFile    = "trajectory.csv"
	PriceSVG      = "price.svg"
	EquitySVG     = "equity.svg"
	IndicatorsSVG = "indicators.svg"
	ReportHTML    = "report.html"
)

var smaColors = []string{"#f2cc60", "#c792ea", "#7fdbca", "#ffab70"}

// WriteArtifacts stores the trade log, the trajectory, the charts and the HTML
// report in dir. s is the series the result was traded on; its indicator
// columns go into the trajectory and the charts. s may be nil. It returns
// archive name -> path for every file written.
func WriteArtifacts(dir, title string, s *core.Series, res Result) (map[string]string, error) {
	if s != nil && s.Len() != len(res.Points) {
		return nil, fmt.Errorf("series has %d bars, result %d points", s.Len(), len(res.Points))
	}
	if err := export.EnsureDir(dir); err != nil {
		return nil, err
	}
	files := map[string]string{}
	path := func(name string) string {
		p := filepath.Join(dir, name)
		files[name] = p
		return p
	}

	trades := make([]export.TradeCSV, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, export.TradeCSV{TS: t.TS, Side: string(t.Side), Price: t.Price, Qty: t.Qty, Fee: t.Fee, Cash: t.Cash, Holdings: t.Holdings})
	}
	if err := export.WriteTradesCSV(path(TradesFile), trades); err != nil {
		return nil, err
	}

	cols := indicatorColumns(s)
	values := make([][]float64, len(cols))
	for j, name := range cols {
		values[j], _ = s.Column(name)
	}

	pts := make([]export.PointCSV, 0, len(res.Points))
	price := make([]export.Line, 0, len(res.Points))
	equity := make([]export.Line, 0, len(res.Points))
	var marks []export.Marker
	for i, p := range res.Points {
		row := export.PointCSV{TS: p.TS, Close: p.Close, Signal: p.Signal, Action: p.Action, Cash: p.Cash, Holdings: p.Holdings, Total: p.Total}
		for j := range cols {
			row.Extra = append(row.Extra, values[j][i])
		}
		pts = append(pts, row)
		x := float64(p.TS.Unix())
		price = append(price, export.Line{X: x, Y: p.Close})
		equity = append(equity, export.Line{X: x, Y: p.Total})
		switch p.Action {
		case core.Buy:
			marks = append(marks, export.Marker{X: x, Y: p.Close, Kind: string(core.SideBuy)})
		case core.Sell:
			marks = append(marks, export.Marker{X: x, Y: p.Close, Kind: string(core.SideSell)})
		}
	}
	if err := export.WritePointsCSV(path(PointsFile), cols, pts); err != nil {
		return nil, err
	}

	priceCurves := []export.Curve{{Name: "Close", Color: "#59a6ff", Points: price}}
	var oscCurves []export.Curve
	for j, name := range cols {
		c := export.Curve{Name: name, Points: curve(res.Points, values[j])}
		switch name {
		case core.ColRSI:
			c.Color = "#ffab70"
			oscCurves = append(oscCurves, c)
		case core.ColStochK:
			c.Color = "#59a6ff"
			oscCurves = append(oscCurves, c)
		case core.ColStochD:
			c.Color = "#ff7a7a"
			oscCurves = append(oscCurves, c)
		default:
			c.Color = smaColors[(len(priceCurves)-1)%len(smaColors)]
			priceCurves = append(priceCurves, c)
		}
	}
	if err := export.WriteFile(path(PriceSVG), export.LinesSVGChart(900, 300, priceCurves, marks, title+" price")); err != nil {
		return nil, err
	}
	images := []string{PriceSVG, EquitySVG}
	if len(oscCurves) > 0 {
		if err := export.WriteFile(path(IndicatorsSVG), export.LinesSVGChart(900, 240, oscCurves, nil, title+" RSI / KD")); err != nil {
			return nil, err
		}
		images = append(images, IndicatorsSVG)
	}
	if err := export.WriteFile(path(EquitySVG), export.SimpleSVGChart(900, 300, equity, nil, title+" equity")); err != nil {
		return nil, err
	}
	page := HTMLReport(title, res.Summary, images, "")
	if err := export.WriteFile(path(ReportHTML), page); err != nil {
		return nil, err
	}
	return files, nil
}

// indicatorColumns orders the columns of s for output: SMAs by window, then
// RSI and the stochastic lines.
func indicatorColumns(s *core.Series) []string {
	if s == nil {
		return nil
	}
	var smas []string
	var osc []string
	for _, name := range s.Columns() {
		if strings.HasPrefix(name, "SMA_") {
			smas = append(smas, name)
		}
	}
	sort.SliceStable(smas, func(i, j int) bool { return smaWindow(smas[i]) < smaWindow(smas[j]) })
	for _, name := range []string{core.ColRSI, core.ColStochK, core.ColStochD} {
		if _, ok := s.Column(name); ok {
			osc = append(osc, name)
		}
	}
	return append(smas, osc...)
}

func smaWindow(name string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(name, "SMA_"))
	return n
}

func curve(pts []core.Point, vals []float64) []export.Line {
	out := make([]export.Line, len(pts))
	for i, p := range pts {
		out[i] = export.Line{X: float64(p.TS.Unix()), Y: vals[i]}
	}
	return out
}
