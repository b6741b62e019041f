package optimizer

import (
	"io"
	"path/filepath"

	"backtester/internal/export"
)

func (r Report) Rows() []export.ResultCSV {
	rows := make([]export.ResultCSV, 0, len(r.Experiments))
	for _, e := range r.Experiments {
		s := e.Summary
		rows = append(rows, export.ResultCSV{
			ID:           e.ID,
			Params:       e.Params.Values(),
			Initial:      s.InitialValue,
			Final:        s.FinalValue,
			TotalReturn:  s.TotalReturnPct,
			BuyHold:      s.BuyHoldPct,
			Trades:       s.Trades,
			MaxDD:        s.MaxDD,
			WinRate:      s.WinRate,
			ProfitFactor: s.ProfitFact,
		})
	}
	return rows
}

func (r Report) EncodeCSV(w io.Writer) error {
	return export.EncodeResultsCSV(w, r.Params, r.Rows())
}

// Chart is a horizontal bar chart of total return, best on top.
func (r Report) Chart(title string) []byte {
	labels := make([]string, len(r.Experiments))
	values := make([]float64, len(r.Experiments))
	for i, e := range r.Experiments {
		labels[i] = e.Params.Label()
		values[i] = e.Summary.TotalReturnPct
	}
	return export.HBarChart(labels, values, title)
}

// Files written by WriteArtifacts.
const (
	ResultsFile = "backtest_results_summary.csv"
	ChartFile   = "optimizer_summary_chart.svg"
)

// WriteArtifacts stores the result table and the ranking chart in dir.
func (r Report) WriteArtifacts(dir string) ([]string, error) {
	if err := export.EnsureDir(dir); err != nil {
		return nil, err
	}
	csvPath := filepath.Join(dir, ResultsFile)
	if err := export.WriteResultsCSV(csvPath, r.Params, r.Rows()); err != nil {
		return nil, err
	}
	svgPath := filepath.Join(dir, ChartFile)
	if err := export.WriteFile(svgPath, r.Chart("Optimizer: total return by parameters")); err != nil {
		return nil, err
	}
	return []string{csvPath, svgPath}, nil
}
