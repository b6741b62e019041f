package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"time"
)

type TradeCSV struct {
	TS              time.Time
	Side            string
	Price, Qty, Fee float64
	Cash, Holdings  float64
}

type PointCSV struct {
	TS                    time.Time
	Close                 float64
	Signal, Action        int
	Cash, Holdings, Total float64
	Extra                 []float64 // indicator values, aligned with the extra header
}

// ResultCSV is one experiment row; Params is aligned with the parameter header.
type ResultCSV struct {
	ID                           string
	Params                       []string
	Initial, Final               float64
	TotalReturn, BuyHold         float64
	Trades                       int
	MaxDD, WinRate, ProfitFactor float64
}

func WriteTradesCSV(path string, rows []TradeCSV) error {
	return writeFile(path, func(w *csv.Writer) {
		w.Write([]string{"ts", "side", "price", "qty", "fee", "cash", "holdings"})
		for _, r := range rows {
			w.Write([]string{ts(r.TS), r.Side, ftoa(r.Price), ftoa(r.Qty), ftoa(r.Fee), ftoa(r.Cash), ftoa(r.Holdings)})
		}
	})
}

// WritePointsCSV writes the trajectory; extra names the indicator columns
// appended after the fixed ones. Undefined values are left empty.
func WritePointsCSV(path string, extra []string, rows []PointCSV) error {
	return writeFile(path, func(w *csv.Writer) {
		w.Write(append([]string{"ts", "close", "signal", "cash", "holdings", "total", "action"}, extra...))
		for _, r := range rows {
			rec := []string{ts(r.TS), ftoa(r.Close), strconv.Itoa(r.Signal), ftoa(r.Cash), ftoa(r.Holdings), ftoa(r.Total), strconv.Itoa(r.Action)}
			for i := range extra {
				v := ""
				if i < len(r.Extra) && !math.IsNaN(r.Extra[i]) {
					v = ftoa(r.Extra[i])
				}
				rec = append(rec, v)
			}
			w.Write(rec)
		}
	})
}

// WriteResultsCSV writes the ranked result table; order of rows is preserved.
func WriteResultsCSV(path string, params []string, rows []ResultCSV) error {
	return writeFile(path, func(w *csv.Writer) { writeResults(w, params, rows) })
}

func EncodeResultsCSV(out io.Writer, params []string, rows []ResultCSV) error {
	w := csv.NewWriter(out)
	writeResults(w, params, rows)
	w.Flush()
	return w.Error()
}

func writeResults(w *csv.Writer, params []string, rows []ResultCSV) {
	head := append([]string{"id"}, params...)
	head = append(head, "Initial Portfolio", "Final Portfolio", "Total Return (%)", "Buy & Hold Return (%)",
		"Total Trades", "Max Drawdown (%)", "Win Rate", "Profit Factor")
	w.Write(head)
	for _, r := range rows {
		rec := append([]string{r.ID}, r.Params...)
		rec = append(rec, Money(r.Initial), Money(r.Final), Money(r.TotalReturn), Money(r.BuyHold),
			strconv.Itoa(r.Trades), Money(r.MaxDD), Money(r.WinRate), Money(r.ProfitFactor))
		w.Write(rec)
	}
}

func writeFile(path string, fill func(w *csv.Writer)) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	fill(w)
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339) }
func ftoa(x float64) string { return strconv.FormatFloat(x, 'f', 8, 64) }
