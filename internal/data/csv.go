package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"backtester/internal/core"
)

var timeCols = []string{"open_time", "open time", "timestamp", "time", "ts", "date"}

// LoadCSV reads one OHLCV file. Header names are matched case-insensitively;
// volume is optional.
func LoadCSV(path string) ([]core.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

func ReadCSV(in io.Reader) ([]core.Bar, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	head, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, core.ErrEmptySeries
		}
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range head {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	tcol := -1
	for _, name := range timeCols {
		if i, ok := idx[name]; ok {
			tcol = i
			break
		}
	}
	if tcol < 0 {
		return nil, fmt.Errorf("%w: open_time", core.ErrMissingColumn)
	}
	for _, name := range []string{"open", "high", "low", "close"} {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrMissingColumn, name)
		}
	}
	vcol, hasVol := idx["volume"]

	var bars []core.Bar
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(rec) < len(head) {
			return nil, fmt.Errorf("line %d: %d fields, want %d", line, len(rec), len(head))
		}
		ts, err := parseTime(rec[tcol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := core.Bar{Ts: ts}
		fields := []struct {
			dst  *float64
			name string
		}{{&b.Open, "open"}, {&b.High, "high"}, {&b.Low, "low"}, {&b.Close, "close"}}
		for _, fld := range fields {
			if *fld.dst, err = strconv.ParseFloat(strings.TrimSpace(rec[idx[fld.name]]), 64); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, fld.name, err)
			}
		}
		if hasVol && vcol < len(rec) && strings.TrimSpace(rec[vcol]) != "" {
			if b.Volume, err = strconv.ParseFloat(strings.TrimSpace(rec[vcol]), 64); err != nil {
				return nil, fmt.Errorf("line %d: volume: %w", line, err)
			}
		}
		bars = append(bars, b)
	}
	return Normalize(bars), nil
}

// LoadCSVGlob loads every file matching pattern (doublestar syntax) and merges
// them into one ordered series.
func LoadCSVGlob(symbol, tf, pattern string) (*core.Series, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	sort.Strings(paths)
	var all []core.Bar
	for _, p := range paths {
		bars, err := LoadCSV(p)
		if err != nil && !errors.Is(err, core.ErrEmptySeries) {
			return nil, err
		}
		all = append(all, bars...)
	}
	s := core.NewSeries(symbol, tf, Normalize(all))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Normalize sorts by time and keeps the first bar of each timestamp.
func Normalize(bars []core.Bar) []core.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Ts.Equal(out[len(out)-1].Ts) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// WriteCSV stores bars with open_time in unix milliseconds.
func WriteCSV(path string, bars []core.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	_ = w.Write([]string{"open_time", "open", "high", "low", "close", "volume"})
	for _, b := range bars {
		_ = w.Write([]string{
			strconv.FormatInt(b.Ts.UnixMilli(), 10),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close), formatF(b.Volume),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", v)
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
