package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/core"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestReadCSVFormats(t *testing.T) {
	in := "\ufeffOpen_Time,Open,High,Low,Close,Volume\n" +
		"1704067260000,2,3,1,2.5,10\n" +
		"1704067200000,1,2,0.5,1.5,5\n" +
		"1704067200000,9,9,9,9,9\n"
	bars, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2, "duplicate timestamp dropped")
	assert.Equal(t, t0, bars[0].Ts)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, t0.Add(time.Minute), bars[1].Ts)

	bars, err = ReadCSV(strings.NewReader("timestamp,open,high,low,close\n2024-01-01T00:00:00Z,1,1,1,1\n1704067260,2,2,2,2\n"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t0.Add(time.Minute), bars[1].Ts)
	assert.Equal(t, 0.0, bars[1].Volume)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, core.ErrEmptySeries)

	_, err = ReadCSV(strings.NewReader("time,open,high,low\n1,1,1,1\n"))
	assert.ErrorIs(t, err, core.ErrMissingColumn)

	_, err = ReadCSV(strings.NewReader("time,open,high,low,close\n1,1,1,1,x\n"))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("time,open,high,low,close\nyesterday,1,1,1,1\n"))
	assert.Error(t, err)
}

func TestWriteThenLoadGlob(t *testing.T) {
	dir := t.TempDir()
	s := RandomWalk("ETHUSDT", time.Minute, t0, 120, 2000, 0.001, 3)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2024", "01"), 0o755))
	require.NoError(t, WriteCSV(filepath.Join(dir, "2024", "01", "b.csv"), s.Bars[60:]))
	require.NoError(t, WriteCSV(filepath.Join(dir, "a.csv"), s.Bars[:70]))

	got, err := LoadCSVGlob("ETHUSDT", "1m", filepath.Join(dir, "**", "*.csv"))
	require.NoError(t, err)
	require.Equal(t, 120, got.Len())
	for i := range got.Bars {
		assert.True(t, got.Bars[i].Ts.Equal(s.Bars[i].Ts))
		assert.InDelta(t, s.Bars[i].Close, got.Bars[i].Close, 1e-9)
	}

	_, err = LoadCSVGlob("X", "1m", filepath.Join(dir, "*.parquet"))
	assert.Error(t, err)
}

func TestParseTimeframe(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"30m": 30 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	} {
		got, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, in, FormatTimeframe(got))
	}
	for _, bad := range []string{"", "h", "0m", "-1h", "1M", "xd"} {
		_, err := ParseTimeframe(bad)
		assert.Error(t, err, bad)
	}
}

func TestResample(t *testing.T) {
	bars := []core.Bar{
		{Ts: t0, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
		{Ts: t0.Add(20 * time.Minute), Open: 11, High: 15, Low: 10, Close: 14, Volume: 2},
		{Ts: t0.Add(40 * time.Minute), Open: 14, High: 14, Low: 8, Close: 9, Volume: 3},
		// 01:00 bucket is empty
		{Ts: t0.Add(2*time.Hour + 5*time.Minute), Open: 20, High: 21, Low: 19, Close: 20, Volume: 4},
	}
	s, err := core.NewSeries("X", "20m", bars).WithColumn("SMA_2", []float64{1, 2, 3, 4})
	require.NoError(t, err)

	out, err := Resample(s, "1h")
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, core.Bar{Ts: t0, Open: 10, High: 15, Low: 8, Close: 9, Volume: 6}, out.Bars[0])
	assert.Equal(t, t0.Add(2*time.Hour), out.Bars[1].Ts)
	assert.Equal(t, "1h", out.TF)
	assert.Empty(t, out.Columns())

	_, err = Resample(core.NewSeries("X", "1m", nil), "1h")
	assert.ErrorIs(t, err, core.ErrEmptySeries)
	_, err = Resample(s, "soon")
	assert.Error(t, err)
}

func TestRandomWalkDeterministic(t *testing.T) {
	a := RandomWalk("X", time.Minute, t0, 50, 100, 0.01, 1)
	b := RandomWalk("X", time.Minute, t0, 50, 100, 0.01, 1)
	c := RandomWalk("X", time.Minute, t0, 50, 100, 0.01, 2)
	assert.Equal(t, a.Bars, b.Bars)
	assert.NotEqual(t, a.Bars, c.Bars)
	assert.Equal(t, "1m", a.TF)
	assert.NoError(t, a.Validate())
}

func TestFetcherPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var rows [][]any
		for ts := start - start%60000; ts <= end && len(rows) < limit; ts += 60000 {
			if ts < start {
				continue
			}
			rows = append(rows, []any{ts, "1.0", "2.0", "0.5", "1.5", "10", ts + 59999})
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	f := &Fetcher{Market: "spot", BaseURL: srv.URL, APIKey: "key", Logger: zerolog.Nop()}
	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1m", t0, t0.Add(2500*time.Minute))
	require.NoError(t, err)
	assert.Len(t, bars, 2500)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, t0, bars[0].Ts)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.NoError(t, core.NewSeries("BTCUSDT", "1m", bars).Validate())
}

func TestFetcherFuturesAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := &Fetcher{Market: "futures", BaseURL: srv.URL, Logger: zerolog.Nop()}
	_, err := f.Fetch(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcherRejectsMalformedKlines(t *testing.T) {
	for name, body := range map[string]string{
		"bad price":  `[[1704067200000,"1.0","2.0","0.5","abc","10"]]`,
		"bad time":   `[["yesterday","1.0","2.0","0.5","1.5","10"]]`,
		"too short":  `[[1704067200000,"1.0","2.0"]]`,
		"null field": `[[1704067200000,"1.0",null,"0.5","1.5","10"]]`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		f := &Fetcher{Market: "spot", BaseURL: srv.URL, Logger: zerolog.Nop()}
		_, err := f.Fetch(context.Background(), "BTCUSDT", "1m", t0, t0.Add(time.Hour))
		srv.Close()
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "kline 0", name)
	}
}

func TestParseKline(t *testing.T) {
	b, err := parseKline([]any{float64(1704067200000), "1.0", "2.0", "0.5", "1.5", "10"})
	require.NoError(t, err)
	assert.Equal(t, core.Bar{Ts: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}, b)

	_, err = parseKline([]any{float64(1704067200000), "1.0", "2.0", "0.5", "", "10"})
	assert.Error(t, err)
}
