package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/core"
)

const (
	SpotBaseURL    = "https://api.binance.com"
	FuturesBaseURL = "https://fapi.binance.com"
)

// Fetcher downloads klines from Binance spot or USD-M futures REST endpoints.
type Fetcher struct {
	Market  string // spot | futures
	BaseURL string // overrides the market default
	APIKey  string
	Pause   time.Duration // between pages
	Client  *http.Client
	Logger  zerolog.Logger
}

func (f *Fetcher) endpoint() (string, int) {
	base := f.BaseURL
	if f.Market == "futures" {
		if base == "" {
			base = FuturesBaseURL
		}
		return base + "/fapi/v1/klines", 1500
	}
	if base == "" {
		base = SpotBaseURL
	}
	return base + "/api/v3/klines", 1000
}

// Fetch pages through [from, to) and returns the bars in time order.
func (f *Fetcher) Fetch(ctx context.Context, symbol, interval string, from, to time.Time) ([]core.Bar, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint, limit := f.endpoint()
	out := make([]core.Bar, 0, 4096)
	start := from
	for start.Before(to) {
		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("interval", interval)
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))
		q.Set("limit", strconv.Itoa(limit))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if f.APIKey != "" {
			req.Header.Set("X-MBX-APIKEY", f.APIKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("binance %s status %d", f.Market, resp.StatusCode)
		}
		var raw [][]any
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body.Close()
		if len(raw) == 0 {
			break
		}
		seen := len(out)
		for i, k := range raw {
			b, err := parseKline(k)
			if err != nil {
				return nil, fmt.Errorf("binance %s %s kline %d: %w", f.Market, symbol, seen+i, err)
			}
			out = append(out, b)
		}
		last := out[len(out)-1].Ts.UnixMilli()
		f.Logger.Info().Str("symbol", symbol).Int("page", len(raw)).Time("last", time.UnixMilli(last).UTC()).Msg("klines fetched")
		start = time.UnixMilli(last).Add(time.Millisecond)
		if len(raw) < limit {
			break
		}
		if f.Pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.Pause):
			}
		}
	}
	return Normalize(out), nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...].
func parseKline(k []any) (core.Bar, error) {
	if len(k) < 6 {
		return core.Bar{}, fmt.Errorf("%d fields, want at least 6", len(k))
	}
	ts, err := toInt64(k[0])
	if err != nil {
		return core.Bar{}, fmt.Errorf("open time: %w", err)
	}
	var vals [5]float64
	for j := range vals {
		if vals[j], err = toF64(k[j+1]); err != nil {
			return core.Bar{}, fmt.Errorf("field %d: %w", j+1, err)
		}
	}
	return core.Bar{
		Ts:     time.UnixMilli(ts).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func toF64(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected %T %v", v, v)
	}
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected %T %v", v, v)
	}
}
