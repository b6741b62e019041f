package data

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"backtester/internal/core"
)

// ParseTimeframe accepts Go durations ("30m", "4h") plus day and week units ("1d", "1w").
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(tf)
	if tf == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	var d time.Duration
	var err error
	switch unit := tf[len(tf)-1]; unit {
	case 'd', 'D', 'w', 'W':
		var n int
		n, err = strconv.Atoi(tf[:len(tf)-1])
		d = time.Duration(n) * 24 * time.Hour
		if unit == 'w' || unit == 'W' {
			d *= 7
		}
	default:
		d, err = time.ParseDuration(tf)
	}
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("bad timeframe %q", tf)
	}
	return d, nil
}

// FormatTimeframe is the inverse of ParseTimeframe for whole units.
func FormatTimeframe(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= 7*day && d%(7*day) == 0:
		return strconv.Itoa(int(d/(7*day))) + "w"
	case d >= day && d%day == 0:
		return strconv.Itoa(int(d/day)) + "d"
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	}
	return d.String()
}

// Resample aggregates bars into tf buckets: open first, high max, low min,
// close last, volume sum. Buckets without bars do not appear. Indicator
// columns of s are not carried over.
func Resample(s *core.Series, tf string) (*core.Series, error) {
	if s.Len() == 0 {
		return nil, core.ErrEmptySeries
	}
	d, err := ParseTimeframe(tf)
	if err != nil {
		return nil, err
	}
	out := make([]core.Bar, 0, s.Len())
	var cur core.Bar
	open := false
	for _, b := range s.Bars {
		if anyNaN(b) {
			continue
		}
		bucket := b.Ts.Truncate(d)
		if open && bucket.Equal(cur.Ts) {
			cur.High = math.Max(cur.High, b.High)
			cur.Low = math.Min(cur.Low, b.Low)
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = core.Bar{Ts: bucket, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
		open = true
	}
	if open {
		out = append(out, cur)
	}
	if len(out) == 0 {
		return nil, core.ErrEmptySeries
	}
	return core.NewSeries(s.Symbol, tf, out), nil
}

func anyNaN(b core.Bar) bool {
	return math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close)
}

// Resampler adapts Resample to the sweep's preparation step.
type Resampler struct{}

func (Resampler) Prepare(base *core.Series, tf string) (*core.Series, error) {
	return Resample(base, tf)
}
