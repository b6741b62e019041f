package indicators

import "math"

// RSI with Wilder smoothing. The first defined value sits at index n.
func RSI(cl []float64, n int) []float64 {
	res := make([]float64, len(cl))
	for i := range res {
		res[i] = math.NaN()
	}
	if n < 2 {
		n = 2
	}
	if len(cl) <= n {
		return res
	}

	gain := 0.0
	loss := 0.0
	for i := 1; i <= n; i++ {
		d := cl[i] - cl[i-1]
		if d >= 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgG := gain / float64(n)
	avgL := loss / float64(n)
	res[n] = rsiValue(avgG, avgL)

	for i := n + 1; i < len(cl); i++ {
		d := cl[i] - cl[i-1]
		g, l := 0.0, 0.0
		if d >= 0 {
			g = d
		} else {
			l = -d
		}
		avgG = (avgG*float64(n-1) + g) / float64(n)
		avgL = (avgL*float64(n-1) + l) / float64(n)
		res[i] = rsiValue(avgG, avgL)
	}
	return res
}

func rsiValue(avgG, avgL float64) float64 {
	if avgL == 0 {
		if avgG == 0 {
			return 50
		}
		return 100
	}
	rs := avgG / avgL
	return 100 - 100/(1+rs)
}

// Stoch returns the slow %K and %D lines: raw %K over k bars smoothed by
// smoothK, and %D as the d-bar average of %K.
func Stoch(h, l, c []float64, k, d, smoothK int) (pk, pd []float64) {
	hh := RollingMax(h, k)
	ll := RollingMin(l, k)
	raw := make([]float64, len(c))
	for i := range c {
		rng := hh[i] - ll[i]
		switch {
		case math.IsNaN(rng):
			raw[i] = math.NaN()
		case rng == 0:
			raw[i] = 50
		default:
			raw[i] = 100 * (c[i] - ll[i]) / rng
		}
	}
	pk = SMA(raw, smoothK)
	pd = SMA(pk, d)
	return pk, pd
}
