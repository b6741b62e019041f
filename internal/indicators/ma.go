package indicators

import "math"

// SMA is the simple moving average over n values. Positions before the
// window fills, or whose window holds a NaN, are NaN.
func SMA(x []float64, n int) []float64 {
	res := make([]float64, len(x))
	if n <= 0 {
		for i := range res {
			res[i] = math.NaN()
		}
		return res
	}
	var sum float64
	nan := 0
	for i := range x {
		if math.IsNaN(x[i]) {
			nan++
		} else {
			sum += x[i]
		}
		if i >= n {
			old := x[i-n]
			if math.IsNaN(old) {
				nan--
			} else {
				sum -= old
			}
		}
		if i < n-1 || nan > 0 {
			res[i] = math.NaN()
			continue
		}
		res[i] = sum / float64(n)
	}
	return res
}

// RollingMin / RollingMax over n values, NaN until the window fills.
func RollingMin(x []float64, n int) []float64 { return rolling(x, n, math.Min) }
func RollingMax(x []float64, n int) []float64 { return rolling(x, n, math.Max) }

func rolling(x []float64, n int, pick func(a, b float64) float64) []float64 {
	res := make([]float64, len(x))
	for i := range x {
		if n <= 0 || i < n-1 {
			res[i] = math.NaN()
			continue
		}
		v := x[i-n+1]
		for j := i - n + 2; j <= i; j++ {
			v = pick(v, x[j])
		}
		res[i] = v
	}
	return res
}
