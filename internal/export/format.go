package export

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money rounds to two places for tables and reports.
func Money(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return ""
	}
	return decimal.NewFromFloat(x).StringFixed(2)
}
