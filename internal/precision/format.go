package precision

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice renders a price with magnitude-dependent precision and
// trailing zeros removed: below 0.01 up to 8 decimals, below 1 up to 4,
// otherwise up to 2.
func FormatPrice(price float64) string {
	if price == 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return "0"
	}
	switch {
	case price < 0.01:
		return fixedTrimmed(price, 8)
	case price < 1:
		return fixedTrimmed(price, 4)
	}
	return fixedTrimmed(price, 2)
}

// FormatPriceChange is FormatPrice for signed changes, bucketed by
// absolute value.
func FormatPriceChange(change float64) string {
	if change == 0 || math.IsNaN(change) || math.IsInf(change, 0) {
		return "0"
	}
	abs := math.Abs(change)
	switch {
	case abs < 0.01:
		return fixedTrimmed(change, 8)
	case abs < 1:
		return fixedTrimmed(change, 4)
	}
	return fixedTrimmed(change, 2)
}

func fixedTrimmed(v float64, places int32) string {
	s := decimal.NewFromFloat(v).StringFixed(places)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
