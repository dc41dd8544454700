// Package indicator computes technical indicators over ordered candle slices.
//
// Every function is pure and total: it never panics on short input and never
// emits NaN or Inf. When there is not enough data for the first valid value
// the result is an empty (non-nil) slice. Output points are keyed to the time
// of the candle that produced them and appear in input order.
//
// Inputs are assumed ascending by Time without duplicates; use Normalize at
// the boundary when that is not guaranteed.
package indicator

import (
	"math"
	"sort"

	"marketdash/internal/model"
)

// Default parameters, matching the common charting-platform settings.
const (
	DefaultRSIPeriod   = 14
	DefaultStochPeriod = 14
	DefaultKSmooth     = 3
	DefaultDSmooth     = 3
	DefaultMACDFast    = 12
	DefaultMACDSlow    = 26
	DefaultMACDSignal  = 9
	DefaultBBPeriod    = 20
	DefaultBBStdDev    = 2.0
)

// DefaultMAPeriods are the SMA periods shown on the dashboard.
var DefaultMAPeriods = []int{9, 21, 55, 100, 200}

// lossFloor replaces a zero average loss in the RS ratio.
const lossFloor = 0.0001

// Normalize returns candles sorted ascending by Time with duplicate
// timestamps collapsed to their last occurrence and non-finite closes
// dropped. The input slice is not modified.
func Normalize(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	// Keep the last of each run of equal timestamps.
	n := 0
	for i := range out {
		if i+1 < len(out) && out[i+1].Time == out[i].Time {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// closes extracts the close prices.
func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// windowMinMax returns the min and max of vals.
func windowMinMax(vals []float64) (lo, hi float64) {
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
