package indicator

import "marketdash/internal/model"

// SMA returns the simple moving average of closes over period.
// Output length is len(candles)-period+1; empty when len(candles) < period.
func SMA(candles []model.Candle, period int) []model.SeriesPoint {
	if period <= 0 || len(candles) < period {
		return []model.SeriesPoint{}
	}

	out := make([]model.SeriesPoint, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		// Each window is summed on its own; a running sum would carry the
		// rounding of large closes into later windows.
		sum := 0.0
		for _, c := range candles[i-period+1 : i+1] {
			sum += c.Close
		}
		out = append(out, model.SeriesPoint{
			Time:  candles[i].Time,
			Value: sum / float64(period),
		})
	}
	return out
}

// EMA returns the exponential moving average of closes with α = 2/(period+1).
//
// The series is seeded with the first close rather than the SMA of the first
// window, so the first output equals candles[0].Close and there is one output
// per input candle. Empty when len(candles) < period.
func EMA(candles []model.Candle, period int) []model.SeriesPoint {
	if period <= 0 || len(candles) < period {
		return []model.SeriesPoint{}
	}
	return emaSeries(closes(candles), times(candles), period)
}

// emaSeries runs the EMA recurrence over vals, seeded with vals[0].
func emaSeries(vals []float64, ts []int64, period int) []model.SeriesPoint {
	alpha := 2.0 / float64(period+1)
	out := make([]model.SeriesPoint, len(vals))
	prev := vals[0]
	out[0] = model.SeriesPoint{Time: ts[0], Value: prev}
	for i := 1; i < len(vals); i++ {
		prev = alpha*vals[i] + (1-alpha)*prev
		out[i] = model.SeriesPoint{Time: ts[i], Value: prev}
	}
	return out
}

// AllMAs computes SMA for each period that has enough data. Periods with
// insufficient data are absent from the result. A nil periods slice uses
// DefaultMAPeriods.
func AllMAs(candles []model.Candle, periods []int) map[int][]model.SeriesPoint {
	if periods == nil {
		periods = DefaultMAPeriods
	}
	out := make(map[int][]model.SeriesPoint, len(periods))
	for _, p := range periods {
		if p > 0 && len(candles) >= p {
			out[p] = SMA(candles, p)
		}
	}
	return out
}

func times(candles []model.Candle) []int64 {
	out := make([]int64, len(candles))
	for i, c := range candles {
		out[i] = c.Time
	}
	return out
}
