// Package cross finds crossovers between a short and a long moving average
// and extrapolates the next one from their recent slopes.
package cross

import (
	"math"

	"marketdash/internal/model"
)

// Epsilon is the relative tolerance for sign and zero comparisons. A
// difference d between two values a and b counts as zero when
// |d| <= Epsilon * max(|a|, |b|, 1).
const Epsilon = 1e-9

const (
	// trendWindow is the number of trailing points sampled for the slope.
	trendWindow = 5
	dayMs       = 24 * 60 * 60 * 1000
)

// Detect walks the short series in time order, pairs each point with the
// long point at the same timestamp and records every change of side.
//
// Fewer than two points in either series yields an empty result. The
// estimate is set only when the slopes of the two series move them toward
// each other.
func Detect(short, long []model.SeriesPoint) model.CrossResult {
	res := model.CrossResult{AllCrosses: []model.CrossEvent{}}
	if len(short) < 2 || len(long) < 2 {
		return res
	}

	byTime := make(map[int64]float64, len(long))
	for _, p := range long {
		byTime[p.Time] = p.Value
	}

	start := 0
	for start < len(short) && short[start].Time < long[0].Time {
		start++
	}

	var (
		paired            bool
		above             bool
		lastShort, lastLg float64
	)
	for _, sp := range short[start:] {
		lv, ok := byTime[sp.Time]
		if !ok {
			continue
		}

		cur := sideOf(sp.Value, lv, above)
		if paired && cur != above {
			ev := model.CrossEvent{
				Time:       sp.Time,
				Type:       model.CrossDeath,
				ShortValue: sp.Value,
				LongValue:  lv,
			}
			if cur {
				ev.Type = model.CrossGolden
			}
			res.AllCrosses = append(res.AllCrosses, ev)

			e := ev
			if cur {
				res.LastGoldenCross = &e
			} else {
				res.LastDeathCross = &e
			}
		}

		paired = true
		above = cur
		lastShort, lastLg = sp.Value, lv
	}

	if paired {
		res.NextCrossEstimate = estimate(short, long, lastShort, lastLg)
	}
	return res
}

// sideOf reports whether s is above l. Differences inside the epsilon band
// keep the previous side.
func sideOf(s, l float64, prev bool) bool {
	d := s - l
	tol := tolerance(s, l)
	switch {
	case d > tol:
		return true
	case d < -tol:
		return false
	}
	return prev
}

func tolerance(a, b float64) float64 {
	return Epsilon * math.Max(math.Max(math.Abs(a), math.Abs(b)), 1)
}

// estimate extrapolates the next cross from the change over the trailing
// window. currentDiff is taken from the last aligned pair. Series touching
// within the epsilon band while their trends differ yield a zero-day
// estimate.
func estimate(short, long []model.SeriesPoint, lastShort, lastLong float64) *model.CrossEstimate {
	if len(short) < trendWindow || len(long) < trendWindow {
		return nil
	}

	shortTrend := short[len(short)-1].Value - short[len(short)-trendWindow].Value
	longTrend := long[len(long)-1].Value - long[len(long)-trendWindow].Value
	trendDiff := shortTrend - longTrend
	currentDiff := lastShort - lastLong

	if math.Abs(trendDiff) <= tolerance(shortTrend, longTrend) {
		return nil
	}
	lastTime := short[len(short)-1].Time
	if math.Abs(currentDiff) <= tolerance(lastShort, lastLong) {
		// Touching: the cross is due now, in the direction the trend pushes.
		next := model.CrossDeath
		if trendDiff > 0 {
			next = model.CrossGolden
		}
		return &model.CrossEstimate{EstimatedTime: lastTime, Type: next, DaysUntil: 0}
	}
	// Converging only when the gap and its rate of change have opposite signs.
	if (trendDiff > 0) == (currentDiff > 0) {
		return nil
	}

	days := math.Abs(currentDiff/trendDiff) * trendWindow
	next := model.CrossGolden
	if currentDiff > 0 {
		next = model.CrossDeath
	}
	return &model.CrossEstimate{
		EstimatedTime: lastTime + int64(math.Round(days*dayMs)),
		Type:          next,
		DaysUntil:     days,
	}
}
