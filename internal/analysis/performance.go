package analysis

import (
	"fmt"
	"time"

	"marketdash/internal/model"
)

// HourPerformance is the open-to-close move of one hourly candle.
type HourPerformance struct {
	Hour          int     `json:"hour"`
	FormattedHour string  `json:"formattedHour"`
	PercentChange float64 `json:"percentChange"`
	Time          int64   `json:"time"`
}

// HourProgress is the move of the current, still forming hour.
type HourProgress struct {
	HourPerformance
	MinutesIntoHour int `json:"minutesIntoHour"`
}

// HourlyPerformance returns the last n hourly candles, most recent first.
// Candles with a zero open report a 0% change.
func HourlyPerformance(candles []model.Candle, n int, loc *time.Location) []HourPerformance {
	if loc == nil {
		loc = time.UTC
	}
	if n > len(candles) {
		n = len(candles)
	}
	out := make([]HourPerformance, 0, max(n, 0))
	for i := len(candles) - 1; i >= len(candles)-n; i-- {
		c := candles[i]
		out = append(out, hourOf(c.Time, pctChange(c.Open, c.Close), loc))
	}
	return out
}

// CurrentHourProgress compares price with the open of the current hour.
func CurrentHourProgress(hourOpen, price float64, now time.Time) HourProgress {
	return HourProgress{
		HourPerformance: hourOf(now.UnixMilli(), pctChange(hourOpen, price), now.Location()),
		MinutesIntoHour: now.Minute(),
	}
}

func hourOf(ms int64, pct float64, loc *time.Location) HourPerformance {
	h := time.UnixMilli(ms).In(loc).Hour()
	return HourPerformance{
		Hour:          h,
		FormattedHour: fmt.Sprintf("%02d:00", h),
		PercentChange: pct,
		Time:          ms,
	}
}

func pctChange(open, close float64) float64 {
	if open == 0 {
		return 0
	}
	return (close - open) / open * 100
}
