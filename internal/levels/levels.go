// Package levels measures how far a price is from named technical levels
// such as moving averages and Bollinger bands.
package levels

import (
	"math"
	"sort"
	"strconv"

	"marketdash/internal/model"
)

// Band level names.
const (
	UpperBand  = "Upper Band"
	MiddleBand = "Middle Band"
	LowerBand  = "Lower Band"
)

// DistanceToLevel returns |(level-price)/price|·100 and whether the level
// sits above the price. A zero price or level yields {0, true}.
func DistanceToLevel(price, level float64) model.LevelDistance {
	if price == 0 || level == 0 {
		return model.LevelDistance{Percentage: 0, IsAbove: true}
	}
	d := level - price
	return model.LevelDistance{
		Percentage: math.Abs(d / price * 100),
		IsAbove:    d > 0,
	}
}

// FindClosestLevel picks the level nearest to price by absolute distance.
// Ties keep the first level in input order. A zero price or no usable
// levels yields an all-nil result.
func FindClosestLevel(price float64, levels []model.Level) model.ClosestLevel {
	if price == 0 || len(levels) == 0 {
		return model.ClosestLevel{}
	}

	best := -1
	bestDist := math.Inf(1)
	for i, l := range levels {
		if math.IsNaN(l.Value) || math.IsInf(l.Value, 0) {
			continue
		}
		if d := math.Abs(price - l.Value); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return model.ClosestLevel{}
	}

	value := levels[best].Value
	name := levels[best].Name
	dist := DistanceToLevel(price, value)
	return model.ClosestLevel{Level: &value, Name: &name, Distance: &dist}
}

// MALevels returns the latest value of every non-empty MA series, named
// "MA<period>", ordered by period.
func MALevels(mas map[int][]model.SeriesPoint) []model.Level {
	periods := make([]int, 0, len(mas))
	for p := range mas {
		periods = append(periods, p)
	}
	sort.Ints(periods)

	out := make([]model.Level, 0, len(periods))
	for _, p := range periods {
		if last, ok := model.Last(mas[p]); ok {
			out = append(out, model.Level{Name: MAName(p), Value: last.Value})
		}
	}
	return out
}

// BandLevels returns the upper, middle and lower values of the latest band.
func BandLevels(bands []model.BandPoint) []model.Level {
	if len(bands) == 0 {
		return nil
	}
	b := bands[len(bands)-1]
	return []model.Level{
		{Name: UpperBand, Value: b.Upper},
		{Name: MiddleBand, Value: b.Middle},
		{Name: LowerBand, Value: b.Lower},
	}
}

// ClosestMA finds the moving average nearest to price.
func ClosestMA(price float64, mas map[int][]model.SeriesPoint) model.ClosestLevel {
	return FindClosestLevel(price, MALevels(mas))
}

// ClosestBB finds the Bollinger band nearest to price.
func ClosestBB(price float64, bands []model.BandPoint) model.ClosestLevel {
	return FindClosestLevel(price, BandLevels(bands))
}

// MAName is the display name of an MA period.
func MAName(period int) string {
	return "MA" + strconv.Itoa(period)
}

// TimeframeLevels holds the latest MA and band values of one timeframe.
type TimeframeLevels struct {
	MA map[string]float64 `json:"ma"`
	BB map[string]float64 `json:"bb"`
}

// Input is the per-timeframe data AllTechnicalLevels reads.
type Input struct {
	MAs   map[int][]model.SeriesPoint
	Bands []model.BandPoint
}

// AllTechnicalLevels collects every level per timeframe. Band keys are
// "Upper", "Middle" and "Lower". Timeframes without data get empty maps.
func AllTechnicalLevels(in map[model.Timeframe]Input) map[model.Timeframe]TimeframeLevels {
	out := make(map[model.Timeframe]TimeframeLevels, len(in))
	for tf, data := range in {
		tl := TimeframeLevels{
			MA: make(map[string]float64),
			BB: make(map[string]float64),
		}
		for _, l := range MALevels(data.MAs) {
			tl.MA[l.Name] = l.Value
		}
		if n := len(data.Bands); n > 0 {
			b := data.Bands[n-1]
			tl.BB["Upper"] = b.Upper
			tl.BB["Middle"] = b.Middle
			tl.BB["Lower"] = b.Lower
		}
		out[tf] = tl
	}
	return out
}
