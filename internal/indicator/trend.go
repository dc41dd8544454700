package indicator

import (
	"math"

	"marketdash/internal/model"
)

// MACDParams configures MACD. Zero fields take the defaults (12, 26, 9).
type MACDParams struct {
	Fast   int
	Slow   int
	Signal int
}

func (p MACDParams) withDefaults() MACDParams {
	if p.Fast <= 0 {
		p.Fast = DefaultMACDFast
	}
	if p.Slow <= 0 {
		p.Slow = DefaultMACDSlow
	}
	if p.Signal <= 0 {
		p.Signal = DefaultMACDSignal
	}
	return p
}

// MinCandles is the input length below which MACD returns nothing.
func (p MACDParams) MinCandles() int {
	p = p.withDefaults()
	return max(p.Fast, p.Slow) + p.Signal
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal line (EMA of
// the MACD line) and the histogram (MACD - signal). EMAs use the same
// first-close seed as EMA. Only timestamps present in both EMAs are kept.
// Empty when len(candles) < max(fast, slow) + signal.
func MACD(candles []model.Candle, params MACDParams) []model.MACDPoint {
	p := params.withDefaults()
	if len(candles) < p.MinCandles() {
		return []model.MACDPoint{}
	}

	fast := EMA(candles, p.Fast)
	slow := EMA(candles, p.Slow)

	line := make([]float64, 0, len(fast))
	ts := make([]int64, 0, len(fast))
	for i := 0; i < min(len(fast), len(slow)); i++ {
		if fast[i].Time != slow[i].Time {
			continue
		}
		line = append(line, fast[i].Value-slow[i].Value)
		ts = append(ts, fast[i].Time)
	}
	if len(line) < p.Signal {
		return []model.MACDPoint{}
	}

	signal := emaSeries(line, ts, p.Signal)
	out := make([]model.MACDPoint, len(signal))
	for i, s := range signal {
		out[i] = model.MACDPoint{
			Time:      ts[i],
			MACD:      line[i],
			Signal:    s.Value,
			Histogram: line[i] - s.Value,
		}
	}
	return out
}

// BollingerBands returns middle = SMA(period) and upper/lower = middle ±
// multiplier × population standard deviation of the same window.
// Empty when len(candles) < period.
func BollingerBands(candles []model.Candle, period int, multiplier float64) []model.BandPoint {
	if period <= 0 || len(candles) < period {
		return []model.BandPoint{}
	}

	sma := SMA(candles, period)
	out := make([]model.BandPoint, len(sma))
	for j, m := range sma {
		window := candles[j : j+period]
		variance := 0.0
		for _, c := range window {
			d := c.Close - m.Value
			variance += d * d
		}
		variance /= float64(period)
		width := math.Sqrt(variance) * multiplier

		out[j] = model.BandPoint{
			Time:   m.Time,
			Middle: m.Value,
			Upper:  m.Value + width,
			Lower:  m.Value - width,
		}
	}
	return out
}
