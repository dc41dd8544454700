// Package analysis runs the indicator set over each configured timeframe
// of a symbol and keeps the latest result per (symbol, timeframe).
package analysis

import (
	"encoding/json"

	"marketdash/internal/cross"
	"marketdash/internal/indicator"
	"marketdash/internal/model"
)

// Analysis is the full indicator output for one symbol and timeframe,
// recomputed from scratch on every refresh.
type Analysis struct {
	Symbol    string                      `json:"symbol"`
	Timeframe model.Timeframe             `json:"timeframe"`
	Candles   int                         `json:"candles"`
	LastTime  int64                       `json:"lastTime"`
	LastClose float64                     `json:"lastClose"`
	MAs       map[int][]model.SeriesPoint `json:"mas"`
	RSI       []model.RSIPoint            `json:"rsi"`
	StochRSI  []model.StochRSIPoint       `json:"stochRSI"`
	MACD      []model.MACDPoint           `json:"macd"`
	Bollinger []model.BandPoint           `json:"bollinger"`
	Crosses   model.CrossResult           `json:"crosses"`
}

// JSON returns the JSON-encoded analysis.
func (a *Analysis) JSON() []byte {
	b, _ := json.Marshal(a)
	return b
}

// Analyze computes every indicator for candles, which must be ordered and
// free of duplicates (see indicator.Normalize). The cross pair is taken
// from the MA series when present and computed otherwise.
func Analyze(symbol string, tf model.Timeframe, candles []model.Candle, p Params) Analysis {
	a := Analysis{
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   len(candles),
		MAs:       indicator.AllMAs(candles, p.MAPeriods),
		RSI:       indicator.RSI(candles, p.RSIPeriod),
		StochRSI:  indicator.StochasticRSI(candles, p.StochRSI),
		MACD:      indicator.MACD(candles, p.MACD),
		Bollinger: indicator.BollingerBands(candles, p.BBPeriod, p.BBStdDev),
	}
	if n := len(candles); n > 0 {
		a.LastTime = candles[n-1].Time
		a.LastClose = candles[n-1].Close
	}

	short, ok := a.MAs[p.CrossShort]
	if !ok {
		short = indicator.SMA(candles, p.CrossShort)
	}
	long, ok := a.MAs[p.CrossLong]
	if !ok {
		long = indicator.SMA(candles, p.CrossLong)
	}
	a.Crosses = cross.Detect(short, long)
	return a
}
