package model

// SeriesPoint is one indicator value keyed to the time of the candle that
// produced it.
type SeriesPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// BandPoint is one Bollinger Bands sample.
type BandPoint struct {
	Time   int64   `json:"time"`
	Middle float64 `json:"middle"`
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
}

// MACDPoint is one MACD sample. Histogram is always MACD - Signal.
type MACDPoint struct {
	Time      int64   `json:"time"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// RSIPoint is one RSI sample together with the close it was computed on.
type RSIPoint struct {
	Time  int64   `json:"time"`
	Close float64 `json:"close"`
	RSI   float64 `json:"rsi"`
}

// StochRSIPoint extends RSIPoint with the raw stochastic value, %K and %D.
type StochRSIPoint struct {
	RSIPoint
	RawStochRSI float64 `json:"rawStochRSI"`
	StochRSI    float64 `json:"stochRSI"`  // %K
	StochRSID   float64 `json:"stochRSID"` // %D
}

// Last returns the final point of a series and whether there was one.
func Last(series []SeriesPoint) (SeriesPoint, bool) {
	if len(series) == 0 {
		return SeriesPoint{}, false
	}
	return series[len(series)-1], true
}
