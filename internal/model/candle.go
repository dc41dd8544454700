package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLCV period as delivered by the market-data provider.
// Time is the period open time in milliseconds since the Unix epoch.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// OpenTime returns Time as a UTC time.Time.
func (c Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Time).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// KlineUpdate is a streamed candle for a symbol/timeframe. Final is false
// while the period is still forming.
type KlineUpdate struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candle    Candle    `json:"candle"`
	Final     bool      `json:"final"`
}
