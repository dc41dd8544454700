package model

// Tick is a 24h ticker update for a trading pair. Time is the event time in
// milliseconds since the Unix epoch.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Open      float64 `json:"open"`
	ChangePct float64 `json:"changePct"`
	Time      int64   `json:"time"`

	// PriceText is the price as quoted, trailing zeros included.
	PriceText string `json:"-"`
}
