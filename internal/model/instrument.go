package model

// Pair is a tradeable spot pair listed by the market-data provider.
type Pair struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	Status     string `json:"status"`
}

// Trading reports whether the pair is currently open for trading.
func (p *Pair) Trading() bool {
	return p.Status == "TRADING"
}
