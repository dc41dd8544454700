// Package precision tracks how many decimals each trading pair is quoted
// with and formats prices for display.
package precision

import (
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	MinDecimals     = 2
	MaxDecimals     = 8
	DefaultDecimals = 2
)

// fallback decimals by base asset, used until a price has been observed.
var fallback = map[string]int{
	"BTC":  2,
	"ETH":  2,
	"BNB":  2,
	"SOL":  2,
	"ADA":  4,
	"XRP":  4,
	"DOT":  3,
	"DOGE": 6,
	"SHIB": 8,
	"PEPE": 8,
}

var quoteSuffixes = []string{"FDUSD", "USDT", "USDC", "BUSD"}

// Cache maps symbols to display decimals. The value for a symbol never
// decreases once observed. Safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	decimals map[string]int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{decimals: make(map[string]int)}
}

// Get returns the cached decimals for symbol, or the fallback for its base
// asset when nothing has been observed.
func (c *Cache) Get(symbol string) int {
	if symbol == "" {
		return DefaultDecimals
	}
	c.mu.RLock()
	d, ok := c.decimals[symbol]
	c.mu.RUnlock()
	if ok {
		return d
	}
	if d, ok := fallback[BaseAsset(symbol)]; ok {
		return d
	}
	return DefaultDecimals
}

// Observe records the precision of a quoted price and returns the value now
// cached. Zero, negative and non-finite prices are ignored.
func (c *Cache) Observe(symbol string, price float64) int {
	if symbol == "" || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return c.Get(symbol)
	}
	return c.store(symbol, Decimals(decimal.NewFromFloat(price)))
}

// ObserveString is Observe for a price as quoted by the exchange, which may
// carry trailing zeros ("0.00001230").
func (c *Cache) ObserveString(symbol, price string) int {
	d, err := decimal.NewFromString(price)
	if symbol == "" || err != nil || !d.IsPositive() {
		return c.Get(symbol)
	}
	return c.store(symbol, Decimals(d))
}

func (c *Cache) store(symbol string, n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.decimals[symbol]; ok && cur >= n {
		return cur
	}
	c.decimals[symbol] = n
	return n
}

// Snapshot copies the observed values.
func (c *Cache) Snapshot() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.decimals))
	for k, v := range c.decimals {
		out[k] = v
	}
	return out
}

// Format renders price with the decimals cached for symbol.
func (c *Cache) Format(symbol string, price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "0"
	}
	return decimal.NewFromFloat(price).StringFixed(int32(c.Get(symbol)))
}

// Decimals counts the significant decimals of d, clamped to
// [MinDecimals, MaxDecimals]. Integral values give 0.
func Decimals(d decimal.Decimal) int {
	s := d.String() // trailing zeros already trimmed
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	n := len(s) - i - 1
	return min(max(n, MinDecimals), MaxDecimals)
}

// BaseAsset strips a known quote currency suffix from symbol.
func BaseAsset(symbol string) string {
	for _, q := range quoteSuffixes {
		if base, ok := strings.CutSuffix(symbol, q); ok && base != "" {
			return base
		}
	}
	return symbol
}
