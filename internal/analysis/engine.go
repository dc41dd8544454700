package analysis

import (
	"sort"
	"sync"
	"time"

	"marketdash/internal/alert"
	"marketdash/internal/indicator"
	"marketdash/internal/levels"
	"marketdash/internal/model"
)

// Engine holds the latest Analysis per (symbol, timeframe).
// Safe for concurrent use: refresh cycles write, HTTP handlers read.
type Engine struct {
	mu      sync.RWMutex
	configs []TimeframeConfig
	tfIndex map[model.Timeframe]int

	// latest[symbol][timeframe]
	latest map[string]map[model.Timeframe]*Analysis
}

// NewEngine creates an engine for the given timeframe configs. Call
// ValidateConfigs first; NewEngine does not.
func NewEngine(configs []TimeframeConfig) *Engine {
	idx := make(map[model.Timeframe]int, len(configs))
	for i, cfg := range configs {
		idx[cfg.Timeframe] = i
	}
	return &Engine{
		configs: configs,
		tfIndex: idx,
		latest:  make(map[string]map[model.Timeframe]*Analysis, 16),
	}
}

// Timeframes lists the configured timeframes in config order.
func (e *Engine) Timeframes() []model.Timeframe {
	out := make([]model.Timeframe, len(e.configs))
	for i, cfg := range e.configs {
		out[i] = cfg.Timeframe
	}
	return out
}

// Params returns the parameters configured for tf.
func (e *Engine) Params(tf model.Timeframe) (Params, bool) {
	i, ok := e.tfIndex[tf]
	if !ok {
		return Params{}, false
	}
	return e.configs[i].Params, true
}

// Process normalises candles, analyses them and replaces the stored result.
// Returns false when tf is not configured.
func (e *Engine) Process(symbol string, tf model.Timeframe, candles []model.Candle) (Analysis, bool) {
	p, ok := e.Params(tf)
	if !ok {
		return Analysis{}, false
	}
	a := Analyze(symbol, tf, indicator.Normalize(candles), p)

	e.mu.Lock()
	bySymbol, ok := e.latest[symbol]
	if !ok {
		bySymbol = make(map[model.Timeframe]*Analysis, len(e.configs))
		e.latest[symbol] = bySymbol
	}
	bySymbol[tf] = &a
	e.mu.Unlock()

	return a, true
}

// Latest returns the stored analysis for symbol and tf.
func (e *Engine) Latest(symbol string, tf model.Timeframe) (*Analysis, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.latest[symbol][tf]
	return a, ok
}

// Snapshot returns every stored analysis for symbol.
func (e *Engine) Snapshot(symbol string) map[model.Timeframe]*Analysis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[model.Timeframe]*Analysis, len(e.latest[symbol]))
	for tf, a := range e.latest[symbol] {
		out[tf] = a
	}
	return out
}

// Symbols lists symbols with at least one stored analysis, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.latest))
	for s := range e.latest {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TimeframeLevels is the nearest MA and band to a price on one timeframe.
type TimeframeLevels struct {
	ClosestMA model.ClosestLevel `json:"closestMA"`
	ClosestBB model.ClosestLevel `json:"closestBB"`
}

// LevelReport is the level view of a symbol at a price.
type LevelReport struct {
	Symbol     string                                     `json:"symbol"`
	Price      float64                                    `json:"price"`
	Timeframes map[model.Timeframe]TimeframeLevels        `json:"timeframes"`
	All        map[model.Timeframe]levels.TimeframeLevels `json:"all"`
}

// Levels measures price against the stored MAs and bands of every
// timeframe. A zero price uses the last close of the first timeframe that
// has one.
func (e *Engine) Levels(symbol string, price float64) LevelReport {
	snap := e.Snapshot(symbol)
	if price == 0 {
		for _, tf := range e.Timeframes() {
			if a, ok := snap[tf]; ok && a.LastClose != 0 {
				price = a.LastClose
				break
			}
		}
	}

	rep := LevelReport{
		Symbol:     symbol,
		Price:      price,
		Timeframes: make(map[model.Timeframe]TimeframeLevels, len(snap)),
	}
	in := make(map[model.Timeframe]levels.Input, len(snap))
	for tf, a := range snap {
		rep.Timeframes[tf] = TimeframeLevels{
			ClosestMA: levels.ClosestMA(price, a.MAs),
			ClosestBB: levels.ClosestBB(price, a.Bollinger),
		}
		in[tf] = levels.Input{MAs: a.MAs, Bands: a.Bollinger}
	}
	rep.All = levels.AllTechnicalLevels(in)
	return rep
}

// Alerts evaluates the alert rules against the stored analyses of symbol,
// sorted by severity.
func (e *Engine) Alerts(symbol string, fearGreed *int, now time.Time) []model.Alert {
	snap := e.Snapshot(symbol)
	in := alert.Input{
		Symbol:     symbol,
		Timeframes: e.Timeframes(),
		StochRSI:   make(map[model.Timeframe][]model.StochRSIPoint, len(snap)),
		MACD:       make(map[model.Timeframe][]model.MACDPoint, len(snap)),
		Crosses:    make(map[model.Timeframe]model.CrossResult, len(snap)),
		FearGreed:  fearGreed,
		Now:        now,
	}
	for tf, a := range snap {
		in.StochRSI[tf] = a.StochRSI
		in.MACD[tf] = a.MACD
		in.Crosses[tf] = a.Crosses
	}
	alerts := alert.Generate(in)
	alert.Sort(alerts)
	return alerts
}
