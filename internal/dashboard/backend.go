package dashboard

import (
	"context"
	"fmt"
	"strings"

	"marketdash/internal/analysis"
	"marketdash/internal/feed/feargreed"
	"marketdash/internal/gateway"
	"marketdash/internal/model"
)

var _ gateway.Backend = (*Service)(nil)

// Analysis returns the stored analyses of symbol by timeframe.
func (s *Service) Analysis(symbol string) map[model.Timeframe]*analysis.Analysis {
	return s.engine.Snapshot(strings.ToUpper(symbol))
}

// Levels measures price against the stored levels. A zero price falls back
// to the last streamed price, then to the last close.
func (s *Service) Levels(symbol string, price float64) analysis.LevelReport {
	symbol = strings.ToUpper(symbol)
	if price == 0 {
		if t, ok := s.Price(symbol); ok {
			price = t.Price
		}
	}
	return s.engine.Levels(symbol, price)
}

// Alerts returns the current alert list of symbol.
func (s *Service) Alerts(symbol string) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts[strings.ToUpper(symbol)]
}

// AlertHistory reads journaled alerts, newest first.
func (s *Service) AlertHistory(ctx context.Context, symbol string, limit int) ([]model.Alert, error) {
	if s.deps.Journal == nil {
		return nil, gateway.ErrNoHistory
	}
	return s.deps.Journal.Recent(ctx, strings.ToUpper(symbol), limit)
}

// Performance returns the last hours hourly candles of symbol, most recent
// first. Reports false when no hourly history is held.
func (s *Service) Performance(symbol string, hours int) ([]analysis.HourPerformance, bool) {
	w, ok := s.windows[windowKey(strings.ToUpper(symbol), model.TF1H)]
	if !ok || w.Len() == 0 {
		return nil, false
	}
	return analysis.HourlyPerformance(w.Snapshot(), hours, s.opts.Location), true
}

// Pairs lists tradeable pairs, or the configured symbols without a lister.
func (s *Service) Pairs(ctx context.Context) ([]string, error) {
	if s.deps.Pairs == nil {
		return append([]string(nil), s.opts.Symbols...), nil
	}
	pairs, err := s.deps.Pairs.TradingPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	return pairs, nil
}

// FearGreed returns the last sentiment reading, or nil.
func (s *Service) FearGreed() *feargreed.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fearGreed
}
