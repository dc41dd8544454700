package model

import "context"

// ── Collaborator Port Interfaces ──
// These interfaces decouple the dashboard service from concrete providers
// and stores (Binance, Redis, SQLite). The engine packages never see them.

// CandleSource fetches historical candles for a symbol and provider interval.
type CandleSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// PairLister lists tradeable pairs.
type PairLister interface {
	TradingPairs(ctx context.Context) ([]string, error)
}

// AlertJournal keeps a history of raised alerts.
type AlertJournal interface {
	// Record stores alerts, skipping ones already journaled (by Key).
	// Returns the number of newly stored alerts.
	Record(ctx context.Context, alerts []Alert) (int, error)

	// Recent returns the newest alerts for a symbol, newest first.
	Recent(ctx context.Context, symbol string, limit int) ([]Alert, error)

	// Close releases underlying resources.
	Close() error
}

// Publisher fans analysis output out to other processes.
// Payloads are raw JSON so model does not depend on the analysis package.
type Publisher interface {
	PublishAnalysis(ctx context.Context, symbol string, tf Timeframe, payload []byte) error
	PublishAlerts(ctx context.Context, symbol string, alerts []Alert) error
	PublishFearGreed(ctx context.Context, value int) error
	PublishTicker(ctx context.Context, symbol string, payload []byte) error
	Close() error
}
