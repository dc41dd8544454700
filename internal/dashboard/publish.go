package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"marketdash/internal/metrics"
	"marketdash/internal/model"
)

// fanout publishes to every target, logging and counting failures. One
// failing target never blocks the others.
type fanout struct {
	targets []model.Publisher
	metrics *metrics.Metrics
}

func (f *fanout) each(kind string, fn func(model.Publisher) error) error {
	var errs []error
	for _, p := range f.targets {
		if err := fn(p); err != nil {
			errs = append(errs, err)
			if f.metrics != nil {
				f.metrics.PublishErrors.WithLabelValues(kind).Inc()
			}
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		slog.Warn("[dashboard] publish failed", "channel", kind, "err", err)
	}
	return err
}

func (f *fanout) PublishAnalysis(ctx context.Context, symbol string, tf model.Timeframe, payload []byte) error {
	return f.each("analysis", func(p model.Publisher) error { return p.PublishAnalysis(ctx, symbol, tf, payload) })
}

func (f *fanout) PublishAlerts(ctx context.Context, symbol string, alerts []model.Alert) error {
	return f.each("alerts", func(p model.Publisher) error { return p.PublishAlerts(ctx, symbol, alerts) })
}

func (f *fanout) PublishFearGreed(ctx context.Context, value int) error {
	return f.each("feargreed", func(p model.Publisher) error { return p.PublishFearGreed(ctx, value) })
}

func (f *fanout) PublishTicker(ctx context.Context, symbol string, payload []byte) error {
	return f.each("ticker", func(p model.Publisher) error { return p.PublishTicker(ctx, symbol, payload) })
}

func (f *fanout) Close() error {
	var errs []error
	for _, p := range f.targets {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
