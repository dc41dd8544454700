// Package notification delivers dashboard alerts to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"marketdash/internal/model"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert model.Alert) error
}

// Title is the one-line headline used by every backend.
func Title(a model.Alert) string {
	parts := []string{strings.ToUpper(string(a.Severity)), a.Symbol}
	if a.Timeframe != "" {
		parts = append(parts, a.Timeframe.Label())
	}
	return fmt.Sprintf("[%s] %s %s", parts[0], strings.Join(parts[1:], " "), typeLabel(a.Type))
}

func typeLabel(t model.AlertType) string {
	switch t {
	case model.AlertCross:
		return "MA cross"
	case model.AlertStochRSI:
		return "StochRSI"
	case model.AlertMACD:
		return "MACD"
	case model.AlertFearGreed:
		return "Fear & Greed"
	}
	return string(t)
}

// LogNotifier logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, alert model.Alert) error {
	slog.Info("[notify] "+Title(alert), "message", alert.Message, "id", alert.ID)
	return nil
}

// Multi sends every alert to each backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert model.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SeverityFilter drops alerts ranked below Min.
type SeverityFilter struct {
	Next Notifier
	Min  model.Severity
}

// WithMinSeverity wraps n so only alerts at or above min are delivered.
func WithMinSeverity(n Notifier, min model.Severity) Notifier {
	return &SeverityFilter{Next: n, Min: min}
}

func (f *SeverityFilter) Send(ctx context.Context, alert model.Alert) error {
	if alert.Severity.Rank() < f.Min.Rank() {
		return nil
	}
	return f.Next.Send(ctx, alert)
}

// SendAll delivers each alert, logging failures, and returns the number
// delivered without error.
func SendAll(ctx context.Context, n Notifier, alerts []model.Alert) int {
	sent := 0
	for _, a := range alerts {
		if err := n.Send(ctx, a); err != nil {
			slog.Warn("[notify] delivery failed", "id", a.ID, "symbol", a.Symbol, "err", err)
			continue
		}
		sent++
	}
	return sent
}
