// Package alert turns indicator snapshots into threshold alerts.
//
// Generate is deterministic apart from alert IDs: the reference time is
// passed in rather than read from the clock.
package alert

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"marketdash/internal/model"
)

// Thresholds used by the alert rules.
const (
	MaxCrossDays      = 5.0
	StochOverbought   = 80.0
	StochOversold     = 20.0
	MACDLookback      = 10
	MACDBandFraction  = 0.1
	ExtremeFearLevel  = 20
	ExtremeGreedLevel = 85
	dayMs             = float64(24 * time.Hour / time.Millisecond)
)

// Input is everything the alert rules look at. Maps are keyed by
// timeframe; missing entries simply produce no alerts for that rule.
type Input struct {
	Symbol     string
	Timeframes []model.Timeframe // nil → model.DefaultTimeframes
	StochRSI   map[model.Timeframe][]model.StochRSIPoint
	MACD       map[model.Timeframe][]model.MACDPoint
	Crosses    map[model.Timeframe]model.CrossResult
	FearGreed  *int
	Now        time.Time
}

// InAlertRange reports whether crossTime (ms) is within maxDays of now, in
// either direction. A zero time is never in range.
func InAlertRange(crossTime int64, now time.Time, maxDays float64) bool {
	if crossTime == 0 {
		return false
	}
	diff := math.Abs(float64(now.UnixMilli()-crossTime)) / dayMs
	return diff <= maxDays
}

// Generate evaluates the cross, StochRSI and MACD rules for every timeframe
// and the sentiment rule once. Alerts come out in rule order per timeframe.
func Generate(in Input) []model.Alert {
	tfs := in.Timeframes
	if tfs == nil {
		tfs = model.DefaultTimeframes
	}

	var out []model.Alert
	for _, tf := range tfs {
		if cr, ok := in.Crosses[tf]; ok {
			out = append(out, crossAlerts(in.Symbol, tf, cr, in.Now)...)
		}
		if a, ok := stochAlert(in.Symbol, tf, in.StochRSI[tf]); ok {
			out = append(out, a)
		}
		if a, ok := macdAlert(in.Symbol, tf, in.MACD[tf]); ok {
			out = append(out, a)
		}
	}
	if in.FearGreed != nil {
		if a, ok := fearGreedAlert(in.Symbol, *in.FearGreed); ok {
			out = append(out, a)
		}
	}
	return out
}

func crossAlerts(symbol string, tf model.Timeframe, cr model.CrossResult, now time.Time) []model.Alert {
	var out []model.Alert

	for _, ev := range []*model.CrossEvent{cr.LastGoldenCross, cr.LastDeathCross} {
		if ev == nil || !InAlertRange(ev.Time, now, MaxCrossDays) {
			continue
		}
		daysAgo := roundHalfUp(float64(now.UnixMilli()-ev.Time) / dayMs)
		when := strconv.Itoa(daysAgo) + " days ago"
		if daysAgo == 0 {
			when = "today"
		}
		ts := ev.Time
		out = append(out, model.Alert{
			ID:        uuid.NewString(),
			Type:      model.AlertCross,
			Severity:  model.SeverityHigh,
			Symbol:    symbol,
			Timeframe: tf,
			Message:   ev.Type.Title() + " Cross " + when + " (" + tf.Label() + ")",
			Timestamp: &ts,
			CrossType: ev.Type,
			DaysAgo:   &daysAgo,
		})
	}

	if est := cr.NextCrossEstimate; est != nil && est.DaysUntil <= MaxCrossDays {
		daysUntil := roundHalfUp(est.DaysUntil)
		ts := est.EstimatedTime
		out = append(out, model.Alert{
			ID:        uuid.NewString(),
			Type:      model.AlertCross,
			Severity:  model.SeverityMedium,
			Symbol:    symbol,
			Timeframe: tf,
			Message:   est.Type.Title() + " Cross in " + strconv.Itoa(daysUntil) + " days (" + tf.Label() + ")",
			Timestamp: &ts,
			CrossType: est.Type,
			DaysUntil: &daysUntil,
		})
	}
	return out
}

func stochAlert(symbol string, tf model.Timeframe, series []model.StochRSIPoint) (model.Alert, bool) {
	if len(series) == 0 {
		return model.Alert{}, false
	}
	k := series[len(series)-1].StochRSI

	var cond, label string
	switch {
	case k >= StochOverbought:
		cond, label = model.ConditionOverbought, "Overbought"
	case k <= StochOversold:
		cond, label = model.ConditionOversold, "Oversold"
	default:
		return model.Alert{}, false
	}
	return model.Alert{
		ID:        uuid.NewString(),
		Type:      model.AlertStochRSI,
		Severity:  model.SeverityMedium,
		Symbol:    symbol,
		Timeframe: tf,
		Message:   "StochRSI " + label + " (" + strconv.FormatFloat(k, 'f', 1, 64) + ") - " + tf.Label(),
		Condition: cond,
		Value:     &k,
	}, true
}

// macdAlert places the latest histogram within the range of the last
// MACDLookback values. Top tenth is overbought, bottom tenth oversold.
func macdAlert(symbol string, tf model.Timeframe, series []model.MACDPoint) (model.Alert, bool) {
	if len(series) == 0 {
		return model.Alert{}, false
	}
	recent := series[max(0, len(series)-MACDLookback):]
	hist := recent[len(recent)-1].Histogram

	lo, hi := recent[0].Histogram, recent[0].Histogram
	for _, p := range recent[1:] {
		lo = math.Min(lo, p.Histogram)
		hi = math.Max(hi, p.Histogram)
	}
	rng := hi - lo
	if rng <= 0 {
		return model.Alert{}, false
	}

	var cond string
	switch {
	case hist >= hi-rng*MACDBandFraction:
		cond = model.ConditionOverbought
	case hist <= lo+rng*MACDBandFraction:
		cond = model.ConditionOversold
	default:
		return model.Alert{}, false
	}
	return model.Alert{
		ID:        uuid.NewString(),
		Type:      model.AlertMACD,
		Severity:  model.SeverityLow,
		Symbol:    symbol,
		Timeframe: tf,
		Message:   "MACD potentially " + cond + " - " + tf.Label(),
		Condition: cond,
		Value:     &hist,
	}, true
}

func fearGreedAlert(symbol string, value int) (model.Alert, bool) {
	var cond, label string
	switch {
	case value <= ExtremeFearLevel:
		cond, label = model.ConditionExtremeFear, "Extreme Fear"
	case value >= ExtremeGreedLevel:
		cond, label = model.ConditionExtremeGreed, "Extreme Greed"
	default:
		return model.Alert{}, false
	}
	v := float64(value)
	return model.Alert{
		ID:        uuid.NewString(),
		Type:      model.AlertFearGreed,
		Severity:  model.SeverityHigh,
		Symbol:    symbol,
		Message:   label + " - Fear & Greed Index: " + strconv.Itoa(value),
		Condition: cond,
		Value:     &v,
	}, true
}

// Sort orders alerts from high to low severity, keeping generation order
// within a severity.
func Sort(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
	})
}

// FilterMinSeverity returns the alerts at or above floor.
func FilterMinSeverity(alerts []model.Alert, floor model.Severity) []model.Alert {
	out := make([]model.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Severity.Rank() >= floor.Rank() {
			out = append(out, a)
		}
	}
	return out
}

// roundHalfUp rounds .5 toward +Inf.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
