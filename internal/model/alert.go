package model

import (
	"encoding/json"
	"strconv"
)

// AlertType is the rule family that produced an alert.
type AlertType string

const (
	AlertCross     AlertType = "cross"
	AlertStochRSI  AlertType = "stochRSI"
	AlertMACD      AlertType = "macd"
	AlertFearGreed AlertType = "fearGreed"
)

// Severity ranks alerts for display and notification filtering.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities: low=1, medium=2, high=3, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// ParseSeverity maps a string to a Severity, defaulting to low.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityMedium, SeverityHigh:
		return Severity(s)
	}
	return SeverityLow
}

// Alert conditions.
const (
	ConditionOverbought   = "overbought"
	ConditionOversold     = "oversold"
	ConditionExtremeFear  = "extreme_fear"
	ConditionExtremeGreed = "extreme_greed"
)

// Alert is a threshold-triggered notification record. Optional fields are
// omitted from JSON when they do not apply to the alert type.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe,omitempty"`
	Message   string    `json:"message"`
	Timestamp *int64    `json:"timestamp,omitempty"`
	Condition string    `json:"condition,omitempty"`
	CrossType CrossType `json:"crossType,omitempty"`
	DaysAgo   *int      `json:"daysAgo,omitempty"`
	DaysUntil *int      `json:"daysUntil,omitempty"`
	Value     *float64  `json:"value,omitempty"`
}

// Key identifies the condition an alert describes, independent of its ID,
// so the same alert raised on consecutive refreshes can be recognised.
func (a *Alert) Key() string {
	k := a.Symbol + "|" + string(a.Type) + "|" + string(a.Timeframe) + "|"
	if a.CrossType != "" {
		k += string(a.CrossType)
	} else {
		k += a.Condition
	}
	switch {
	case a.DaysUntil != nil:
		// Estimated times drift between refreshes.
		k += "|next"
	case a.Timestamp != nil:
		k += "|" + strconv.FormatInt(*a.Timestamp, 10)
	}
	return k
}

// JSON returns the JSON-encoded alert.
func (a *Alert) JSON() []byte {
	b, _ := json.Marshal(a)
	return b
}
