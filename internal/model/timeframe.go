package model

import (
	"fmt"
	"strings"
)

// Timeframe is the dashboard's label for a candle period.
type Timeframe string

const (
	TF1H    Timeframe = "1h"
	TF4H    Timeframe = "4h"
	TFDaily Timeframe = "daily"
)

// DefaultTimeframes is the set analysed when none is configured.
var DefaultTimeframes = []Timeframe{TF1H, TF4H, TFDaily}

// Interval returns the provider kline interval for the timeframe.
func (tf Timeframe) Interval() string {
	if tf == TFDaily {
		return "1d"
	}
	return string(tf)
}

// Label is the upper-cased form used in alert messages ("1H", "DAILY").
func (tf Timeframe) Label() string {
	return strings.ToUpper(string(tf))
}

// ParseTimeframe accepts dashboard labels and provider intervals ("1d" → daily).
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1h":
		return TF1H, nil
	case "4h":
		return TF4H, nil
	case "daily", "1d", "d":
		return TFDaily, nil
	case "15m", "30m", "2h", "12h", "1w":
		return Timeframe(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}
