package analysis

import (
	"fmt"

	"marketdash/internal/indicator"
	"marketdash/internal/model"
)

// Params are the indicator settings applied to one timeframe.
type Params struct {
	MAPeriods  []int                    `json:"maPeriods"`
	CrossShort int                      `json:"crossShort"`
	CrossLong  int                      `json:"crossLong"`
	RSIPeriod  int                      `json:"rsiPeriod"`
	StochRSI   indicator.StochRSIParams `json:"stochRSI"`
	MACD       indicator.MACDParams     `json:"macd"`
	BBPeriod   int                      `json:"bbPeriod"`
	BBStdDev   float64                  `json:"bbStdDev"`
}

// DefaultParams returns the dashboard defaults: MA 9/21/55/100/200 with the
// MA55/MA200 cross, RSI 14, StochRSI 14/14/3/3, MACD 12/26/9, BB 20/2.
func DefaultParams() Params {
	return Params{
		MAPeriods:  append([]int(nil), indicator.DefaultMAPeriods...),
		CrossShort: 55,
		CrossLong:  200,
		RSIPeriod:  indicator.DefaultRSIPeriod,
		StochRSI: indicator.StochRSIParams{
			RSIPeriod:   indicator.DefaultRSIPeriod,
			StochPeriod: indicator.DefaultStochPeriod,
			KSmooth:     indicator.DefaultKSmooth,
			DSmooth:     indicator.DefaultDSmooth,
		},
		MACD: indicator.MACDParams{
			Fast:   indicator.DefaultMACDFast,
			Slow:   indicator.DefaultMACDSlow,
			Signal: indicator.DefaultMACDSignal,
		},
		BBPeriod: indicator.DefaultBBPeriod,
		BBStdDev: indicator.DefaultBBStdDev,
	}
}

// TimeframeConfig binds a timeframe to its indicator parameters.
type TimeframeConfig struct {
	Timeframe model.Timeframe
	Params    Params
}

// DefaultConfigs is 1h, 4h and daily with DefaultParams.
func DefaultConfigs() []TimeframeConfig {
	out := make([]TimeframeConfig, len(model.DefaultTimeframes))
	for i, tf := range model.DefaultTimeframes {
		out[i] = TimeframeConfig{Timeframe: tf, Params: DefaultParams()}
	}
	return out
}

// Validate checks the parameters for values the indicators cannot use.
func (p Params) Validate() error {
	seen := make(map[int]bool, len(p.MAPeriods))
	for _, period := range p.MAPeriods {
		if period <= 0 {
			return fmt.Errorf("invalid MA period=%d: must be positive", period)
		}
		if seen[period] {
			return fmt.Errorf("duplicate MA period=%d", period)
		}
		seen[period] = true
	}
	if p.CrossShort <= 0 || p.CrossLong <= 0 {
		return fmt.Errorf("invalid cross periods %d/%d: must be positive", p.CrossShort, p.CrossLong)
	}
	if p.CrossShort >= p.CrossLong {
		return fmt.Errorf("cross short period %d must be below long period %d", p.CrossShort, p.CrossLong)
	}
	if p.RSIPeriod <= 0 {
		return fmt.Errorf("invalid RSI period=%d", p.RSIPeriod)
	}
	s := p.StochRSI
	if s.RSIPeriod < 0 || s.StochPeriod < 0 || s.KSmooth < 0 || s.DSmooth < 0 {
		return fmt.Errorf("invalid StochRSI params %+v", s)
	}
	m := p.MACD
	if m.Fast < 0 || m.Slow < 0 || m.Signal < 0 {
		return fmt.Errorf("invalid MACD params %+v", m)
	}
	if m.Fast > 0 && m.Slow > 0 && m.Fast >= m.Slow {
		return fmt.Errorf("MACD fast period %d must be below slow period %d", m.Fast, m.Slow)
	}
	if p.BBPeriod <= 0 {
		return fmt.Errorf("invalid Bollinger period=%d", p.BBPeriod)
	}
	if p.BBStdDev <= 0 {
		return fmt.Errorf("invalid Bollinger multiplier=%g", p.BBStdDev)
	}
	return nil
}

// ValidateConfigs checks a set of timeframe configs for errors.
func ValidateConfigs(configs []TimeframeConfig) error {
	if len(configs) == 0 {
		return fmt.Errorf("no timeframes configured")
	}
	seen := make(map[model.Timeframe]bool, len(configs))
	for _, cfg := range configs {
		if cfg.Timeframe == "" {
			return fmt.Errorf("empty timeframe")
		}
		if seen[cfg.Timeframe] {
			return fmt.Errorf("duplicate timeframe %s", cfg.Timeframe)
		}
		seen[cfg.Timeframe] = true
		if err := cfg.Params.Validate(); err != nil {
			return fmt.Errorf("timeframe %s: %w", cfg.Timeframe, err)
		}
	}
	return nil
}
