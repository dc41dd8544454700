package indicator

import "marketdash/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// The first average gain/loss is the simple mean of the first period deltas;
// after that avg = (avg*(period-1) + new) / period. A zero average loss is
// replaced by 0.0001, so an all-gain window gives a value just below 100.
// Output is aligned to candles[period:]; empty when len(candles) < period+1.
func RSI(candles []model.Candle, period int) []model.RSIPoint {
	if period <= 0 || len(candles) < period+1 {
		return []model.RSIPoint{}
	}

	p := float64(period)
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		gain, loss := delta(candles[i-1].Close, candles[i].Close)
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= p
	avgLoss /= p

	out := make([]model.RSIPoint, 0, len(candles)-period)
	out = append(out, rsiPoint(candles[period], avgGain, avgLoss))

	for i := period + 1; i < len(candles); i++ {
		gain, loss := delta(candles[i-1].Close, candles[i].Close)
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, rsiPoint(candles[i], avgGain, avgLoss))
	}
	return out
}

func delta(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiPoint(c model.Candle, avgGain, avgLoss float64) model.RSIPoint {
	if avgLoss == 0 {
		avgLoss = lossFloor
	}
	rs := avgGain / avgLoss
	return model.RSIPoint{
		Time:  c.Time,
		Close: c.Close,
		RSI:   100 - 100/(1+rs),
	}
}

// StochRSIParams configures StochasticRSI. Zero fields take the defaults
// (14, 14, 3, 3).
type StochRSIParams struct {
	RSIPeriod   int
	StochPeriod int
	KSmooth     int
	DSmooth     int
}

func (p StochRSIParams) withDefaults() StochRSIParams {
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = DefaultRSIPeriod
	}
	if p.StochPeriod <= 0 {
		p.StochPeriod = DefaultStochPeriod
	}
	if p.KSmooth <= 0 {
		p.KSmooth = DefaultKSmooth
	}
	if p.DSmooth <= 0 {
		p.DSmooth = DefaultDSmooth
	}
	return p
}

// MinCandles is the input length below which StochasticRSI returns nothing.
func (p StochRSIParams) MinCandles() int {
	p = p.withDefaults()
	return p.RSIPeriod + p.StochPeriod + max(p.KSmooth, p.DSmooth)
}

// StochasticRSI applies the stochastic oscillator to RSI values.
//
// raw = (rsi - min) / (max - min) * 100 over StochPeriod RSI values (0 when
// the window is flat), %K = SMA(raw, KSmooth), %D = SMA(%K, DSmooth).
// Empty when len(candles) < RSIPeriod + StochPeriod + max(KSmooth, DSmooth).
func StochasticRSI(candles []model.Candle, params StochRSIParams) []model.StochRSIPoint {
	p := params.withDefaults()
	if len(candles) < p.MinCandles() {
		return []model.StochRSIPoint{}
	}

	rsi := RSI(candles, p.RSIPeriod)
	if len(rsi) < p.StochPeriod {
		return []model.StochRSIPoint{}
	}

	vals := make([]float64, len(rsi))
	for i, r := range rsi {
		vals[i] = r.RSI
	}

	raw := make([]float64, 0, len(rsi)-p.StochPeriod+1)
	for i := p.StochPeriod - 1; i < len(rsi); i++ {
		lo, hi := windowMinMax(vals[i-p.StochPeriod+1 : i+1])
		v := 0.0
		if hi-lo != 0 {
			v = (vals[i] - lo) / (hi - lo) * 100
		}
		raw = append(raw, v)
	}

	k := rollingMean(raw, p.KSmooth)
	d := rollingMean(k, p.DSmooth)
	if len(d) == 0 {
		return []model.StochRSIPoint{}
	}

	// raw[j] ↔ rsi[j+StochPeriod-1]; k[j] ↔ raw[j+KSmooth-1]; d[j] ↔ k[j+DSmooth-1].
	kOff := p.DSmooth - 1
	rawOff := kOff + p.KSmooth - 1
	rsiOff := rawOff + p.StochPeriod - 1

	out := make([]model.StochRSIPoint, len(d))
	for j := range d {
		out[j] = model.StochRSIPoint{
			RSIPoint:    rsi[j+rsiOff],
			RawStochRSI: raw[j+rawOff],
			StochRSI:    k[j+kOff],
			StochRSID:   d[j],
		}
	}
	return out
}

// rollingMean is the trailing simple mean of vals over window; empty when
// there are fewer than window values.
func rollingMean(vals []float64, window int) []float64 {
	if window <= 0 || len(vals) < window {
		return nil
	}
	out := make([]float64, 0, len(vals)-window+1)
	for i := window - 1; i < len(vals); i++ {
		sum := 0.0
		for _, v := range vals[i-window+1 : i+1] {
			sum += v
		}
		out = append(out, sum/float64(window))
	}
	return out
}
