package indicator

import (
	"math"
	"testing"

	"marketdash/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

const hourMs = int64(3_600_000)

// series builds hourly candles from close prices, starting at t0.
func series(closes ...float64) []model.Candle {
	const t0 = int64(1_700_000_000_000)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Time:  t0 + int64(i)*hourMs,
			Open:  c,
			High:  c + 0.5,
			Low:   c - 0.5,
			Close: c,
		}
	}
	return out
}

// ramp returns n closes moving linearly from start to end inclusive.
func ramp(n int, start, end float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + (end-start)*float64(i)/float64(n-1)
	}
	return out
}

// zigzag produces a deterministic non-monotonic price path.
func zigzag(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/3) + 3*math.Cos(float64(i)/1.7) + float64(i%5)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f (tol=%g, diff=%g)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertFinite(t *testing.T, label string, v float64) {
	t.Helper()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("%s: non-finite value %v", label, v)
	}
}
