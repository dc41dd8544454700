package indicator

import (
	"math"
	"testing"

	"marketdash/internal/model"
)

// ────────────────────────────────────────────────────────────
// End-to-end: 250 hourly candles, linear ramp 100 → 150
// ────────────────────────────────────────────────────────────

func TestRamp_SMAAndMACD(t *testing.T) {
	candles := series(ramp(250, 100, 150)...)

	// Last 9 closes are indices 241..249, mean index 245.
	sma := SMA(candles, 9)
	last, ok := model.Last(sma)
	if !ok {
		t.Fatal("expected SMA(9) output")
	}
	assertClose(t, "SMA(9) last", last.Value, 100+50*245.0/249, 1e-9)

	// On a rising ramp both EMAs lag, the slow one more, so the MACD line
	// rises monotonically and stays above its own EMA.
	macd := MACD(candles, MACDParams{})
	if len(macd) != len(candles) {
		t.Fatalf("MACD len=%d, want %d", len(macd), len(candles))
	}
	for i := DefaultMACDSignal; i < len(macd); i++ {
		if macd[i].Histogram <= 0 {
			t.Fatalf("histogram[%d] = %v, want > 0 on rising ramp", i, macd[i].Histogram)
		}
		if macd[i].MACD <= macd[i-1].MACD {
			t.Fatalf("MACD line not rising at %d", i)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Totality: short inputs never panic or leak NaN
// ────────────────────────────────────────────────────────────

func TestShortInputs_NoNaN(t *testing.T) {
	for n := 0; n <= 40; n++ {
		candles := series(zigzag(n)...)

		for _, p := range SMA(candles, 9) {
			assertFinite(t, "SMA", p.Value)
		}
		for _, p := range EMA(candles, 21) {
			assertFinite(t, "EMA", p.Value)
		}
		for _, p := range RSI(candles, 14) {
			assertFinite(t, "RSI", p.RSI)
		}
		for _, p := range StochasticRSI(candles, StochRSIParams{}) {
			assertFinite(t, "StochRSI", p.StochRSI)
		}
		for _, p := range MACD(candles, MACDParams{}) {
			assertFinite(t, "MACD", p.Histogram)
		}
		for _, p := range BollingerBands(candles, 20, 2) {
			assertFinite(t, "BB", p.Upper)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Normalize
// ────────────────────────────────────────────────────────────

func TestNormalize_SortsDedupesAndDropsNonFinite(t *testing.T) {
	in := []model.Candle{
		{Time: 3, Close: 30},
		{Time: 1, Close: 10},
		{Time: 4, Close: math.NaN()},
		{Time: 2, Close: 20},
		{Time: 3, Close: 31},
		{Time: 5, Close: math.Inf(1)},
	}
	got := Normalize(in)

	want := []model.Candle{{Time: 1, Close: 10}, {Time: 2, Close: 20}, {Time: 3, Close: 31}}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if in[0].Time != 3 {
		t.Error("input slice was modified")
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}
