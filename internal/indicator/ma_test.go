package indicator

import (
	"testing"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA(3): 102, 103, 104
	got := SMA(series(100, 102, 104, 103, 105), 3)
	want := []float64{102, 103, 104}

	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i, w := range want {
		assertClose(t, "SMA(3)", got[i].Value, w, 1e-9)
	}
}

func TestSMA_AlignedToWindowEnd(t *testing.T) {
	candles := series(1, 2, 3, 4, 5, 6)
	got := SMA(candles, 4)
	for i, p := range got {
		if p.Time != candles[i+3].Time {
			t.Errorf("point %d: time=%d, want %d", i, p.Time, candles[i+3].Time)
		}
	}
}

func TestSMA_MatchesNaiveReference(t *testing.T) {
	candles := series(zigzag(300)...)
	for _, period := range []int{1, 2, 9, 21, 55, 200, 300} {
		got := SMA(candles, period)
		if len(got) != len(candles)-period+1 {
			t.Fatalf("period %d: len=%d, want %d", period, len(got), len(candles)-period+1)
		}
		for i := period - 1; i < len(candles); i++ {
			sum := 0.0
			for _, c := range candles[i-period+1 : i+1] {
				sum += c.Close
			}
			assertClose(t, "naive SMA", got[i-period+1].Value, sum/float64(period), 1e-9)
		}
	}
}

func TestSMA_MixedMagnitudeWindowsAreIndependent(t *testing.T) {
	// A huge close must not leak into windows it has left.
	got := SMA(series(1e17, 1, 1, 1), 2)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	assertClose(t, "SMA window [1e17,1]", got[0].Value, 5e16, 1)
	assertClose(t, "SMA window [1,1]", got[1].Value, 1, 1e-12)
	assertClose(t, "SMA window [1,1]", got[2].Value, 1, 1e-12)

	bands := BollingerBands(series(1e17, 1, 1, 1), 2, 2)
	if len(bands) != 3 {
		t.Fatalf("expected 3 bands, got %d", len(bands))
	}
	assertClose(t, "BB middle", bands[2].Middle, 1, 1e-12)
	assertClose(t, "BB upper", bands[2].Upper, 1, 1e-12)
	assertClose(t, "BB lower", bands[2].Lower, 1, 1e-12)
}

func TestSMA_InsufficientData(t *testing.T) {
	for _, n := range []int{0, 1, 8} {
		got := SMA(series(zigzag(n)...), 9)
		if got == nil || len(got) != 0 {
			t.Errorf("n=%d: expected empty non-nil slice, got %v", n, got)
		}
	}
	if got := SMA(series(1, 2, 3), 0); len(got) != 0 {
		t.Errorf("period 0: expected empty, got %d points", len(got))
	}
}

func TestSMA_LastValueMatchesReferenceLibrary(t *testing.T) {
	closes := zigzag(120)
	candles := series(closes...)

	for _, period := range []int{9, 21, 55} {
		ref := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](period).Compute(helper.SliceToChan(closes)))
		if len(ref) == 0 {
			t.Fatalf("reference SMA(%d) produced no output", period)
		}
		got := SMA(candles, period)
		assertClose(t, "SMA vs reference", got[len(got)-1].Value, ref[len(ref)-1], 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_SeededWithFirstClose(t *testing.T) {
	candles := series(44, 44.25, 44.5, 43.75, 44.5, 44.25, 44)
	got := EMA(candles, 5)

	if len(got) != len(candles) {
		t.Fatalf("expected one point per candle (%d), got %d", len(candles), len(got))
	}
	if got[0].Value != candles[0].Close {
		t.Errorf("first EMA value = %v, want first close %v exactly", got[0].Value, candles[0].Close)
	}
	if got[0].Time != candles[0].Time {
		t.Errorf("first EMA time = %d, want %d", got[0].Time, candles[0].Time)
	}
}

func TestEMA_Correctness_Period3(t *testing.T) {
	// α = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103
	// EMA: 100, 101, 102.5, 102.75
	got := EMA(series(100, 102, 104, 103), 3)
	want := []float64{100, 101, 102.5, 102.75}
	for i, w := range want {
		assertClose(t, "EMA(3)", got[i].Value, w, 1e-12)
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	if got := EMA(series(1, 2, 3, 4), 5); len(got) != 0 {
		t.Errorf("expected empty EMA, got %d points", len(got))
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	got := EMA(series(50, 50, 50, 50, 50, 50), 3)
	for _, p := range got {
		assertClose(t, "constant EMA", p.Value, 50, 0)
	}
}

// ────────────────────────────────────────────────────────────
// AllMAs
// ────────────────────────────────────────────────────────────

func TestAllMAs_SkipsPeriodsWithoutData(t *testing.T) {
	candles := series(zigzag(60)...)
	mas := AllMAs(candles, nil)

	for _, p := range []int{9, 21, 55} {
		if _, ok := mas[p]; !ok {
			t.Errorf("expected MA%d to be present", p)
		}
	}
	for _, p := range []int{100, 200} {
		if _, ok := mas[p]; ok {
			t.Errorf("expected MA%d to be absent with 60 candles", p)
		}
	}
	if len(mas[55]) != 6 {
		t.Errorf("MA55 len=%d, want 6", len(mas[55]))
	}
}
