package ringbuf

import (
	"testing"

	"marketdash/internal/model"
)

func candles(times ...int64) []model.Candle {
	out := make([]model.Candle, len(times))
	for i, t := range times {
		out[i] = model.Candle{Time: t, Close: float64(t)}
	}
	return out
}

func timesOf(cs []model.Candle) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.Time
	}
	return out
}

func equalTimes(t *testing.T, got []model.Candle, want ...int64) {
	t.Helper()
	g := timesOf(got)
	if len(g) != len(want) {
		t.Fatalf("times=%v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("times=%v, want %v", g, want)
		}
	}
}

func TestWindow_ResetKeepsNewest(t *testing.T) {
	w := NewWindow(3)
	w.Reset(candles(1, 2, 3, 4, 5))
	equalTimes(t, w.Snapshot(), 3, 4, 5)
}

func TestWindow_UpsertAppendsAndEvicts(t *testing.T) {
	w := NewWindow(3)
	w.Reset(candles(1, 2, 3))

	if !w.Upsert(model.Candle{Time: 4, Close: 4}) {
		t.Fatal("append should change the window")
	}
	equalTimes(t, w.Snapshot(), 2, 3, 4)
}

func TestWindow_UpsertReplacesForming(t *testing.T) {
	w := NewWindow(5)
	w.Reset(candles(1, 2, 3))

	if !w.Upsert(model.Candle{Time: 3, Close: 99}) {
		t.Fatal("replacing the last candle should report a change")
	}
	last, _ := w.Last()
	if last.Close != 99 {
		t.Fatalf("last close=%v, want 99", last.Close)
	}
	if w.Upsert(model.Candle{Time: 3, Close: 99}) {
		t.Fatal("identical update should not report a change")
	}
	if w.Len() != 3 {
		t.Fatalf("len=%d, want 3", w.Len())
	}
}

func TestWindow_UpsertOutOfOrder(t *testing.T) {
	w := NewWindow(4)
	w.Reset(candles(10, 30, 40))

	if !w.Upsert(model.Candle{Time: 20}) {
		t.Fatal("gap fill should change the window")
	}
	equalTimes(t, w.Snapshot(), 10, 20, 30, 40)

	// Full window: older than everything held is ignored.
	if w.Upsert(model.Candle{Time: 5}) {
		t.Fatal("candle older than a full window should be ignored")
	}

	if !w.Upsert(model.Candle{Time: 25}) {
		t.Fatal("insert inside a full window should change it")
	}
	equalTimes(t, w.Snapshot(), 20, 25, 30, 40)
}

func TestWindow_SnapshotIsCopy(t *testing.T) {
	w := NewWindow(3)
	w.Reset(candles(1, 2))
	snap := w.Snapshot()
	snap[0].Close = -1

	if again := w.Snapshot(); again[0].Close == -1 {
		t.Fatal("snapshot shares memory with the window")
	}
}
