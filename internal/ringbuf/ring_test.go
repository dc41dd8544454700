package ringbuf

import (
	"sync"
	"testing"
	"time"

	"marketdash/internal/model"
)

func update(sym string, t int64) model.KlineUpdate {
	return model.KlineUpdate{Symbol: sym, Timeframe: model.TF1H, Candle: model.Candle{Time: t}}
}

func TestRing_BasicPushPop(t *testing.T) {
	r := NewRing(4)

	if !r.Push(update("A", 1)) || !r.Push(update("B", 2)) {
		t.Fatal("push should succeed")
	}
	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "A" {
		t.Fatalf("expected A, got %v ok=%v", got.Symbol, ok)
	}
	got, ok = r.Pop()
	if !ok || got.Symbol != "B" {
		t.Fatalf("expected B, got %v ok=%v", got.Symbol, ok)
	}
	if _, ok = r.Pop(); ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Dropped(t *testing.T) {
	r := NewRing(2)
	r.Push(update("1", 1))
	r.Push(update("2", 2))

	if r.Push(update("3", 3)) {
		t.Fatal("push to full buffer should return false")
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected dropped=1, got %d", r.Dropped())
	}
}

func TestRing_Drain(t *testing.T) {
	r := NewRing(8)
	for i := int64(0); i < 5; i++ {
		r.Push(update("X", i))
	}
	got := r.Drain(nil)
	if len(got) != 5 || got[4].Candle.Time != 4 {
		t.Fatalf("unexpected drain result: %+v", got)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty ring after drain, len=%d", r.Len())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := NewRing(4)
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(update("X", int64(round*10+i))) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			u, ok := r.Pop()
			if !ok || u.Candle.Time != int64(round*10+i) {
				t.Fatalf("round %d pop %d: got %d ok=%v", round, i, u.Candle.Time, ok)
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := NewRing(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(update("X", int64(i))) {
			}
		}
	}()

	received := make([]int64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			if u, ok := r.Pop(); ok {
				received = append(received, u.Candle.Time)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		if v != int64(i) {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		if got := nextPow2(tc.in); got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
