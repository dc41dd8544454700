package ringbuf

import (
	"sort"
	"sync"

	"marketdash/internal/model"
)

// Window keeps the most recent candles of one symbol/timeframe, ordered by
// time with at most one candle per timestamp. Safe for concurrent use.
type Window struct {
	mu      sync.RWMutex
	limit   int
	candles []model.Candle
}

// NewWindow creates a window holding at most limit candles.
func NewWindow(limit int) *Window {
	return &Window{limit: max(limit, 1)}
}

// Reset replaces the contents with candles, which must already be ordered
// and deduplicated. Only the newest limit candles are kept.
func (w *Window) Reset(candles []model.Candle) {
	if len(candles) > w.limit {
		candles = candles[len(candles)-w.limit:]
	}
	cp := make([]model.Candle, len(candles))
	copy(cp, candles)

	w.mu.Lock()
	w.candles = cp
	w.mu.Unlock()
}

// Upsert merges c into the window. A candle with an existing timestamp
// replaces it; a newer one is appended, evicting the oldest when full; an
// older one is inserted in order if it still falls inside the window.
// Reports whether the window changed.
func (w *Window) Upsert(c model.Candle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.candles)
	switch {
	case n == 0 || c.Time > w.candles[n-1].Time:
		w.candles = append(w.candles, c)
		if len(w.candles) > w.limit {
			w.candles = w.candles[len(w.candles)-w.limit:]
		}
		return true
	case c.Time == w.candles[n-1].Time:
		if w.candles[n-1] == c {
			return false
		}
		w.candles[n-1] = c
		return true
	}

	i := sort.Search(n, func(i int) bool { return w.candles[i].Time >= c.Time })
	if w.candles[i].Time == c.Time {
		if w.candles[i] == c {
			return false
		}
		w.candles[i] = c
		return true
	}
	if n >= w.limit && i == 0 {
		return false
	}
	w.candles = append(w.candles, model.Candle{})
	copy(w.candles[i+1:], w.candles[i:])
	w.candles[i] = c
	if len(w.candles) > w.limit {
		w.candles = w.candles[1:]
	}
	return true
}

// Snapshot returns a copy of the candles, oldest first.
func (w *Window) Snapshot() []model.Candle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.Candle, len(w.candles))
	copy(out, w.candles)
	return out
}

// Last returns the newest candle.
func (w *Window) Last() (model.Candle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.candles) == 0 {
		return model.Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

// Len is the number of candles held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.candles)
}
