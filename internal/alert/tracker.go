package alert

import (
	"sync"
	"time"

	"marketdash/internal/model"
)

// Tracker remembers alert keys so an alert that stays true across refresh
// cycles is only delivered once per TTL.
type Tracker struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

// NewTracker creates a tracker. A non-positive ttl remembers keys forever.
func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{ttl: ttl, seen: make(map[string]time.Time)}
}

// Fresh returns the alerts whose key has not been seen within the TTL and
// marks them seen at now.
func (t *Tracker) Fresh(alerts []model.Alert, now time.Time) []model.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expire(now)

	var out []model.Alert
	for _, a := range alerts {
		k := a.Key()
		if _, ok := t.seen[k]; ok {
			continue
		}
		t.seen[k] = now
		out = append(out, a)
	}
	return out
}

// Len returns the number of remembered keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

func (t *Tracker) expire(now time.Time) {
	if t.ttl <= 0 {
		return
	}
	for k, at := range t.seen {
		if now.Sub(at) > t.ttl {
			delete(t.seen, k)
		}
	}
}
