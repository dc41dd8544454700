// Package ringbuf holds candle buffers used between the stream readers and
// the analysis loop.
//
// Ring is a lock-free single-producer single-consumer queue of kline updates:
// the stream goroutine pushes, the analysis goroutine drains. Window is a
// bounded, time-ordered candle history that streamed updates are merged into.
package ringbuf

import (
	"sync/atomic"

	"marketdash/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a lock-free SPSC ring buffer of kline updates.
// Size is a power of two for bitwise modulo.
type Ring struct {
	buf  []model.KlineUpdate
	mask uint64

	_pad0 [cacheLine]byte
	head  atomic.Uint64 // producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // consumer
	_pad2 [cacheLine]byte

	dropped atomic.Uint64
}

// NewRing creates a ring. capacity is rounded up to the next power of two,
// minimum 2.
func NewRing(capacity int) *Ring {
	n := max(nextPow2(capacity), 2)
	return &Ring{
		buf:  make([]model.KlineUpdate, n),
		mask: uint64(n - 1),
	}
}

// Push appends an update. Returns false, without writing, when full.
func (r *Ring) Push(u model.KlineUpdate) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[head&r.mask] = u
	r.head.Store(head + 1)
	return true
}

// Pop removes the oldest update. Returns false when empty.
func (r *Ring) Pop() (model.KlineUpdate, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail >= head {
		return model.KlineUpdate{}, false
	}
	u := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return u, true
}

// Drain pops everything currently queued into dst and returns it.
func (r *Ring) Drain(dst []model.KlineUpdate) []model.KlineUpdate {
	for {
		u, ok := r.Pop()
		if !ok {
			return dst
		}
		dst = append(dst, u)
	}
}

// Len is the number of queued updates.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap is the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped counts pushes rejected because the ring was full.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
