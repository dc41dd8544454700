// Package gateway serves the dashboard: REST snapshots over gin and a
// websocket hub that pushes analyses, alerts, prices and sentiment.
package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"marketdash/internal/metrics"
	"marketdash/internal/model"
)

// Channel names. Symbol-scoped channels carry the symbol as second segment.
func AnalysisChannel(symbol string, tf model.Timeframe) string {
	return "analysis:" + strings.ToUpper(symbol) + ":" + string(tf)
}

func AlertsChannel(symbol string) string { return "alerts:" + strings.ToUpper(symbol) }

func TickerChannel(symbol string) string { return "ticker:" + strings.ToUpper(symbol) }

const FearGreedChannel = "feargreed"

// symbolOf returns the symbol a channel is scoped to, or "" for global
// channels.
func symbolOf(channel string) string {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Hub keeps the latest message per channel and fans broadcasts out to
// websocket clients. It implements model.Publisher so the dashboard service
// can publish to it directly when no Redis is configured.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replayCap   int

	metrics *metrics.Metrics
	now     func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replayCap:   200,
		metrics:     m,
		now:         time.Now,
	}
}

func (h *Hub) PublishAnalysis(_ context.Context, symbol string, tf model.Timeframe, payload []byte) error {
	h.Broadcast(AnalysisChannel(symbol, tf), payload)
	return nil
}

func (h *Hub) PublishAlerts(_ context.Context, symbol string, alerts []model.Alert) error {
	if alerts == nil {
		alerts = []model.Alert{}
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return err
	}
	h.Broadcast(AlertsChannel(symbol), data)
	return nil
}

func (h *Hub) PublishFearGreed(_ context.Context, value int) error {
	h.Broadcast(FearGreedChannel, []byte(strconv.Itoa(value)))
	return nil
}

func (h *Hub) PublishTicker(_ context.Context, symbol string, payload []byte) error {
	h.Broadcast(TickerChannel(symbol), payload)
	return nil
}

// Close is a no-op; clients are closed when their connections drop.
func (h *Hub) Close() error { return nil }

func (h *Hub) register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	if h.metrics != nil {
		h.metrics.GatewayClients.Set(float64(len(h.clients)))
	}
	return len(h.clients)
}

// RemoveClient removes a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	if h.metrics != nil {
		h.metrics.GatewayClients.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the last payload broadcast on channel.
func (h *Hub) Latest(channel string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[channel]
	return e.Data, ok
}

// Channels lists every channel that has carried a message, sorted.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.latest))
	for ch := range h.latest {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// Replay returns buffered envelopes for channel with seq in [from, to].
func (h *Hub) Replay(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}
