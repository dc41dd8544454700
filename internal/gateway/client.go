package gateway

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendQueue  = 256
)

// Client is one websocket peer. With no symbol subscription it receives
// every channel; otherwise only global channels and its symbols.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu   sync.RWMutex
	symbols map[string]bool
}

// clientMsg is what peers send: subscribe/unsubscribe by symbol, or ping.
type clientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(hub *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, sendQueue),
		hub:     hub,
		symbols: make(map[string]bool),
	}
	c.subscribe(symbols)
	return c
}

// Serve registers the connection with the hub, replays the latest state
// newer than since and starts the read and write pumps.
func (h *Hub) Serve(conn *websocket.Conn, symbols []string, since time.Time) {
	c := newClient(h, conn, symbols)
	n := h.register(c)
	slog.Info("[gateway] ws client connected", "clients", n)

	c.sendInitialState(since, nil)
	go c.writePump()
	go c.readPump()
}

func (c *Client) subscribe(symbols []string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	added := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || c.symbols[s] {
			continue
		}
		c.symbols[s] = true
		added = append(added, s)
	}
	return added
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.symbols, strings.ToUpper(strings.TrimSpace(s)))
	}
}

func (c *Client) subscribed() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Client) matchesChannel(channel string) bool {
	sym := symbolOf(channel)
	if sym == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[sym]
}

// sendInitialState queues the latest envelope of each matching channel
// published after since. When only is non-empty, just those symbols'
// channels are replayed.
func (c *Client) sendInitialState(since time.Time, only []string) {
	onlySet := make(map[string]bool, len(only))
	for _, s := range only {
		onlySet[s] = true
	}

	h := c.hub
	h.mu.RLock()
	defer h.mu.RUnlock()

	channels := make([]string, 0, len(h.latest))
	for ch := range h.latest {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		e := h.latest[ch]
		if !since.IsZero() && !e.TS.After(since) {
			continue
		}
		if len(onlySet) > 0 && !onlySet[symbolOf(ch)] {
			continue
		}
		if len(onlySet) == 0 && !c.matchesChannel(ch) {
			continue
		}
		select {
		case c.send <- buildEnvelope(ch, e.Data, e.TS, h.seq, e.Seq, true):
		default:
		}
	}
}

func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.reply(map[string]any{"type": "error", "error": "invalid message"})
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "subscribe":
			added := c.subscribe(msg.Symbols)
			c.reply(map[string]any{"type": "subscribed", "symbols": c.subscribed()})
			if len(added) > 0 {
				c.sendInitialState(time.Time{}, added)
			}
		case "unsubscribe":
			c.unsubscribe(msg.Symbols)
			c.reply(map[string]any{"type": "subscribed", "symbols": c.subscribed()})
		case "ping":
			c.reply(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
		default:
			c.reply(map[string]any{"type": "error", "error": "unknown type " + msg.Type})
		}
	}
}
