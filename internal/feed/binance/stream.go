package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketdash/internal/model"
)

const (
	DefaultStreamURL = "wss://stream.binance.com:9443"

	HeartBeatInterval = 30 * time.Second
	ReadTimeout       = 90 * time.Second
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	BaseURL      string        // default: wss://stream.binance.com:9443
	ReconnectMin time.Duration // default: 1s
	ReconnectMax time.Duration // default: 60s
	PingInterval time.Duration // default: 30s
}

// Stream subscribes to combined market streams and reconnects with
// exponential backoff until its context ends.
type Stream struct {
	cfg    StreamConfig
	dialer *websocket.Dialer

	// OnReconnect, if set, is called before every reconnect attempt.
	OnReconnect func()
}

// NewStream creates a stream client.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultStreamURL
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = HeartBeatInterval
	}
	return &Stream{cfg: cfg, dialer: websocket.DefaultDialer}
}

// Envelope is one message of a combined stream.
type Envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// TickerStream names the 24h ticker stream of symbol.
func TickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@ticker"
}

// KlineStream names the kline stream of symbol at a timeframe.
func KlineStream(symbol string, tf model.Timeframe) string {
	return strings.ToLower(symbol) + "@kline_" + tf.Interval()
}

// Run connects to the combined stream of names and calls handle for every
// message. It returns nil once ctx is done.
func (s *Stream) Run(ctx context.Context, names []string, handle func(Envelope)) error {
	if len(names) == 0 {
		return errors.New("binance: no streams to subscribe")
	}
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/stream?streams=" + strings.Join(names, "/")

	backoff := s.cfg.ReconnectMin
	for {
		received, err := s.session(ctx, u, handle)
		if ctx.Err() != nil {
			return nil
		}
		if received {
			backoff = s.cfg.ReconnectMin
		}
		slog.Warn("[binance] stream disconnected", "err", err, "retry_in", backoff.String(), "streams", len(names))
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.cfg.ReconnectMax)
	}
}

// session runs one connection until it fails or ctx ends. received reports
// whether at least one message arrived.
func (s *Stream) session(ctx context.Context, u string, handle func(Envelope)) (received bool, err error) {
	conn, resp, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial: %w (status %s)", err, resp.Status)
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	slog.Info("[binance] stream connected", "url", u)

	conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					slog.Warn("[binance] ping write error", "err", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Stream == "" {
			slog.Debug("[binance] skipping non-stream message", "msg", string(msg))
			continue
		}
		received = true
		handle(env)
	}
}

type tickerEvent struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	ChangePct string `json:"P"`
	Open      string `json:"o"`
	Close     string `json:"c"`
}

// ParseTicker decodes a 24h ticker event.
func ParseTicker(data []byte) (model.Tick, error) {
	var ev tickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Tick{}, fmt.Errorf("ticker: %w", err)
	}
	if ev.Symbol == "" {
		return model.Tick{}, errors.New("ticker: missing symbol")
	}
	price, err := strconv.ParseFloat(ev.Close, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("ticker %s: price: %w", ev.Symbol, err)
	}
	open, _ := strconv.ParseFloat(ev.Open, 64)
	pct, _ := strconv.ParseFloat(ev.ChangePct, 64)
	return model.Tick{
		Symbol:    ev.Symbol,
		Price:     price,
		Open:      open,
		ChangePct: pct,
		Time:      ev.EventTime,
		PriceText: ev.Close,
	}, nil
}

type klineEvent struct {
	Symbol string `json:"s"`
	K      struct {
		Start    int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// ParseKline decodes a kline event.
func ParseKline(data []byte) (model.KlineUpdate, error) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.KlineUpdate{}, fmt.Errorf("kline: %w", err)
	}
	if ev.Symbol == "" {
		return model.KlineUpdate{}, errors.New("kline: missing symbol")
	}
	tf, err := model.ParseTimeframe(ev.K.Interval)
	if err != nil {
		return model.KlineUpdate{}, fmt.Errorf("kline %s: %w", ev.Symbol, err)
	}

	var vals [5]float64
	for i, s := range []string{ev.K.Open, ev.K.High, ev.K.Low, ev.K.Close, ev.K.Volume} {
		if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
			return model.KlineUpdate{}, fmt.Errorf("kline %s: field %d: %w", ev.Symbol, i, err)
		}
	}
	return model.KlineUpdate{
		Symbol:    ev.Symbol,
		Timeframe: tf,
		Candle: model.Candle{
			Time:   ev.K.Start,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		},
		Final: ev.K.Closed,
	}, nil
}
