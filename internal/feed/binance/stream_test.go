package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdash/internal/model"
)

const tickerMsg = `{"stream":"btcusdc@ticker","data":{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDC","P":"-1.25","o":"66000.00","c":"65175.01000000"}}`

const klineMsg = `{"stream":"btcusdc@kline_4h","data":{"e":"kline","E":1700000000123,"s":"BTCUSDC","k":{"t":1699995600000,"T":1700009999999,"s":"BTCUSDC","i":"4h","o":"65000.00","c":"65175.01","h":"65300.00","l":"64900.00","v":"123.4","x":true}}}`

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamNames(t *testing.T) {
	assert.Equal(t, "btcusdc@ticker", TickerStream("BTCUSDC"))
	assert.Equal(t, "ethusdc@kline_1d", KlineStream("ETHUSDC", model.TFDaily))
}

func TestParseTicker(t *testing.T) {
	data := []byte(`{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDC","P":"-1.25","o":"66000.00","c":"65175.01000000"}`)
	tick, err := ParseTicker(data)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDC", tick.Symbol)
	assert.Equal(t, 65175.01, tick.Price)
	assert.Equal(t, 66000.0, tick.Open)
	assert.Equal(t, -1.25, tick.ChangePct)
	assert.Equal(t, int64(1700000000123), tick.Time)
	assert.Equal(t, "65175.01000000", tick.PriceText)

	_, err = ParseTicker([]byte(`{"s":"BTCUSDC","c":"abc"}`))
	assert.Error(t, err)
}

func TestParseKline(t *testing.T) {
	data := []byte(`{"e":"kline","s":"BTCUSDC","k":{"t":1699995600000,"i":"1d","o":"1.5","h":"2","l":"1","c":"1.75","v":"10","x":false}}`)
	u, err := ParseKline(data)
	require.NoError(t, err)

	assert.Equal(t, model.TFDaily, u.Timeframe)
	assert.False(t, u.Final)
	assert.Equal(t, model.Candle{Time: 1699995600000, Open: 1.5, High: 2, Low: 1, Close: 1.75, Volume: 10}, u.Candle)

	_, err = ParseKline([]byte(`{"s":"BTCUSDC","k":{"i":"7x"}}`))
	assert.Error(t, err)
}

func TestStream_DeliversMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(tickerMsg))
		conn.WriteMessage(websocket.TextMessage, []byte(klineMsg))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Envelope
	s := NewStream(StreamConfig{BaseURL: wsURL(srv)})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, []string{"btcusdc@ticker", "btcusdc@kline_4h"}, func(env Envelope) {
			mu.Lock()
			got = append(got, env)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, "streams=btcusdc@ticker/btcusdc@kline_4h", gotQuery.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "btcusdc@ticker", got[0].Stream)
	u, err := ParseKline(got[1].Data)
	require.NoError(t, err)
	assert.True(t, u.Final)
	assert.Equal(t, model.TF4H, u.Timeframe)
}

func TestStream_Reconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		conn.WriteMessage(websocket.TextMessage, []byte(tickerMsg))
		conn.Close() // drop immediately
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reconnects atomic.Int32
	s := NewStream(StreamConfig{BaseURL: wsURL(srv), ReconnectMin: 5 * time.Millisecond, ReconnectMax: 20 * time.Millisecond})
	s.OnReconnect = func() { reconnects.Add(1) }

	go s.Run(ctx, []string{"btcusdc@ticker"}, func(Envelope) {})

	require.Eventually(t, func() bool { return conns.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, reconnects.Load(), int32(2))
}

func TestStream_NoStreams(t *testing.T) {
	err := NewStream(StreamConfig{}).Run(context.Background(), nil, func(Envelope) {})
	assert.Error(t, err)
}
