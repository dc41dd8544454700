package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdash/internal/feed/binance"
	"marketdash/internal/feed/feargreed"
	"marketdash/internal/gateway"
	"marketdash/internal/metrics"
	"marketdash/internal/model"
)

var testNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

// rampCandles closes from 100 to 150 in equal steps, one hour apart,
// ending at the hour before testNow.
func rampCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	start := testNow.Truncate(time.Hour).Add(-time.Duration(n) * time.Hour)
	for i := range out {
		c := 100 + 50*float64(i)/float64(n-1)
		out[i] = model.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:   c - 0.1,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

type fakeCandles struct {
	fail map[string]bool
	n    int
}

func (f *fakeCandles) Klines(_ context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if f.fail[interval] {
		return nil, fmt.Errorf("klines %s %s: boom", symbol, interval)
	}
	return rampCandles(min(f.n, limit)), nil
}

type fakeSentiment struct {
	idx *feargreed.Index
	err error
}

func (f *fakeSentiment) Latest(context.Context) (*feargreed.Index, error) { return f.idx, f.err }

type recordingPublisher struct {
	mu        sync.Mutex
	analyses  map[string]int
	alerts    map[string][]model.Alert
	tickers   map[string][]byte
	fearGreed []int
	err       error
	closed    bool
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		analyses: make(map[string]int),
		alerts:   make(map[string][]model.Alert),
		tickers:  make(map[string][]byte),
	}
}

func (p *recordingPublisher) PublishAnalysis(_ context.Context, symbol string, tf model.Timeframe, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyses[symbol+":"+string(tf)]++
	return p.err
}

func (p *recordingPublisher) PublishAlerts(_ context.Context, symbol string, alerts []model.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts[symbol] = alerts
	return p.err
}

func (p *recordingPublisher) PublishFearGreed(_ context.Context, value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fearGreed = append(p.fearGreed, value)
	return p.err
}

func (p *recordingPublisher) PublishTicker(_ context.Context, symbol string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[symbol] = payload
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) analysisCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analyses[key]
}

func (p *recordingPublisher) ticker(symbol string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tickers[symbol]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Alert
}

func (n *recordingNotifier) Send(_ context.Context, a model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return nil
}

type memJournal struct {
	stored map[string]model.Alert
	order  []model.Alert
	closed bool
}

func (j *memJournal) Record(_ context.Context, alerts []model.Alert) (int, error) {
	if j.stored == nil {
		j.stored = make(map[string]model.Alert)
	}
	n := 0
	for _, a := range alerts {
		if _, ok := j.stored[a.Key()]; ok {
			continue
		}
		j.stored[a.Key()] = a
		j.order = append([]model.Alert{a}, j.order...)
		n++
	}
	return n, nil
}

func (j *memJournal) Recent(_ context.Context, symbol string, limit int) ([]model.Alert, error) {
	var out []model.Alert
	for _, a := range j.order {
		if a.Symbol == symbol && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (j *memJournal) Close() error {
	j.closed = true
	return nil
}

type scriptedStream struct {
	envs []binance.Envelope
}

func (s *scriptedStream) Run(ctx context.Context, _ []string, handle func(binance.Envelope)) error {
	for _, e := range s.envs {
		handle(e)
	}
	<-ctx.Done()
	return nil
}

type harness struct {
	svc      *Service
	pub      *recordingPublisher
	notifier *recordingNotifier
	journal  *memJournal
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, candles *fakeCandles, sentiment SentimentSource) *harness {
	t.Helper()
	h := &harness{
		pub:      newRecordingPublisher(),
		notifier: &recordingNotifier{},
		journal:  &memJournal{},
		metrics:  metrics.New(),
	}
	svc, err := New(Options{Symbols: []string{"btcusdt"}, HistoryLimit: 300}, Deps{
		Candles:    candles,
		Sentiment:  sentiment,
		Publishers: []model.Publisher{h.pub},
		Journal:    h.journal,
		Notifier:   h.notifier,
		Metrics:    h.metrics,
		Health:     metrics.NewHealthStatus(time.Hour),
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	h.svc = svc
	return h
}

func tickerEnvelope(t *testing.T, symbol, price string) binance.Envelope {
	t.Helper()
	data, err := json.Marshal(map[string]any{"E": testNow.UnixMilli(), "s": symbol, "P": "1.50", "o": "148", "c": price})
	require.NoError(t, err)
	return binance.Envelope{Stream: "btcusdt@ticker", Data: data}
}

func klineEnvelope(t *testing.T, symbol string, open time.Time, closePrice string, final bool) binance.Envelope {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"s": symbol,
		"k": map[string]any{
			"t": open.UnixMilli(), "i": "1h",
			"o": "150", "h": "152", "l": "149", "c": closePrice, "v": "12", "x": final,
		},
	})
	require.NoError(t, err)
	return binance.Envelope{Stream: "btcusdt@kline_1h", Data: data}
}

func countType(alerts []model.Alert, typ model.AlertType) int {
	n := 0
	for _, a := range alerts {
		if a.Type == typ {
			n++
		}
	}
	return n
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Symbols: []string{"BTCUSDT"}}, Deps{})
	assert.Error(t, err)

	_, err = New(Options{}, Deps{Candles: &fakeCandles{n: 10}})
	assert.Error(t, err)

	svc, err := New(Options{Symbols: []string{"ethusdt"}}, Deps{Candles: &fakeCandles{n: 10}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT"}, svc.opts.Symbols)
	assert.Len(t, svc.Engine().Timeframes(), 3)
}

func TestRefreshPublishesEveryTimeframe(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300}, nil)

	require.NoError(t, h.svc.Refresh(context.Background()))

	for _, tf := range []model.Timeframe{model.TF1H, model.TF4H, model.TFDaily} {
		assert.Equal(t, 1, h.pub.analysisCount("BTCUSDT:"+string(tf)), tf)
	}
	snap := h.svc.Analysis("btcusdt")
	require.Len(t, snap, 3)
	assert.InDelta(t, 150, snap[model.TF1H].LastClose, 1e-9)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RefreshCycles))
	assert.Contains(t, h.pub.alerts, "BTCUSDT")
}

func TestRefreshKeepsGoingWhenATimeframeFails(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300, fail: map[string]bool{"4h": true}}, nil)

	err := h.svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4h")

	assert.Equal(t, 1, h.pub.analysisCount("BTCUSDT:1h"))
	assert.Equal(t, 0, h.pub.analysisCount("BTCUSDT:4h"))
	assert.Equal(t, 1, h.pub.analysisCount("BTCUSDT:daily"))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FetchErrors.WithLabelValues("4h")))
}

func TestAlertsNotifiedOncePerCondition(t *testing.T) {
	sent := &fakeSentiment{idx: &feargreed.Index{Value: 12, Classification: "Extreme Fear"}}
	h := newHarness(t, &fakeCandles{n: 300}, sent)
	ctx := context.Background()

	h.svc.RefreshSentiment(ctx)
	require.NoError(t, h.svc.Refresh(ctx))
	require.NoError(t, h.svc.Refresh(ctx))

	assert.Equal(t, []int{12}, h.pub.fearGreed)
	assert.Equal(t, float64(12), testutil.ToFloat64(h.metrics.SentimentValue))

	current := h.svc.Alerts("BTCUSDT")
	assert.Equal(t, 1, countType(current, model.AlertFearGreed))
	assert.Equal(t, 1, countType(h.pub.alerts["BTCUSDT"], model.AlertFearGreed))

	// Two refreshes, one delivery.
	assert.Equal(t, 1, countType(h.notifier.sent, model.AlertFearGreed))
	assert.Len(t, h.journal.stored, len(h.notifier.sent))
	assert.Equal(t, float64(len(h.notifier.sent)), testutil.ToFloat64(h.metrics.AlertsNotified))

	hist, err := h.svc.AlertHistory(ctx, "btcusdt", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, countType(hist, model.AlertFearGreed))
}

func TestSentimentFailureKeepsPreviousValue(t *testing.T) {
	sent := &fakeSentiment{idx: &feargreed.Index{Value: 55, Classification: "Neutral"}}
	h := newHarness(t, &fakeCandles{n: 50}, sent)
	ctx := context.Background()

	h.svc.RefreshSentiment(ctx)
	sent.idx, sent.err = nil, errors.New("unavailable")
	h.svc.RefreshSentiment(ctx)

	require.NotNil(t, h.svc.FearGreed())
	assert.Equal(t, 55, h.svc.FearGreed().Value)
	assert.Equal(t, []int{55}, h.pub.fearGreed)
}

func TestSentimentSeed(t *testing.T) {
	svc, err := New(Options{
		Symbols:       []string{"BTCUSDT"},
		SentimentSeed: func(context.Context) (int, bool, error) { return 81, true, nil },
	}, Deps{Candles: &fakeCandles{n: 10}})
	require.NoError(t, err)

	svc.seedSentiment(context.Background())
	require.NotNil(t, svc.FearGreed())
	assert.Equal(t, 81, svc.FearGreed().Value)
	assert.Equal(t, "Extreme Greed", svc.FearGreed().Classification)
}

func TestTickerPublishesFormattedPrice(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300}, nil)
	require.NoError(t, h.svc.Refresh(context.Background()))

	h.svc.HandleStream(tickerEnvelope(t, "BTCUSDT", "151.2300"))

	var p TickerPayload
	require.NoError(t, json.Unmarshal(h.pub.ticker("BTCUSDT"), &p))
	assert.Equal(t, "BTCUSDT", p.Symbol)
	assert.InDelta(t, 151.23, p.Price, 1e-9)
	assert.Equal(t, 2, p.Decimals)
	assert.Equal(t, "151.23", p.PriceText)
	require.NotNil(t, p.HourProgress)
	assert.Equal(t, 30, p.HourProgress.MinutesIntoHour)

	tick, ok := h.svc.Price("btcusdt")
	require.True(t, ok)
	assert.InDelta(t, 151.23, tick.Price, 1e-9)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.StreamMessages.WithLabelValues("ticker")))
}

func TestClosedKlineTriggersReanalysis(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300}, nil)
	ctx := context.Background()
	require.NoError(t, h.svc.Refresh(ctx))

	hour := testNow.Truncate(time.Hour)
	h.svc.HandleStream(klineEnvelope(t, "BTCUSDT", hour, "150.5", false))
	h.svc.merge(ctx, nil)
	assert.Equal(t, 1, h.pub.analysisCount("BTCUSDT:1h"), "forming candle is merged but not analysed")

	h.svc.HandleStream(klineEnvelope(t, "BTCUSDT", hour, "151", true))
	h.svc.merge(ctx, nil)
	assert.Equal(t, 2, h.pub.analysisCount("BTCUSDT:1h"))
	assert.Equal(t, 1, h.pub.analysisCount("BTCUSDT:4h"))

	a := h.svc.Analysis("BTCUSDT")[model.TF1H]
	require.NotNil(t, a)
	assert.InDelta(t, 151, a.LastClose, 1e-9)
}

func TestClosedKlineMatchingFormingCandleStillReanalyses(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300}, nil)
	ctx := context.Background()
	require.NoError(t, h.svc.Refresh(ctx))

	hour := testNow.Truncate(time.Hour)
	h.svc.HandleStream(klineEnvelope(t, "BTCUSDT", hour, "151", false))
	h.svc.merge(ctx, nil)
	require.Equal(t, 1, h.pub.analysisCount("BTCUSDT:1h"))

	h.svc.HandleStream(klineEnvelope(t, "BTCUSDT", hour, "151", true))
	h.svc.merge(ctx, nil)
	assert.Equal(t, 2, h.pub.analysisCount("BTCUSDT:1h"))
}

func TestClosedKlineAlreadyFetchedStillReanalyses(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300}, nil)
	ctx := context.Background()
	require.NoError(t, h.svc.Refresh(ctx))

	last := rampCandles(300)[299]
	data, err := json.Marshal(map[string]any{
		"s": "BTCUSDT",
		"k": map[string]any{
			"t": last.Time, "i": "1h",
			"o": fmt.Sprint(last.Open), "h": fmt.Sprint(last.High), "l": fmt.Sprint(last.Low),
			"c": fmt.Sprint(last.Close), "v": fmt.Sprint(last.Volume), "x": true,
		},
	})
	require.NoError(t, err)
	h.svc.HandleStream(binance.Envelope{Stream: "btcusdt@kline_1h", Data: data})
	h.svc.merge(ctx, nil)

	assert.Equal(t, 2, h.pub.analysisCount("BTCUSDT:1h"))
}

func TestKlineForUnknownSymbolIgnored(t *testing.T) {
	h := newHarness(t, &fakeCandles{n: 300}, nil)
	ctx := context.Background()
	require.NoError(t, h.svc.Refresh(ctx))

	h.svc.HandleStream(klineEnvelope(t, "ETHUSDT", testNow.Truncate(time.Hour), "10", true))
	h.svc.merge(ctx, nil)
	assert.Equal(t, 0, h.pub.analysisCount("ETHUSDT:1h"))
}

func TestBackendFallbacks(t *testing.T) {
	svc, err := New(Options{Symbols: []string{"BTCUSDT"}, HistoryLimit: 300}, Deps{Candles: &fakeCandles{n: 300}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.AlertHistory(ctx, "BTCUSDT", 5)
	assert.ErrorIs(t, err, gateway.ErrNoHistory)

	pairs, err := svc.Pairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, pairs)

	_, ok := svc.Performance("BTCUSDT", 24)
	assert.False(t, ok)

	require.NoError(t, svc.Refresh(ctx))
	perf, ok := svc.Performance("BTCUSDT", 24)
	require.True(t, ok)
	require.Len(t, perf, 24)
	assert.Greater(t, perf[0].Time, perf[1].Time)

	rep := svc.Levels("BTCUSDT", 0)
	assert.InDelta(t, 150, rep.Price, 1e-9)
	assert.Nil(t, svc.FearGreed())
}

func TestPublishFailuresAreCounted(t *testing.T) {
	bad := newRecordingPublisher()
	bad.err = errors.New("down")
	good := newRecordingPublisher()
	m := metrics.New()
	svc, err := New(Options{Symbols: []string{"BTCUSDT"}, HistoryLimit: 300}, Deps{
		Candles:    &fakeCandles{n: 300},
		Publishers: []model.Publisher{bad, good},
		Metrics:    m,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 1, good.analysisCount("BTCUSDT:1h"))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PublishErrors.WithLabelValues("analysis")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PublishErrors.WithLabelValues("alerts")))

	require.NoError(t, svc.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
}

func TestRunStreamsUntilCancelled(t *testing.T) {
	pub := newRecordingPublisher()
	stream := &scriptedStream{envs: []binance.Envelope{tickerEnvelope(t, "BTCUSDT", "150.10")}}
	svc, err := New(Options{Symbols: []string{"BTCUSDT"}, HistoryLimit: 300, DrainEvery: 10 * time.Millisecond}, Deps{
		Candles:    &fakeCandles{n: 300},
		Stream:     stream,
		Publishers: []model.Publisher{pub},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.ticker("BTCUSDT") != nil }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, pub.analysisCount("BTCUSDT:daily"), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamNames(t *testing.T) {
	svc, err := New(Options{Symbols: []string{"BTCUSDT"}}, Deps{Candles: &fakeCandles{n: 10}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"btcusdt@ticker", "btcusdt@kline_1h", "btcusdt@kline_4h", "btcusdt@kline_1d",
	}, svc.streamNames())
}
