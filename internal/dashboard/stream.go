package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"marketdash/internal/analysis"
	"marketdash/internal/feed/binance"
	"marketdash/internal/model"
)

// TickerPayload is what the ticker channel carries.
type TickerPayload struct {
	Symbol       string                 `json:"symbol"`
	Price        float64                `json:"price"`
	PriceText    string                 `json:"priceText"`
	ChangePct    float64                `json:"changePct"`
	Decimals     int                    `json:"decimals"`
	Time         int64                  `json:"time"`
	HourProgress *analysis.HourProgress `json:"hourProgress,omitempty"`
}

func (s *Service) streamNames() []string {
	names := make([]string, 0, len(s.opts.Symbols)*(len(s.opts.Configs)+1))
	for _, sym := range s.opts.Symbols {
		names = append(names, binance.TickerStream(sym))
		for _, tf := range s.engine.Timeframes() {
			names = append(names, binance.KlineStream(sym, tf))
		}
	}
	return names
}

// HandleStream dispatches one stream message. Tickers are published at once;
// klines are queued for the merge loop.
func (s *Service) HandleStream(env binance.Envelope) {
	if s.deps.Health != nil {
		s.deps.Health.SetStreamConnected(true)
		s.deps.Health.SetLastTickTime(s.now())
	}
	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		t, err := binance.ParseTicker(env.Data)
		if err != nil {
			slog.Debug("[dashboard] bad ticker", "stream", env.Stream, "err", err)
			return
		}
		s.countMessage("ticker")
		s.onTick(context.Background(), t)
	case strings.Contains(env.Stream, "@kline_"):
		u, err := binance.ParseKline(env.Data)
		if err != nil {
			slog.Debug("[dashboard] bad kline", "stream", env.Stream, "err", err)
			return
		}
		s.countMessage("kline")
		if !s.ring.Push(u) && s.deps.Metrics != nil {
			s.deps.Metrics.RingBufDropped.Inc()
		}
	}
}

func (s *Service) countMessage(kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.StreamMessages.WithLabelValues(kind).Inc()
	}
}

func (s *Service) onTick(ctx context.Context, t model.Tick) {
	decimals := s.deps.Precision.ObserveString(t.Symbol, t.PriceText)

	s.mu.Lock()
	s.prices[t.Symbol] = t
	s.mu.Unlock()

	p := TickerPayload{
		Symbol:    t.Symbol,
		Price:     t.Price,
		PriceText: s.deps.Precision.Format(t.Symbol, t.Price),
		ChangePct: t.ChangePct,
		Decimals:  decimals,
		Time:      t.Time,
	}
	if w, ok := s.windows[windowKey(t.Symbol, model.TF1H)]; ok {
		if last, ok := w.Last(); ok {
			hp := analysis.CurrentHourProgress(last.Open, t.Price, s.now().In(s.opts.Location))
			p.HourProgress = &hp
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	s.pub.PublishTicker(ctx, t.Symbol, b)
}

// Price returns the last streamed tick of symbol.
func (s *Service) Price(symbol string) (model.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.prices[strings.ToUpper(symbol)]
	return t, ok
}

func (s *Service) mergeLoop(ctx context.Context) {
	t := time.NewTicker(s.opts.DrainEvery)
	defer t.Stop()
	var buf []model.KlineUpdate
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			buf = s.merge(ctx, buf[:0])
		}
	}
}

// merge folds queued kline updates into the windows and re-analyses every
// timeframe that received a closed candle, changed or not.
func (s *Service) merge(ctx context.Context, buf []model.KlineUpdate) []model.KlineUpdate {
	buf = s.ring.Drain(buf)
	if len(buf) == 0 {
		return buf
	}

	type key struct {
		symbol string
		tf     model.Timeframe
	}
	closed := make(map[key]struct{})
	for _, u := range buf {
		w, ok := s.windows[windowKey(u.Symbol, u.Timeframe)]
		if !ok {
			continue
		}
		w.Upsert(u.Candle)
		// A closing update often repeats the last forming values; it still
		// completes the period.
		if u.Final {
			closed[key{u.Symbol, u.Timeframe}] = struct{}{}
		}
	}
	if len(closed) == 0 {
		return buf
	}

	symbols := make(map[string]struct{})
	for k := range closed {
		s.analyze(ctx, k.symbol, k.tf)
		symbols[k.symbol] = struct{}{}
	}
	for sym := range symbols {
		s.evaluateAlerts(ctx, sym)
	}
	return buf
}
