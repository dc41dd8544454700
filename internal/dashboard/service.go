// Package dashboard runs the live dashboard: it fetches candle history on a
// schedule, merges streamed klines, recomputes the analyses, raises alerts
// and publishes everything to the gateway and other subscribers.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketdash/internal/alert"
	"marketdash/internal/analysis"
	"marketdash/internal/feed/binance"
	"marketdash/internal/feed/feargreed"
	"marketdash/internal/logger"
	"marketdash/internal/metrics"
	"marketdash/internal/model"
	"marketdash/internal/notification"
	"marketdash/internal/precision"
	"marketdash/internal/ringbuf"
)

// SentimentSource reads the market sentiment index.
type SentimentSource interface {
	Latest(ctx context.Context) (*feargreed.Index, error)
}

// StreamRunner delivers combined-stream messages until ctx is done.
type StreamRunner interface {
	Run(ctx context.Context, names []string, handle func(binance.Envelope)) error
}

// Options configure the service.
type Options struct {
	Symbols       []string
	Configs       []analysis.TimeframeConfig
	HistoryLimit  int           // candles fetched per timeframe; default 500
	RefreshSpec   string        // cron spec; default every 5 minutes
	SentimentSpec string        // cron spec; default every 30 minutes
	AlertTTL      time.Duration // re-notify an unchanged alert after this; default 6h
	DrainEvery    time.Duration // kline merge interval; default 250ms
	RingSize      int           // streamed kline buffer; default 4096
	Location      *time.Location

	// SentimentSeed, if set, supplies a stored sentiment value used until
	// the first fetch succeeds.
	SentimentSeed func(ctx context.Context) (int, bool, error)
}

// Deps are the collaborators. Candles is required; the rest may be nil.
type Deps struct {
	Candles    model.CandleSource
	Pairs      model.PairLister
	Sentiment  SentimentSource
	Stream     StreamRunner
	Publishers []model.Publisher
	Journal    model.AlertJournal
	Notifier   notification.Notifier
	Precision  *precision.Cache
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
}

// Service is the top-level orchestrator of the dashboard.
type Service struct {
	opts Options
	deps Deps

	engine  *analysis.Engine
	tracker *alert.Tracker
	pub     *fanout
	ring    *ringbuf.Ring
	windows map[string]*ringbuf.Window
	now     func() time.Time

	mu        sync.RWMutex
	alerts    map[string][]model.Alert
	prices    map[string]model.Tick
	fearGreed *feargreed.Index
}

// New validates the options and builds the service.
func New(opts Options, deps Deps) (*Service, error) {
	if deps.Candles == nil {
		return nil, errors.New("dashboard: candle source is required")
	}
	if len(opts.Symbols) == 0 {
		return nil, errors.New("dashboard: no symbols")
	}
	if len(opts.Configs) == 0 {
		opts.Configs = analysis.DefaultConfigs()
	}
	if err := analysis.ValidateConfigs(opts.Configs); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 500
	}
	if opts.RefreshSpec == "" {
		opts.RefreshSpec = "*/5 * * * *"
	}
	if opts.SentimentSpec == "" {
		opts.SentimentSpec = "*/30 * * * *"
	}
	if opts.AlertTTL == 0 {
		opts.AlertTTL = 6 * time.Hour
	}
	if opts.DrainEvery <= 0 {
		opts.DrainEvery = 250 * time.Millisecond
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 4096
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if deps.Precision == nil {
		deps.Precision = precision.NewCache()
	}
	symbols := make([]string, len(opts.Symbols))
	for i, s := range opts.Symbols {
		symbols[i] = strings.ToUpper(s)
	}
	opts.Symbols = symbols

	s := &Service{
		opts:    opts,
		deps:    deps,
		engine:  analysis.NewEngine(opts.Configs),
		tracker: alert.NewTracker(opts.AlertTTL),
		pub:     &fanout{targets: deps.Publishers, metrics: deps.Metrics},
		ring:    ringbuf.NewRing(opts.RingSize),
		windows: make(map[string]*ringbuf.Window),
		now:     time.Now,
		alerts:  make(map[string][]model.Alert),
		prices:  make(map[string]model.Tick),
	}
	for _, sym := range opts.Symbols {
		for _, cfg := range opts.Configs {
			s.windows[windowKey(sym, cfg.Timeframe)] = ringbuf.NewWindow(opts.HistoryLimit)
		}
	}
	if deps.Health != nil {
		deps.Health.SetSymbols(opts.Symbols)
	}
	return s, nil
}

func windowKey(symbol string, tf model.Timeframe) string {
	return symbol + "|" + string(tf)
}

// Engine exposes the analysis engine.
func (s *Service) Engine() *analysis.Engine { return s.engine }

// Run seeds state, starts the schedules, the stream and the kline merger,
// and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("[dashboard] starting", "symbols", s.opts.Symbols, "timeframes", s.engine.Timeframes())

	s.seedSentiment(ctx)
	s.RefreshSentiment(ctx)
	if err := s.Refresh(ctx); err != nil {
		slog.Warn("[dashboard] initial refresh incomplete", "err", err)
	}

	c := cron.New(cron.WithLocation(s.opts.Location), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(s.opts.RefreshSpec, func() { s.Refresh(ctx) }); err != nil {
		return fmt.Errorf("register refresh: %w", err)
	}
	if _, err := c.AddFunc(s.opts.SentimentSpec, func() { s.RefreshSentiment(ctx) }); err != nil {
		return fmt.Errorf("register sentiment refresh: %w", err)
	}
	c.Start()
	slog.Info("[dashboard] scheduler started", "refresh", s.opts.RefreshSpec, "sentiment", s.opts.SentimentSpec)

	var wg sync.WaitGroup
	if s.deps.Stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.deps.Stream.Run(ctx, s.streamNames(), s.HandleStream); err != nil {
				slog.Error("[dashboard] stream stopped", "err", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.mergeLoop(ctx)
	}()

	<-ctx.Done()
	<-c.Stop().Done()
	wg.Wait()
	slog.Info("[dashboard] stopped")
	return nil
}

func (s *Service) seedSentiment(ctx context.Context) {
	if s.opts.SentimentSeed == nil {
		return
	}
	v, ok, err := s.opts.SentimentSeed(ctx)
	if err != nil {
		slog.Warn("[dashboard] sentiment seed failed", "err", err)
		return
	}
	if !ok {
		return
	}
	s.mu.Lock()
	s.fearGreed = &feargreed.Index{Value: v, Classification: feargreed.Classify(v)}
	s.mu.Unlock()
	slog.Info("[dashboard] sentiment seeded", "value", v)
}

// Refresh runs one full cycle: for every symbol, fetch each timeframe,
// analyse it, then evaluate and publish the symbol's alerts. A failing
// timeframe is logged and counted; the others still run.
func (s *Service) Refresh(ctx context.Context) error {
	ctx = logger.WithCycle(ctx, logger.NewCycleID())
	start := s.now()
	slog.Debug("[dashboard] refresh started", logger.Attrs(ctx)...)

	var errs []error
	for _, sym := range s.opts.Symbols {
		if err := s.refreshSymbol(ctx, sym); err != nil {
			errs = append(errs, err)
		}
	}

	done := s.now()
	if m := s.deps.Metrics; m != nil {
		m.RefreshCycles.Inc()
		m.RefreshDur.Observe(done.Sub(start).Seconds())
		m.LastRefreshTS.Set(float64(done.Unix()))
	}
	if s.deps.Health != nil {
		s.deps.Health.SetLastRefresh(done)
	}
	slog.Info("[dashboard] refresh complete",
		append(logger.Attrs(ctx), "symbols", len(s.opts.Symbols), "errors", len(errs), "dur", done.Sub(start).String())...)
	return errors.Join(errs...)
}

func (s *Service) refreshSymbol(ctx context.Context, symbol string) error {
	var errs []error
	for _, tf := range s.engine.Timeframes() {
		candles, err := s.deps.Candles.Klines(ctx, symbol, tf.Interval(), s.opts.HistoryLimit)
		if err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.FetchErrors.WithLabelValues(string(tf)).Inc()
			}
			slog.Warn("[dashboard] fetch failed", append(logger.Attrs(ctx), "symbol", symbol, "tf", tf, "err", err)...)
			errs = append(errs, fmt.Errorf("%s %s: %w", symbol, tf, err))
			continue
		}
		s.windows[windowKey(symbol, tf)].Reset(candles)
		s.analyze(ctx, symbol, tf)
	}
	s.evaluateAlerts(ctx, symbol)
	return errors.Join(errs...)
}

// analyze recomputes one timeframe from its window and publishes it.
func (s *Service) analyze(ctx context.Context, symbol string, tf model.Timeframe) {
	start := time.Now()
	a, ok := s.engine.Process(symbol, tf, s.windows[windowKey(symbol, tf)].Snapshot())
	if !ok {
		return
	}
	if m := s.deps.Metrics; m != nil {
		m.AnalysesTotal.WithLabelValues(string(tf)).Inc()
		m.AnalyzeDur.Observe(time.Since(start).Seconds())
	}
	s.pub.PublishAnalysis(ctx, symbol, tf, a.JSON())
}

// evaluateAlerts regenerates the symbol's alert list, publishes it, and
// notifies and journals the alerts not raised recently.
func (s *Service) evaluateAlerts(ctx context.Context, symbol string) {
	now := s.now()
	var fg *int
	s.mu.RLock()
	if s.fearGreed != nil {
		v := s.fearGreed.Value
		fg = &v
	}
	s.mu.RUnlock()

	alerts := s.engine.Alerts(symbol, fg, now)
	s.mu.Lock()
	s.alerts[symbol] = alerts
	s.mu.Unlock()
	s.pub.PublishAlerts(ctx, symbol, alerts)

	fresh := s.tracker.Fresh(alerts, now)
	if len(fresh) == 0 {
		return
	}
	if m := s.deps.Metrics; m != nil {
		for _, a := range fresh {
			m.AlertsRaised.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		}
	}
	slog.Info("[dashboard] new alerts", append(logger.Attrs(ctx), "symbol", symbol, "count", len(fresh))...)

	if s.deps.Notifier != nil {
		sent := notification.SendAll(ctx, s.deps.Notifier, fresh)
		if m := s.deps.Metrics; m != nil {
			m.AlertsNotified.Add(float64(sent))
			m.NotifyErrors.Add(float64(len(fresh) - sent))
		}
	}
	if s.deps.Journal != nil {
		n, err := s.deps.Journal.Record(ctx, fresh)
		if err != nil {
			slog.Warn("[dashboard] journal failed", append(logger.Attrs(ctx), "symbol", symbol, "err", err)...)
		} else if s.deps.Metrics != nil {
			s.deps.Metrics.AlertsStored.Add(float64(n))
		}
	}
}

// RefreshSentiment fetches the sentiment index and publishes its value. On
// failure the previous value is kept.
func (s *Service) RefreshSentiment(ctx context.Context) {
	if s.deps.Sentiment == nil {
		return
	}
	idx, err := s.deps.Sentiment.Latest(ctx)
	if err != nil {
		slog.Warn("[dashboard] sentiment fetch failed", "err", err)
		return
	}
	s.mu.Lock()
	s.fearGreed = idx
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.SentimentValue.Set(float64(idx.Value))
	}
	s.pub.PublishFearGreed(ctx, idx.Value)
	slog.Info("[dashboard] sentiment updated", "value", idx.Value, "classification", idx.Classification)
}

// Close releases the publishers and the journal.
func (s *Service) Close() error {
	var errs []error
	errs = append(errs, s.pub.Close())
	if s.deps.Journal != nil {
		errs = append(errs, s.deps.Journal.Close())
	}
	return errors.Join(errs...)
}
