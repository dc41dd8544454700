package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketdash/config"
	"marketdash/internal/dashboard"
	"marketdash/internal/feed/binance"
	"marketdash/internal/feed/feargreed"
	"marketdash/internal/gateway"
	"marketdash/internal/logger"
	"marketdash/internal/metrics"
	"marketdash/internal/model"
	"marketdash/internal/notification"
	"marketdash/internal/precision"
	mdredis "marketdash/internal/store/redis"
	"marketdash/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("[dashboard] config", "err", err)
		os.Exit(1)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("[dashboard] config", "err", err)
		os.Exit(1)
	}
	logger.Init("dashboard", level, os.Stdout)
	slog.Info("[dashboard] starting", "symbols", cfg.Symbols, "timeframes", cfg.Timeframes, "http", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("[dashboard] shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("[dashboard] fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	health := metrics.NewHealthStatus(15 * time.Minute)
	cache := precision.NewCache()

	tfConfigs, err := cfg.AnalysisConfigs()
	if err != nil {
		return err
	}

	rest := binance.NewClient(binance.Config{BaseURL: cfg.Binance.RESTURL, Observer: cache})
	stream := binance.NewStream(binance.StreamConfig{BaseURL: cfg.Binance.WSURL})
	stream.OnReconnect = func() {
		m.WSReconnects.Inc()
		health.SetStreamConnected(false)
	}

	hub := gateway.NewHub(m)
	var probes []metrics.Probe
	opts := dashboard.Options{
		Symbols:       cfg.Symbols,
		Configs:       tfConfigs,
		HistoryLimit:  cfg.HistoryLimit,
		RefreshSpec:   cfg.Schedule.RefreshCron,
		SentimentSpec: cfg.Schedule.SentimentCron,
	}
	deps := dashboard.Deps{
		Candles:   rest,
		Pairs:     rest,
		Sentiment: feargreed.NewClient(cfg.FearGreedURL, 10*time.Second),
		Stream:    stream,
		Precision: cache,
		Metrics:   m,
		Health:    health,
	}

	// With Redis, everything goes through pub/sub and the router relays it
	// into the hub; without it the service feeds the hub directly.
	if cfg.Redis.Addr != "" {
		pub, err := mdredis.New(mdredis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			LatestTTL: cfg.Redis.LatestTTL,
		})
		if err != nil {
			return err
		}
		pub.Breaker().OnStateChange = func(from, to mdredis.State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			slog.Warn("[redis] circuit breaker", "from", from.String(), "to", to.String())
		}
		deps.Publishers = []model.Publisher{pub}
		opts.SentimentSeed = pub.LatestFearGreed
		probes = append(probes, metrics.Probe{Name: "redis", Check: pub.Ping})
		go gateway.NewPubSubRouter(hub, pub.Client()).Run(ctx)
	} else {
		deps.Publishers = []model.Publisher{hub}
	}

	if cfg.SQLitePath != "" {
		journal, err := sqlite.Open(sqlite.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return err
		}
		deps.Journal = journal
		probes = append(probes, metrics.Probe{Name: "sqlite", Check: journal.DB().PingContext})
	}

	deps.Notifier = buildNotifier(cfg)

	svc, err := dashboard.New(opts, deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("[dashboard] close", "err", err)
		}
	}()

	srv := gateway.NewServer(cfg.HTTPAddr, hub, svc, health, m)
	srv.Start()

	health.StartLivenessChecker(ctx, probes, 30*time.Second)

	runErr := svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("[gateway] shutdown", "err", err)
	}
	return runErr
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			slog.Warn("[dashboard] telegram disabled", "err", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	return notification.WithMinSeverity(notifiers, model.ParseSeverity(cfg.Notify.MinSeverity))
}
