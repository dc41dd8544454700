// Package redis publishes analysis output over Redis pub/sub and keeps the
// latest alerts and sentiment value under short-lived keys.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"marketdash/internal/model"
)

const (
	DefaultLatestTTL = 30 * time.Minute

	// ChannelPrefix prefixes every pub/sub channel and key.
	ChannelPrefix = "md:"
)

// Channel names.
func AnalysisChannel(symbol string, tf model.Timeframe) string {
	return ChannelPrefix + "analysis:" + strings.ToUpper(symbol) + ":" + string(tf)
}

func AlertsChannel(symbol string) string {
	return ChannelPrefix + "alerts:" + strings.ToUpper(symbol)
}

func TickerChannel(symbol string) string {
	return ChannelPrefix + "ticker:" + strings.ToUpper(symbol)
}

const FearGreedChannel = ChannelPrefix + "feargreed"

func latestAlertsKey(symbol string) string {
	return ChannelPrefix + "latest:alerts:" + strings.ToUpper(symbol)
}

const latestFearGreedKey = ChannelPrefix + "latest:feargreed"

// Config configures the publisher.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration // default: 30m
}

// Publisher implements model.Publisher on Redis.
type Publisher struct {
	client  *goredis.Client
	breaker *Breaker
	ttl     time.Duration
}

// New connects to Redis and pings it.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	slog.Info("[redis] connected", "addr", cfg.Addr)
	return NewWithClient(client, cfg.LatestTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	b := NewBreaker(5, 10*time.Second)
	b.OnStateChange = func(from, to State) {
		slog.Warn("[redis] circuit breaker", "from", from.String(), "to", to.String())
	}
	return &Publisher{client: client, breaker: b, ttl: ttl}
}

// Client returns the underlying client for health checks and subscribers.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker state.
func (p *Publisher) Breaker() *Breaker { return p.breaker }

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// PublishAnalysis publishes a JSON analysis payload.
func (p *Publisher) PublishAnalysis(ctx context.Context, symbol string, tf model.Timeframe, payload []byte) error {
	return p.breaker.Do(func() error {
		return p.client.Publish(ctx, AnalysisChannel(symbol, tf), payload).Err()
	})
}

// PublishTicker publishes a live price update. Nothing is stored.
func (p *Publisher) PublishTicker(ctx context.Context, symbol string, payload []byte) error {
	return p.breaker.Do(func() error {
		return p.client.Publish(ctx, TickerChannel(symbol), payload).Err()
	})
}

// PublishAlerts publishes the alert list and stores it as the latest for
// symbol.
func (p *Publisher) PublishAlerts(ctx context.Context, symbol string, alerts []model.Alert) error {
	if alerts == nil {
		alerts = []model.Alert{}
	}
	payload, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	return p.breaker.Do(func() error {
		pipe := p.client.TxPipeline()
		pipe.Set(ctx, latestAlertsKey(symbol), payload, p.ttl)
		pipe.Publish(ctx, AlertsChannel(symbol), payload)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// PublishFearGreed publishes the sentiment value and stores it as latest.
func (p *Publisher) PublishFearGreed(ctx context.Context, value int) error {
	v := strconv.Itoa(value)
	return p.breaker.Do(func() error {
		pipe := p.client.TxPipeline()
		pipe.Set(ctx, latestFearGreedKey, v, p.ttl)
		pipe.Publish(ctx, FearGreedChannel, v)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// LatestAlerts returns the last alert list published for symbol, or nil
// when none is stored.
func (p *Publisher) LatestAlerts(ctx context.Context, symbol string) ([]model.Alert, error) {
	raw, err := p.client.Get(ctx, latestAlertsKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest alerts %s: %w", symbol, err)
	}
	var alerts []model.Alert
	if err := json.Unmarshal(raw, &alerts); err != nil {
		return nil, fmt.Errorf("decode latest alerts %s: %w", symbol, err)
	}
	return alerts, nil
}

// LatestFearGreed returns the stored sentiment value, if any.
func (p *Publisher) LatestFearGreed(ctx context.Context) (int, bool, error) {
	v, err := p.client.Get(ctx, latestFearGreedKey).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get latest fear & greed: %w", err)
	}
	return v, true, nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
