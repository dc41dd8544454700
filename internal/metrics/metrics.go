package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard service. They are
// registered on a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Refresh cycle
	RefreshCycles  prometheus.Counter
	RefreshDur     prometheus.Histogram
	FetchErrors    *prometheus.CounterVec // labels: tf
	AnalysesTotal  *prometheus.CounterVec // labels: tf
	AnalyzeDur     prometheus.Histogram
	LastRefreshTS  prometheus.Gauge
	SentimentValue prometheus.Gauge

	// Alerts
	AlertsRaised   *prometheus.CounterVec // labels: type, severity
	AlertsNotified prometheus.Counter
	NotifyErrors   prometheus.Counter
	AlertsStored   prometheus.Counter

	// Streams
	StreamMessages *prometheus.CounterVec // labels: kind=ticker|kline
	WSReconnects   prometheus.Counter
	RingBufDropped prometheus.Counter

	// Gateway
	GatewayClients prometheus.Gauge
	GatewayDrops   prometheus.Counter

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	PublishErrors            *prometheus.CounterVec // labels: channel
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RefreshCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_refresh_cycles_total",
			Help: "Completed refresh cycles",
		}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketdash_refresh_duration_seconds",
			Help:    "Refresh cycle latency (fetch + analyse + publish)",
			Buckets: prometheus.DefBuckets,
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdash_fetch_errors_total",
			Help: "Candle fetch failures by timeframe",
		}, []string{"tf"}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdash_analyses_total",
			Help: "Timeframe analyses computed",
		}, []string{"tf"}),
		AnalyzeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketdash_analyze_duration_seconds",
			Help:    "Indicator computation latency per timeframe",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		LastRefreshTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdash_last_refresh_timestamp_seconds",
			Help: "Unix time of the last completed refresh",
		}),
		SentimentValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdash_fear_greed_value",
			Help: "Latest Fear & Greed index value",
		}),

		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdash_alerts_raised_total",
			Help: "New alerts by type and severity",
		}, []string{"type", "severity"}),
		AlertsNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_alerts_notified_total",
			Help: "Alerts delivered to notifiers",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_notify_errors_total",
			Help: "Alert deliveries that failed",
		}),
		AlertsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_alerts_journaled_total",
			Help: "Alerts written to the journal",
		}),

		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdash_stream_messages_total",
			Help: "Websocket stream messages received",
		}, []string{"kind"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_ws_reconnects_total",
			Help: "Market stream reconnection attempts",
		}),
		RingBufDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_ringbuf_dropped_total",
			Help: "Kline updates dropped because the ring buffer was full",
		}),

		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdash_gateway_clients",
			Help: "Connected dashboard websocket clients",
		}),
		GatewayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdash_gateway_drops_total",
			Help: "Messages dropped for slow websocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdash_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdash_publish_errors_total",
			Help: "Publication failures by channel kind",
		}, []string{"channel"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RefreshCycles,
		m.RefreshDur,
		m.FetchErrors,
		m.AnalysesTotal,
		m.AnalyzeDur,
		m.LastRefreshTS,
		m.SentimentValue,
		m.AlertsRaised,
		m.AlertsNotified,
		m.NotifyErrors,
		m.AlertsStored,
		m.StreamMessages,
		m.WSReconnects,
		m.RingBufDropped,
		m.GatewayClients,
		m.GatewayDrops,
		m.RedisCircuitBreakerState,
		m.PublishErrors,
	)

	return m
}

// Registry exposes the private registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
