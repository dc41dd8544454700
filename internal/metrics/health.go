package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type probeResult struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool
	LastTickTime    time.Time
	LastRefresh     time.Time
	Symbols         []string
	probes          map[string]probeResult
	lastCheckAt     time.Time
	startedAt       time.Time

	// StaleAfter marks the service degraded when no refresh completed within it.
	StaleAfter time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		probes:     make(map[string]probeResult),
		startedAt:  time.Now(),
		StaleAfter: staleAfter,
		now:        time.Now,
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastRefresh(t time.Time) {
	h.mu.Lock()
	h.LastRefresh = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = append([]string(nil), symbols...)
	h.mu.Unlock()
}

// RunProbes executes every probe once and records latency and result.
func (h *HealthStatus) RunProbes(ctx context.Context, probes []Probe) {
	for _, p := range probes {
		start := time.Now()
		err := p.Check(ctx)
		res := probeResult{
			OK:        err == nil,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
		if err != nil {
			res.Error = err.Error()
			slog.Warn("[health] probe failed", "probe", p.Name, "err", err)
		}
		h.mu.Lock()
		h.probes[p.Name] = res
		h.lastCheckAt = h.now()
		h.mu.Unlock()
	}
}

// StartLivenessChecker runs the probes immediately and then every interval.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, probes []Probe, interval time.Duration) {
	if len(probes) == 0 {
		return
	}
	go func() {
		run := func() {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.RunProbes(probeCtx, probes)
			cancel()
		}
		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

// Report is the /healthz body.
type Report struct {
	Status          string                 `json:"status"`
	Uptime          string                 `json:"uptime"`
	StreamConnected bool                   `json:"stream_connected"`
	LastTickTime    string                 `json:"last_tick_time,omitempty"`
	LastRefresh     string                 `json:"last_refresh,omitempty"`
	Symbols         []string               `json:"symbols"`
	Probes          map[string]probeResult `json:"probes"`
	LastCheckAt     string                 `json:"last_check_at,omitempty"`
}

// Report computes the current health. Status is "healthy", "degraded" when
// the stream is down, the last refresh is stale or a probe fails, and
// "unhealthy" when no refresh has completed at all.
func (h *HealthStatus) Report() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	r := Report{
		Status:          "healthy",
		Uptime:          now.Sub(h.startedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		Symbols:         append([]string{}, h.Symbols...),
		Probes:          make(map[string]probeResult, len(h.probes)),
	}
	sort.Strings(r.Symbols)
	if !h.LastTickTime.IsZero() {
		r.LastTickTime = h.LastTickTime.UTC().Format(time.RFC3339)
	}
	if !h.LastRefresh.IsZero() {
		r.LastRefresh = h.LastRefresh.UTC().Format(time.RFC3339)
	}
	if !h.lastCheckAt.IsZero() {
		r.LastCheckAt = h.lastCheckAt.UTC().Format(time.RFC3339)
	}

	degraded := !h.StreamConnected
	for name, p := range h.probes {
		r.Probes[name] = p
		if !p.OK {
			degraded = true
		}
	}
	if h.StaleAfter > 0 && !h.LastRefresh.IsZero() && now.Sub(h.LastRefresh) > h.StaleAfter {
		degraded = true
	}

	switch {
	case h.LastRefresh.IsZero():
		r.Status = "unhealthy"
	case degraded:
		r.Status = "degraded"
	}
	return r
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if report.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
