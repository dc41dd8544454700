package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketdash/internal/analysis"
	"marketdash/internal/feed/feargreed"
	"marketdash/internal/metrics"
	"marketdash/internal/model"
)

// ErrNoHistory is returned by a Backend without an alert journal.
var ErrNoHistory = errors.New("alert history not available")

// Backend is the dashboard state the REST routes read.
type Backend interface {
	Analysis(symbol string) map[model.Timeframe]*analysis.Analysis
	Levels(symbol string, price float64) analysis.LevelReport
	Alerts(symbol string) []model.Alert
	AlertHistory(ctx context.Context, symbol string, limit int) ([]model.Alert, error)
	Performance(symbol string, hours int) ([]analysis.HourPerformance, bool)
	Pairs(ctx context.Context) ([]string, error)
	FearGreed() *feargreed.Index
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Server is the HTTP front of the dashboard.
type Server struct {
	router  *gin.Engine
	srv     *http.Server
	hub     *Hub
	backend Backend
}

// NewServer wires the routes. health and m may be nil.
func NewServer(addr string, hub *Hub, backend Backend, health *metrics.HealthStatus, m *metrics.Metrics) *Server {
	s := &Server{router: gin.New(), hub: hub, backend: backend}
	s.router.Use(gin.Recovery(), requestLogger(), cors())

	s.router.GET("/ws", s.handleWS)

	api := s.router.Group("/api")
	api.GET("/analysis/:symbol", s.handleAnalysis)
	api.GET("/levels/:symbol", s.handleLevels)
	api.GET("/alerts/:symbol", s.handleAlerts)
	api.GET("/performance/:symbol", s.handlePerformance)
	api.GET("/pairs", s.handlePairs)
	api.GET("/feargreed", s.handleFearGreed)
	api.GET("/channels", s.handleChannels)
	api.GET("/missed", s.handleMissed)

	if health != nil {
		s.router.GET("/healthz", gin.WrapH(health))
	}
	if m != nil {
		s.router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("[gateway] listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[gateway] server error", "err", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/ws" {
			return
		}
		slog.Debug("[gateway] request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start),
		)
	}
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return n, true
}

func (s *Server) handleWS(c *gin.Context) {
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = t
	}
	var symbols []string
	if v := c.Query("symbols"); v != "" {
		symbols = strings.Split(v, ",")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("[gateway] ws upgrade error", "err", err)
		return
	}
	s.hub.Serve(conn, symbols, since)
}

func (s *Server) handleAnalysis(c *gin.Context) {
	symbol := symbolParam(c)
	snap := s.backend.Analysis(symbol)
	if len(snap) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for " + symbol})
		return
	}
	if v := c.Query("tf"); v != "" {
		tf, err := model.ParseTimeframe(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, ok := snap[tf]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no " + string(tf) + " analysis for " + symbol})
			return
		}
		c.JSON(http.StatusOK, a)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleLevels(c *gin.Context) {
	symbol := symbolParam(c)
	var price float64
	if v := c.Query("price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return
		}
		price = p
	}
	if len(s.backend.Analysis(symbol)) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for " + symbol})
		return
	}
	c.JSON(http.StatusOK, s.backend.Levels(symbol, price))
}

func (s *Server) handleAlerts(c *gin.Context) {
	symbol := symbolParam(c)
	if c.Query("history") == "" {
		alerts := s.backend.Alerts(symbol)
		if alerts == nil {
			alerts = []model.Alert{}
		}
		c.JSON(http.StatusOK, alerts)
		return
	}

	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	alerts, err := s.backend.AlertHistory(c.Request.Context(), symbol, limit)
	switch {
	case errors.Is(err, ErrNoHistory):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case err != nil:
		slog.Error("[gateway] alert history", "symbol", symbol, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert history unavailable"})
	default:
		c.JSON(http.StatusOK, alerts)
	}
}

func (s *Server) handlePerformance(c *gin.Context) {
	symbol := symbolParam(c)
	hours, ok := intQuery(c, "hours", 24)
	if !ok {
		return
	}
	perf, found := s.backend.Performance(symbol, hours)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no hourly candles for " + symbol})
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) handlePairs(c *gin.Context) {
	pairs, err := s.backend.Pairs(c.Request.Context())
	if err != nil {
		slog.Error("[gateway] pairs", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "pair listing unavailable"})
		return
	}
	c.JSON(http.StatusOK, pairs)
}

func (s *Server) handleFearGreed(c *gin.Context) {
	idx := s.backend.FearGreed()
	if idx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "fear & greed index not available"})
		return
	}
	c.JSON(http.StatusOK, idx)
}

func (s *Server) handleChannels(c *gin.Context) {
	channels := s.hub.Channels()
	out := make(map[string]int64, len(channels))
	for _, ch := range channels {
		out[ch] = s.hub.ChannelSeq(ch)
	}
	c.JSON(http.StatusOK, out)
}

// handleMissed returns buffered envelopes for ?channel= with channel_seq
// in [from, to] so clients can backfill a gap.
func (s *Server) handleMissed(c *gin.Context) {
	channel := c.Query("channel")
	from, err1 := strconv.ParseInt(c.Query("from"), 10, 64)
	to, err2 := strconv.ParseInt(c.Query("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil || from > to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel, from and to are required"})
		return
	}

	envelopes := s.hub.Replay(channel, from, to)
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	c.Writer.WriteString("[")
	for i, e := range envelopes {
		if i > 0 {
			c.Writer.WriteString(",")
		}
		c.Writer.Write(e)
	}
	c.Writer.WriteString("]")
}
