package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine.
type Metrics struct {
	// Tick ingest
	TicksTotal   prometheus.Counter
	WSReconnects prometheus.Counter
	StaleTicks   prometheus.Counter

	// Bar building
	BarsTotal *prometheus.CounterVec // labels: kind=append|revise

	// Engine
	ProcessDur    prometheus.Histogram
	ProcessErrors prometheus.Counter
	ResultsTotal  prometheus.Counter
	Pipelines     prometheus.Gauge
	Nodes         prometheus.Gauge
	ConfigReloads *prometheus.CounterVec // labels: result=ok|error
	BackfillBars  prometheus.Counter

	// Sinks
	RedisPublishDur prometheus.Histogram
	RedisErrors     prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
	WSClients       prometheus.Gauge
	WSDrops         prometheus.Counter
	SinkDrops       *prometheus.CounterVec // labels: sink=redis|ws|alert
	AlertsTotal     prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_reconnects_total",
			Help: "Total feed WebSocket reconnection attempts",
		}),
		StaleTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_stale_ticks_total",
			Help: "Ticks rejected because their bar was already closed",
		}),

		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_bars_total",
			Help: "Bar updates applied to pipelines (by kind)",
		}, []string{"kind"}),

		ProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_process_duration_seconds",
			Help:    "Pipeline update latency per bar append or revise",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		ProcessErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_process_errors_total",
			Help: "Bar updates rejected by a pipeline (out of order, revise on empty)",
		}),
		ResultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_results_total",
			Help: "Total indicator results emitted",
		}),
		Pipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_pipelines",
			Help: "Symbol pipelines built",
		}),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_nodes",
			Help: "Derived series across all pipelines",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_config_reloads_total",
			Help: "Pipeline definition reloads (by result)",
		}, []string{"result"}),
		BackfillBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_backfill_bars_total",
			Help: "Stored bars replayed into pipelines at startup",
		}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_redis_publish_duration_seconds",
			Help:    "Redis pipeline latency per result batch",
			Buckets: prometheus.DefBuckets,
		}),
		RedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_errors_total",
			Help: "Failed Redis publishes",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_ws_clients",
			Help: "Connected WebSocket result subscribers",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_drops_total",
			Help: "Messages dropped for slow WebSocket clients",
		}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_sink_drops_total",
			Help: "Results a sink missed because its queue was full",
		}, []string{"sink"}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_alerts_total",
			Help: "Signal alerts raised on committed bars",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.WSReconnects,
		m.StaleTicks,
		m.BarsTotal,
		m.ProcessDur,
		m.ProcessErrors,
		m.ResultsTotal,
		m.Pipelines,
		m.Nodes,
		m.ConfigReloads,
		m.BackfillBars,
		m.RedisPublishDur,
		m.RedisErrors,
		m.SQLiteCommitDur,
		m.WSClients,
		m.WSDrops,
		m.SinkDrops,
		m.AlertsTotal,
	)

	return m
}

// ObserveProcess records one pipeline update.
func (m *Metrics) ObserveProcess(revise bool, d time.Duration, results int, err error) {
	kind := "append"
	if revise {
		kind = "revise"
	}
	m.ProcessDur.Observe(d.Seconds())
	if err != nil {
		m.ProcessErrors.Inc()
		return
	}
	m.BarsTotal.WithLabelValues(kind).Inc()
	m.ResultsTotal.Add(float64(results))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	Symbols        int       `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// Optional dependencies are not required for a healthy status.
	RequireRedis  bool `json:"-"`
	RequireSQLite bool `json:"-"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(n int) {
	h.mu.Lock()
	h.Symbols = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RequireRedis && !h.RedisConnected
	sqliteDown := h.RequireSQLite && !h.SQLiteOK
	if !h.FeedConnected || !h.EngineOK || redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.EngineOK && (redisDown || sqliteDown) {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		EngineOK        bool    `json:"engine_ok"`
		Symbols         int     `json:"symbols"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. extra handlers (e.g. the
// WebSocket result stream) are mounted on the same mux.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, extra map[string]http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: NewMux(health, gatherer, extra),
		},
	}
}

// NewMux builds the handler tree served by Server.
func NewMux(health *HealthStatus, gatherer prometheus.Gatherer, extra map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return mux
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
