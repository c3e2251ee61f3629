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

// Metrics holds all Prometheus metrics for the ingestion/structural pipeline.
type Metrics struct {
	// Market fan-out core (ingress + distributor)
	BarsIngestedTotal    prometheus.Counter
	BarsPublishedTotal   prometheus.Counter
	BarsDroppedTotal     *prometheus.CounterVec // labels: policy=newest|oldest
	BackpressureEvents   prometheus.Counter
	FanoutDropsTotal     *prometheus.CounterVec // labels: channel
	ActiveChannels       prometheus.Gauge
	IngressLen           prometheus.Gauge
	IngressCapacity      prometheus.Gauge

	// Resilient adapter lifecycle
	ReconnectTotal      prometheus.Counter
	ConnectFailures     prometheus.Counter
	HeartbeatFailures   prometheus.Counter
	SubscriptionReplays prometheus.Counter

	// Structural pipeline (CBar/Fractal/Swing/Trend/KeyZone/SD)
	StageComputeDur *prometheus.HistogramVec // labels: stage
	SDScore         *prometheus.GaugeVec     // labels: symbol, tf
	SDStageFailures *prometheus.CounterVec   // labels: reason

	// Persistence
	RedisWriteDur            prometheus.Histogram
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	BarLogWriteTotal         prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_bars_ingested_total",
			Help: "Total bars pushed into the ingress ring",
		}),
		BarsPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_bars_published_total",
			Help: "Total bars broadcast to distributor subscribers",
		}),
		BarsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "struxis_bars_dropped_total",
			Help: "Bars dropped by the ingress ring, by overload policy outcome",
		}, []string{"policy"}),
		BackpressureEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_backpressure_events_total",
			Help: "Times the ingress ring was full on push and a bar was dropped by the overload policy",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "struxis_fanout_drops_total",
			Help: "Bars dropped per distributor channel due to a full subscriber buffer",
		}, []string{"channel"}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "struxis_active_channels",
			Help: "Number of distributor channels with at least one live subscriber",
		}),
		IngressLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "struxis_ingress_len",
			Help: "Current occupancy of the ingress ring",
		}),
		IngressCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "struxis_ingress_capacity",
			Help: "Configured capacity of the ingress ring",
		}),

		ReconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_adapter_reconnect_total",
			Help: "Total reconnect cycles performed by the resilient adapter wrapper",
		}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_adapter_connect_failures_total",
			Help: "Total failed connect attempts across all reconnect cycles",
		}),
		HeartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_adapter_heartbeat_failures_total",
			Help: "Total heartbeat failures that forced a reconnect",
		}),
		SubscriptionReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_adapter_subscription_replays_total",
			Help: "Total subscriptions replayed after a reconnect",
		}),

		StageComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "struxis_stage_compute_duration_seconds",
			Help:    "Per-bar compute latency of a structural pipeline stage",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}, []string{"stage"}),
		SDScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "struxis_sd_score",
			Help: "Current supply/demand score in [-1, 1]",
		}, []string{"symbol", "tf"}),
		SDStageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "struxis_sd_stage_failures_total",
			Help: "Times the SD stage returned Failed instead of a score",
		}, []string{"reason"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "struxis_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "struxis_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "struxis_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
		BarLogWriteTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "struxis_bar_log_write_total",
			Help: "Total bars appended to the persisted bar log",
		}),
	}

	prometheus.MustRegister(
		m.BarsIngestedTotal,
		m.BarsPublishedTotal,
		m.BarsDroppedTotal,
		m.BackpressureEvents,
		m.FanoutDropsTotal,
		m.ActiveChannels,
		m.IngressLen,
		m.IngressCapacity,
		m.ReconnectTotal,
		m.ConnectFailures,
		m.HeartbeatFailures,
		m.SubscriptionReplays,
		m.StageComputeDur,
		m.SDScore,
		m.SDStageFailures,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.BarLogWriteTotal,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	AdapterConnected bool      `json:"adapter_connected"`
	LastBarTime      time.Time `json:"last_bar_time"`
	RedisConnected   bool      `json:"redis_connected"`
	SQLiteOK         bool      `json:"sqlite_ok"`
	StructuralOK     bool      `json:"structural_ok"`
	EnabledTFs       []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetAdapterConnected(v bool) {
	h.mu.Lock()
	h.AdapterConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStructuralOK(v bool) {
	h.mu.Lock()
	h.StructuralOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
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

// CheckSQLite runs a trivial query and records latency + health.
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

// StartLivenessChecker runs periodic dependency checks.
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

	if !h.AdapterConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		AdapterConnected bool   `json:"adapter_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		StructuralOK    bool    `json:"structural_ok"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		AdapterConnected: h.AdapterConnected,
		LastBarTime:      h.LastBarTime.Format(time.RFC3339),
		BarAge:           barAge,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
		StructuralOK:     h.StructuralOK,
		EnabledTFs:       h.EnabledTFs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
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
