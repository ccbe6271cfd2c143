// Package metrics provides Prometheus-based metrics collection for netscanner.
// It tracks connection probes, host outcomes, reachability checks and worker
// pool occupancy, and can expose them over HTTP while a scan runs.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/netscanner/internal/logging"
)

const (
	// Namespace for all netscanner metrics
	namespace = "netscanner"

	// Subsystems
	subsystemScan      = "scan"
	subsystemDiscovery = "discovery"
	subsystemPool      = "pool"
	subsystemSystem    = "system"

	serverShutdownTimeout = 5 * time.Second
	readHeaderTimeout     = 5 * time.Second
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Scan metrics
	probesTotal  *prometheus.CounterVec
	hostsTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	activeHosts  prometheus.Gauge

	// Discovery metrics
	reachabilityTotal *prometheus.CounterVec

	// Pool metrics
	poolActive    prometheus.Gauge
	poolQueued    prometheus.Gauge
	poolCompleted *prometheus.CounterVec

	// System metrics
	goroutines prometheus.Gauge

	startTime time.Time
	mu        sync.Mutex
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.initDiscoveryMetrics()
	pm.initPoolMetrics()
	pm.goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemSystem,
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	})

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// initScanMetrics initializes scan-related metrics
func (pm *PrometheusMetrics) initScanMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "probes_total",
			Help:      "Total number of TCP connection probes by result",
		},
		[]string{"result"},
	)

	pm.hostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "hosts_total",
			Help:      "Total number of hosts processed by final status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scan requests in seconds by target kind",
			Buckets:   []float64{0.1, 0.5, 1.0, 3.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
		[]string{"kind"},
	)

	pm.activeHosts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active_hosts",
			Help:      "Number of hosts currently being scanned",
		},
	)
}

// initDiscoveryMetrics initializes reachability probe metrics
func (pm *PrometheusMetrics) initDiscoveryMetrics() {
	pm.reachabilityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "reachability_total",
			Help:      "Total number of reachability probes by method and result",
		},
		[]string{"method", "result"},
	)
}

// initPoolMetrics initializes worker pool metrics
func (pm *PrometheusMetrics) initPoolMetrics() {
	pm.poolActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "active_jobs",
			Help:      "Number of jobs currently holding an execution slot",
		},
	)

	pm.poolQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "queued_jobs",
			Help:      "Number of jobs waiting for an execution slot",
		},
	)

	pm.poolCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "jobs_completed_total",
			Help:      "Total number of completed jobs by type and status",
		},
		[]string{"job_type", "status"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.probesTotal,
		pm.hostsTotal,
		pm.scanDuration,
		pm.activeHosts,
		pm.reachabilityTotal,
		pm.poolActive,
		pm.poolQueued,
		pm.poolCompleted,
		pm.goroutines,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Scan Metrics Methods

// IncrementProbes increments the probe counter for a result (open, closed, resolution_failed).
func (pm *PrometheusMetrics) IncrementProbes(result string) {
	pm.probesTotal.WithLabelValues(result).Inc()
}

// IncrementHosts increments the host counter for a final status.
func (pm *PrometheusMetrics) IncrementHosts(status string) {
	pm.hostsTotal.WithLabelValues(status).Inc()
}

// RecordScanDuration records the duration of a scan request.
func (pm *PrometheusMetrics) RecordScanDuration(kind string, duration time.Duration) {
	pm.scanDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddActiveHosts adjusts the number of hosts in flight.
func (pm *PrometheusMetrics) AddActiveHosts(delta int) {
	pm.activeHosts.Add(float64(delta))
}

// Discovery Metrics Methods

// IncrementReachability increments the reachability counter.
func (pm *PrometheusMetrics) IncrementReachability(method, result string) {
	pm.reachabilityTotal.WithLabelValues(method, result).Inc()
}

// Pool Metrics Methods

// AddPoolActive adjusts the number of jobs holding a slot.
func (pm *PrometheusMetrics) AddPoolActive(delta int) {
	pm.poolActive.Add(float64(delta))
}

// AddPoolQueued adjusts the number of queued jobs.
func (pm *PrometheusMetrics) AddPoolQueued(delta int) {
	pm.poolQueued.Add(float64(delta))
}

// IncrementJobsCompleted counts a finished pool job.
func (pm *PrometheusMetrics) IncrementJobsCompleted(jobType, status string) {
	pm.poolCompleted.WithLabelValues(jobType, status).Inc()
}

// UpdateSystemMetrics refreshes runtime gauges.
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
}

// GetUptime returns the time since the metrics were created.
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// Handler returns an HTTP handler exposing the registry.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound so callers know the endpoint is reachable.
func (pm *PrometheusMetrics) Serve(ctx context.Context, addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		pm.UpdateSystemMetrics()
		pm.Handler().ServeHTTP(w, r)
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("Metrics endpoint stopped", "addr", listener.Addr().String(), "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		logging.Debug("Metrics endpoint closed", "addr", listener.Addr().String(), "uptime", pm.GetUptime())
	}()

	return listener.Addr(), nil
}

// Global instance for easy access
var (
	globalMetrics *PrometheusMetrics
	metricsOnce   sync.Once
)

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
