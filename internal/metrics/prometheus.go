// Package metrics provides Prometheus-based metrics collection for newhosts.
// It records probe outcomes, worker pool activity, scan cycle timings, diff
// classifications and store operations.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all newhosts metrics
	namespace = "newhosts"

	// Subsystems
	subsystemProbe    = "probe"
	subsystemPool     = "pool"
	subsystemCycle    = "cycle"
	subsystemWatch    = "watch"
	subsystemDatabase = "database"
	subsystemSystem   = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	// Worker pool metrics
	poolSize   *prometheus.GaugeVec
	poolActive *prometheus.GaugeVec

	// Cycle metrics
	cyclesTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	hostsSeen     prometheus.Gauge

	// Watch metrics
	hostStatus *prometheus.CounterVec

	// Database metrics
	dbQueries       *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	// System metrics
	goroutines prometheus.Gauge
	uptime     prometheus.Gauge

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

	pm.initProbeMetrics()
	pm.initCycleMetrics()
	pm.initDatabaseMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// initProbeMetrics initializes probe and worker pool metrics
func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of probes executed by tool and outcome",
		},
		[]string{LabelTool, LabelOutcome},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of individual probes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{LabelTool},
	)

	pm.poolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "workers",
			Help:      "Configured number of workers per pool",
		},
		[]string{LabelPool},
	)

	pm.poolActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPool,
			Name:      "active_items",
			Help:      "Items currently being executed per pool",
		},
		[]string{LabelPool},
	)
}

// initCycleMetrics initializes scan cycle and watch metrics
func (pm *PrometheusMetrics) initCycleMetrics() {
	pm.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemCycle,
			Name:      "total",
			Help:      "Total number of scan cycles by status",
		},
		[]string{LabelStatus},
	)

	pm.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemCycle,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of complete scan cycles",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	pm.hostsSeen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemCycle,
			Name:      "hosts_with_signal",
			Help:      "Addresses with a reachability, MAC or hostname signal in the last cycle",
		},
	)

	pm.hostStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemWatch,
			Name:      "host_status_total",
			Help:      "Per-address diff classifications",
		},
		[]string{LabelStatus},
	)
}

// initDatabaseMetrics initializes database-related metrics
func (pm *PrometheusMetrics) initDatabaseMetrics() {
	pm.dbQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "queries_total",
			Help:      "Total number of store operations by operation and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	pm.dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "query_duration_seconds",
			Help:      "Duration of store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelOperation},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Number of active goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.probesTotal,
		pm.probeDuration,
		pm.poolSize,
		pm.poolActive,
		pm.cyclesTotal,
		pm.cycleDuration,
		pm.hostsSeen,
		pm.hostStatus,
		pm.dbQueries,
		pm.dbQueryDuration,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// RecordProbe records the outcome and duration of one probe.
func (pm *PrometheusMetrics) RecordProbe(tool string, success bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	pm.probesTotal.WithLabelValues(tool, outcome).Inc()
	pm.probeDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// SetPoolSize records the configured worker count of a pool.
func (pm *PrometheusMetrics) SetPoolSize(pool string, size int) {
	pm.poolSize.WithLabelValues(pool).Set(float64(size))
}

// AddPoolActive adjusts the number of in-flight items of a pool.
func (pm *PrometheusMetrics) AddPoolActive(pool string, delta float64) {
	pm.poolActive.WithLabelValues(pool).Add(delta)
}

// RecordCycle records a finished scan cycle.
func (pm *PrometheusMetrics) RecordCycle(success bool, duration time.Duration, hostsWithSignal int) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	pm.cyclesTotal.WithLabelValues(status).Inc()
	if success {
		pm.cycleDuration.Observe(duration.Seconds())
		pm.hostsSeen.Set(float64(hostsWithSignal))
	}
}

// IncrementHostStatus counts one diff classification.
func (pm *PrometheusMetrics) IncrementHostStatus(status string) {
	pm.hostStatus.WithLabelValues(status).Inc()
}

// RecordDatabaseQuery records a store operation.
func (pm *PrometheusMetrics) RecordDatabaseQuery(operation string, duration time.Duration, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	pm.dbQueries.WithLabelValues(operation, status).Inc()
	pm.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
