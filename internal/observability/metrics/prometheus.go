package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/constants"
)

// PrometheusMetrics collects the metrics of one CLI invocation
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	config   *PrometheusConfig
	mu       sync.RWMutex

	// Pipeline metrics
	rowsSampledTotal       *prometheus.CounterVec
	leakedRowsRemovedTotal prometheus.Counter
	piiColumnsFlaggedTotal *prometheus.CounterVec
	anomaliesInjectedTotal *prometheus.CounterVec
	stageDuration          *prometheus.HistogramVec
	qualityScore           *prometheus.GaugeVec
	cacheRequestsTotal     *prometheus.CounterVec
	storageOperationsTotal *prometheus.CounterVec
	errorsTotal            *prometheus.CounterVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" mapstructure:"subsystem"`
	// Textfile is where the registry is written on Flush; empty disables it
	Textfile  string `json:"textfile" mapstructure:"textfile"`
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with its own registry
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// RecordRowsSampled counts rows drawn from a synthesizer
func (pm *PrometheusMetrics) RecordRowsSampled(algorithm string, rows int) {
	pm.rowsSampledTotal.WithLabelValues(algorithm).Add(float64(rows))
}

// RecordLeakedRows counts synthetic rows dropped by the leakage audit
func (pm *PrometheusMetrics) RecordLeakedRows(rows int) {
	pm.leakedRowsRemovedTotal.Add(float64(rows))
}

// RecordPIIColumn counts a column flagged with a sensitivity tag
func (pm *PrometheusMetrics) RecordPIIColumn(tag string) {
	pm.piiColumnsFlaggedTotal.WithLabelValues(tag).Inc()
}

// RecordAnomalies counts injected anomaly cells
func (pm *PrometheusMetrics) RecordAnomalies(kind string, cells int) {
	pm.anomaliesInjectedTotal.WithLabelValues(kind).Add(float64(cells))
}

// ObserveStage records the duration of a pipeline stage started at start
func (pm *PrometheusMetrics) ObserveStage(command, stage string, start time.Time) {
	pm.stageDuration.WithLabelValues(command, stage).Observe(time.Since(start).Seconds())
}

// SetQualityScore records the latest score of a quality property
func (pm *PrometheusMetrics) SetQualityScore(property string, score float64) {
	pm.qualityScore.WithLabelValues(property).Set(score)
}

// RecordCacheRequest counts a statistics cache lookup by result (hit, miss, error)
func (pm *PrometheusMetrics) RecordCacheRequest(result string) {
	pm.cacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordStorageOperation counts a blob read or write
func (pm *PrometheusMetrics) RecordStorageOperation(backend, operation, status string) {
	pm.storageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordError counts a failure by component and error type
func (pm *PrometheusMetrics) RecordError(component, errorType string) {
	pm.errorsTotal.WithLabelValues(component, errorType).Inc()
}

// Flush writes the registry in text exposition format to the configured
// textfile. It is a no-op when no textfile is configured.
func (pm *PrometheusMetrics) Flush() error {
	pm.mu.RLock()
	path := pm.config.Textfile
	pm.mu.RUnlock()

	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	pm.logger.WithField("path", path).Debug("Metrics written")
	return nil
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	pm.rowsSampledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_sampled_total",
			Help:      "Total number of rows sampled from synthesizers",
		},
		[]string{"algorithm"},
	)

	pm.leakedRowsRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "leaked_rows_removed_total",
			Help:      "Total number of synthetic rows removed because they copy an original row",
		},
	)

	pm.piiColumnsFlaggedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pii_columns_flagged_total",
			Help:      "Total number of columns flagged as PII",
		},
		[]string{"tag"},
	)

	pm.anomaliesInjectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anomalies_injected_total",
			Help:      "Total number of anomaly cells injected",
		},
		[]string{"kind"},
	)

	pm.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
		},
		[]string{"command", "stage"},
	)

	pm.qualityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quality_score",
			Help:      "Latest synthetic data quality score",
		},
		[]string{"property"},
	)

	pm.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_requests_total",
			Help:      "Total number of statistics cache lookups",
		},
		[]string{"result"},
	)

	pm.storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	pm.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "type"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() error {
	metrics := []prometheus.Collector{
		pm.rowsSampledTotal,
		pm.leakedRowsRemovedTotal,
		pm.piiColumnsFlaggedTotal,
		pm.anomaliesInjectedTotal,
		pm.stageDuration,
		pm.qualityScore,
		pm.cacheRequestsTotal,
		pm.storageOperationsTotal,
		pm.errorsTotal,
	}

	for _, metric := range metrics {
		if err := pm.registry.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// GetConfig returns the configuration
func (pm *PrometheusMetrics) GetConfig() *PrometheusConfig {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.config
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: constants.MetricsNamespace,
	}
}
