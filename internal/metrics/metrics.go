// Package metrics provides Prometheus metrics and health endpoints for the
// trap receiver.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig defines the configuration for the metrics endpoint.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	ListenAddress string `json:"listen_address"`
	MetricsPath   string `json:"metrics_path"`
	HealthPath    string `json:"health_path"`
	Namespace     string `json:"namespace"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:       true,
		ListenAddress: ":9090",
		MetricsPath:   "/metrics",
		HealthPath:    "/health",
		Namespace:     "triton",
	}
}

// TrapMetrics contains trap pipeline metrics.
type TrapMetrics struct {
	TrapsReceived  prometheus.Counter
	TrapsHandled   prometheus.Counter
	TrapsDropped   prometheus.Counter
	TrapsFailed    prometheus.Counter
	ParseErrors    prometheus.Counter
	ProcessingTime prometheus.Histogram
	PacketSize     prometheus.Histogram
	QueueLength    prometheus.Gauge
	TrapsBySource  *prometheus.CounterVec
	TrapsByGeneric *prometheus.CounterVec
}

// StorageMetrics contains trap store metrics.
type StorageMetrics struct {
	EventsStored  prometheus.Counter
	StorageErrors prometheus.Counter
}

// Metrics owns the Prometheus registry and the HTTP endpoint serving it.
type Metrics struct {
	config   *MetricsConfig
	logger   logging.Logger
	registry *prometheus.Registry
	server   *http.Server

	Traps   *TrapMetrics
	Storage *StorageMetrics

	ready bool
	mu    sync.RWMutex
	wg    sync.WaitGroup
}

// NewMetrics creates the registry, registers all collectors and prepares
// the HTTP server.
func NewMetrics(cfg config.Provider, logger logging.Logger) (*Metrics, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	mc := DefaultMetricsConfig()

	if enabled, err := cfg.GetBool("metrics.enabled", mc.Enabled); err == nil {
		mc.Enabled = enabled
	}
	if addr, err := cfg.GetString("metrics.listen_address", mc.ListenAddress); err == nil {
		mc.ListenAddress = addr
	}
	if path, err := cfg.GetString("metrics.metrics_path", mc.MetricsPath); err == nil {
		mc.MetricsPath = path
	}
	if path, err := cfg.GetString("metrics.health_path", mc.HealthPath); err == nil {
		mc.HealthPath = path
	}
	if ns, err := cfg.GetString("metrics.namespace", mc.Namespace); err == nil {
		mc.Namespace = ns
	}

	m := &Metrics{
		config:   mc,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	if err := m.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initializeMetrics creates and registers all collectors.
func (m *Metrics) initializeMetrics() error {
	namespace := m.config.Namespace

	m.Traps = &TrapMetrics{
		TrapsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_received_total",
			Help:      "Total number of SNMP trap datagrams received",
		}),
		TrapsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_handled_total",
			Help:      "Total number of SNMP traps successfully handled",
		}),
		TrapsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_dropped_total",
			Help:      "Total number of traps dropped at the hand-off queue",
		}),
		TrapsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_failed_total",
			Help:      "Total number of traps that failed handling",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trap_parse_errors_total",
			Help:      "Total number of datagrams that failed to decode",
		}),
		ProcessingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trap_processing_duration_seconds",
			Help:      "Time spent handling SNMP traps",
			Buckets:   prometheus.DefBuckets,
		}),
		PacketSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trap_packet_size_bytes",
			Help:      "Size of SNMP trap datagrams",
			Buckets:   []float64{64, 128, 256, 512, 1024, 2048, 4096},
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trap_queue_length",
			Help:      "Current length of the hand-off queue",
		}),
		TrapsBySource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_by_source_total",
			Help:      "Total number of traps by source IP",
		}, []string{"source_ip"}),
		TrapsByGeneric: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_by_generic_total",
			Help:      "Total number of traps by generic trap category",
		}, []string{"generic_trap"}),
	}

	m.Storage = &StorageMetrics{
		EventsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_stored_total",
			Help:      "Total number of trap events stored in the database",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of storage errors",
		}),
	}

	collectors := []prometheus.Collector{
		m.Traps.TrapsReceived,
		m.Traps.TrapsHandled,
		m.Traps.TrapsDropped,
		m.Traps.TrapsFailed,
		m.Traps.ParseErrors,
		m.Traps.ProcessingTime,
		m.Traps.PacketSize,
		m.Traps.QueueLength,
		m.Traps.TrapsBySource,
		m.Traps.TrapsByGeneric,
		m.Storage.EventsStored,
		m.Storage.StorageErrors,
	}

	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return nil
}

// Start serves the metrics and health endpoints, when enabled.
func (m *Metrics) Start(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.MetricsPath, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc(m.config.HealthPath, m.handleHealth)

	m.server = &http.Server{
		Addr:    m.config.ListenAddress,
		Handler: mux,
	}

	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", "error", err.Error())
		}
	}()

	m.logger.Info("metrics endpoint started", "addr", m.config.ListenAddress, "path", m.config.MetricsPath)
	return nil
}

// Stop shuts down the HTTP endpoint.
func (m *Metrics) Stop() error {
	m.mu.Lock()
	m.ready = false
	m.mu.Unlock()

	if m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.server.Shutdown(ctx)
	m.wg.Wait()
	return err
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	ready := m.ready
	m.mu.RUnlock()

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
