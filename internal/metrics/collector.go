package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/utils"
)

// Collector records adapter operations and table compaction. A nil
// *Collector is valid and records nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter    *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	operationSize       *prometheus.HistogramVec
	errorCounter        *prometheus.CounterVec
	compactionDeletes   *prometheus.CounterVec
	compactionFailures  *prometheus.CounterVec
	appendRecordsListed *prometheus.HistogramVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// DefaultConfig returns the metrics defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "cloudtable",
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks one backend/operation pair
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalBytes    int64         `json:"total_bytes"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled
}

// Registry exposes the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.enabled() {
		return nil
	}
	return c.registry
}

// Handler returns the Prometheus scrape handler.
func (c *Collector) Handler() http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves the scrape endpoint until Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// RecordOperation records one adapter call. err decides the status label and
// is classified by its StoreError code.
func (c *Collector) RecordOperation(backend, operation string, duration time.Duration, bytes int64, err error) {
	if !c.enabled() {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	c.mu.Lock()
	key := backend + "/" + operation
	m, ok := c.operations[key]
	if !ok {
		m = &OperationMetrics{}
		c.operations[key] = m
	}
	m.Count++
	m.TotalDuration += duration
	m.TotalBytes += bytes
	if err != nil {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"backend":   backend,
		"operation": operation,
		"status":    status,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"backend":   backend,
		"operation": operation,
	}).Observe(duration.Seconds())

	if bytes > 0 {
		c.operationSize.With(prometheus.Labels{
			"backend":   backend,
			"operation": operation,
		}).Observe(float64(bytes))
	}

	if err != nil {
		c.errorCounter.With(prometheus.Labels{
			"backend":   backend,
			"operation": operation,
			"code":      string(errors.CodeOf(err)),
		}).Inc()
	}
}

// RecordCompaction records one compaction pass over an append folder.
func (c *Collector) RecordCompaction(backend string, listed, deleted int, err error) {
	if !c.enabled() {
		return
	}

	c.appendRecordsListed.With(prometheus.Labels{"backend": backend}).Observe(float64(listed))
	if deleted > 0 {
		c.compactionDeletes.With(prometheus.Labels{"backend": backend}).Add(float64(deleted))
	}
	if err != nil {
		c.compactionFailures.With(prometheus.Labels{"backend": backend}).Inc()
	}
}

// Observe times fn and records it. It returns fn's error unchanged.
func (c *Collector) Observe(backend, operation string, bytes int64, fn func() error) error {
	start := time.Now()
	err := fn()
	c.RecordOperation(backend, operation, time.Since(start), bytes, err)
	return err
}

// GetMetrics returns a snapshot of the internal per-operation tracking.
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	out := make(map[string]OperationMetrics)
	if !c.enabled() {
		return out
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics resets the internal tracking; Prometheus counters are monotonic
// and stay as they are.
func (c *Collector) ResetMetrics() {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	constLabels := prometheus.Labels(c.config.Labels)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "adapter_operations_total",
			Help:        "Total number of storage adapter operations",
			ConstLabels: constLabels,
		},
		[]string{"backend", "operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "adapter_operation_duration_seconds",
			Help:        "Duration of storage adapter operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			ConstLabels: constLabels,
		},
		[]string{"backend", "operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "adapter_operation_bytes",
			Help:        "Payload size of storage adapter reads and writes",
			Buckets:     prometheus.ExponentialBuckets(64, 4, 12), // 64B to ~268MB
			ConstLabels: constLabels,
		},
		[]string{"backend", "operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "adapter_errors_total",
			Help:        "Storage adapter errors by normalized code",
			ConstLabels: constLabels,
		},
		[]string{"backend", "operation", "code"},
	)

	c.compactionDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "compaction_deleted_records_total",
			Help:        "Append records removed by compaction",
			ConstLabels: constLabels,
		},
		[]string{"backend"},
	)

	c.compactionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "compaction_failures_total",
			Help:        "Compaction passes that did not complete",
			ConstLabels: constLabels,
		},
		[]string{"backend"},
	)

	c.appendRecordsListed = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "compaction_records_listed",
			Help:        "Append records present when compaction started",
			Buckets:     []float64{0, 1, 10, 100, 500, 999, 5000},
			ConstLabels: constLabels,
		},
		[]string{"backend"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.errorCounter,
		c.compactionDeletes,
		c.compactionFailures,
		c.appendRecordsListed,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// debugOperationsHandler prints GetMetrics as a table. "?reset=true" clears
// the tracking after the snapshot is taken.
func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	ops := c.GetMetrics()
	c.mu.RLock()
	since := c.lastReset
	c.mu.RUnlock()
	if r.URL.Query().Get("reset") == "true" {
		c.ResetMetrics()
	}

	w.Header().Set("Content-Type", "text/plain")

	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Storage Adapter Operations\n")
	writef("==========================\n\n")
	writef("Since: %v\n\n", since.Format(time.RFC3339))

	if len(ops) == 0 {
		writef("No operations recorded.\n")
		return
	}

	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writef("%-32s %10s %10s %12s %12s\n", "Operation", "Count", "Errors", "Avg Duration", "Bytes")
	for _, k := range keys {
		op := ops[k]
		writef("%-32s %10d %10d %12v %12s\n", k, op.Count, op.Errors, op.AvgDuration, utils.FormatBytes(op.TotalBytes))
	}
}
