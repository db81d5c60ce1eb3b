package observability

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oscarprdev/nft-market-sync/logging"
)

// runtimeMetrics holds the Go runtime metric collectors.
type runtimeMetrics struct {
	goroutines   prometheus.Gauge
	heapAlloc    prometheus.Gauge
	heapSys      prometheus.Gauge
	heapInuse    prometheus.Gauge
	heapObjects  prometheus.Gauge
	stackInuse   prometheus.Gauge
	gcPauseTotal prometheus.Counter
	numGC        prometheus.Counter
	lastGC       prometheus.Gauge
	nextGC       prometheus.Gauge
}

func newRuntimeMetrics(factory promauto.Factory) *runtimeMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "runtime",
			Name:      name,
			Help:      help,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "runtime",
			Name:      name,
			Help:      help,
		})
	}

	return &runtimeMetrics{
		goroutines:   gauge("goroutines", "Number of goroutines"),
		heapAlloc:    gauge("heap_alloc_bytes", "Bytes of allocated heap objects"),
		heapSys:      gauge("heap_sys_bytes", "Bytes of heap memory obtained from the OS"),
		heapInuse:    gauge("heap_inuse_bytes", "Bytes in in-use spans"),
		heapObjects:  gauge("heap_objects", "Number of allocated heap objects"),
		stackInuse:   gauge("stack_inuse_bytes", "Bytes in stack spans"),
		gcPauseTotal: counter("gc_pause_total_nanoseconds", "Cumulative nanoseconds in GC stop-the-world pauses"),
		numGC:        counter("gc_completed_total", "Number of completed GC cycles"),
		lastGC:       gauge("last_gc_timestamp_seconds", "Timestamp of last GC"),
		nextGC:       gauge("next_gc_heap_size_bytes", "Target heap size of the next GC cycle"),
	}
}

// RuntimeMetricsCollectorConfig configures the runtime metrics collector.
type RuntimeMetricsCollectorConfig struct {
	// CollectionInterval is how often to collect runtime metrics.
	CollectionInterval time.Duration
}

// DefaultRuntimeMetricsCollectorConfig returns sensible defaults.
func DefaultRuntimeMetricsCollectorConfig() RuntimeMetricsCollectorConfig {
	return RuntimeMetricsCollectorConfig{
		CollectionInterval: 10 * time.Second,
	}
}

// RuntimeMetricsCollector periodically collects Go runtime metrics.
type RuntimeMetricsCollector struct {
	logger  logging.Logger
	config  RuntimeMetricsCollectorConfig
	metrics *runtimeMetrics

	// Previous values for delta calculations
	lastGCPauseTotal uint64
	lastNumGC        uint32

	// Lifecycle
	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewRuntimeMetricsCollector creates a new runtime metrics collector.
func NewRuntimeMetricsCollector(
	logger logging.Logger,
	config RuntimeMetricsCollectorConfig,
	factory promauto.Factory,
) *RuntimeMetricsCollector {
	if config.CollectionInterval == 0 {
		config.CollectionInterval = 10 * time.Second
	}

	return &RuntimeMetricsCollector{
		logger:  logging.ForComponent(logger, logging.ComponentRuntimeMetrics),
		config:  config,
		metrics: newRuntimeMetrics(factory),
	}
}

// Start begins collecting runtime metrics.
func (c *RuntimeMetricsCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.ctx, c.cancelFn = context.WithCancel(ctx)
	c.running = true

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	c.lastGCPauseTotal = memStats.PauseTotalNs
	c.lastNumGC = memStats.NumGC

	c.wg.Add(1)
	go c.collectLoop()

	c.logger.Info().
		Dur("collection_interval", c.config.CollectionInterval).
		Msg("runtime metrics collector started")

	return nil
}

// Stop stops collecting runtime metrics.
func (c *RuntimeMetricsCollector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancelFn()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info().Msg("runtime metrics collector stopped")
}

func (c *RuntimeMetricsCollector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// collect reads runtime metrics and updates Prometheus gauges.
func (c *RuntimeMetricsCollector) collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	c.metrics.heapAlloc.Set(float64(memStats.HeapAlloc))
	c.metrics.heapSys.Set(float64(memStats.HeapSys))
	c.metrics.heapInuse.Set(float64(memStats.HeapInuse))
	c.metrics.heapObjects.Set(float64(memStats.HeapObjects))
	c.metrics.stackInuse.Set(float64(memStats.StackInuse))

	// GC deltas (as counters)
	if memStats.PauseTotalNs > c.lastGCPauseTotal {
		c.metrics.gcPauseTotal.Add(float64(memStats.PauseTotalNs - c.lastGCPauseTotal))
		c.lastGCPauseTotal = memStats.PauseTotalNs
	}
	if memStats.NumGC > c.lastNumGC {
		c.metrics.numGC.Add(float64(memStats.NumGC - c.lastNumGC))
		c.lastNumGC = memStats.NumGC
	}

	c.metrics.lastGC.Set(float64(memStats.LastGC) / 1e9)
	c.metrics.nextGC.Set(float64(memStats.NextGC))
}

// CollectNow triggers an immediate collection of runtime metrics.
func (c *RuntimeMetricsCollector) CollectNow() {
	c.collect()
}
