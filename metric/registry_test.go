package metric

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, r *Registry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestRegistry_CoreMetricsGather(t *testing.T) {
	registry := NewRegistry()
	core := registry.CoreMetrics()

	core.RecordMessageReceived("beverage")
	core.RecordMessageDecoded("beverage", "lifecycle_sample")
	core.RecordMessageSkipped("glass", "unroutable")
	core.RecordCompletion("beverage", "COMPLETE")
	core.RecordQuantityAnomaly()
	core.RecordBucketSealed("sum")
	core.RecordRuleConflict()
	core.RecordSinkWrite("bucket")
	core.RecordFlushDuration(150 * time.Millisecond)
	core.RecordNATSStatus(true)

	names := gatherNames(t, registry)
	for _, want := range []string{
		"lineflow_messages_received_total",
		"lineflow_messages_decoded_total",
		"lineflow_messages_skipped_total",
		"lineflow_pipeline_completions_total",
		"lineflow_pipeline_quantity_anomalies_total",
		"lineflow_window_buckets_sealed_total",
		"lineflow_window_rule_conflicts_total",
		"lineflow_sink_writes_total",
		"lineflow_sink_flush_duration_seconds",
		"lineflow_nats_connected",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.Register("test-component", "test_counter", counter)
	require.NoError(t, err)
	counter.Inc()

	assert.True(t, gatherNames(t, registry)["test_counter"])

	// Same key registers exactly once.
	err = registry.Register("test-component", "test_counter", counter)
	assert.Error(t, err)
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, registry.Register("test-component", "test_gauge", gauge))

	assert.True(t, registry.Unregister("test-component", "test_gauge"))
	assert.False(t, registry.Unregister("test-component", "test_gauge"))
	assert.False(t, gatherNames(t, registry)["test_gauge"])
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", i),
				Help: "A concurrently registered counter",
			})
			errs[i] = registry.Register("worker", fmt.Sprintf("concurrent_counter_%d", i), counter)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "registration %d", i)
	}
}
