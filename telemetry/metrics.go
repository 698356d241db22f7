package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names recorded by the synthesis loop and its adapters
const (
	MetricTasks            = "querysynth.tasks"
	MetricTaskDuration     = "querysynth.task.duration_ms"
	MetricIterations       = "querysynth.iterations"
	MetricActions          = "querysynth.actions"
	MetricActionDuration   = "querysynth.action.duration_ms"
	MetricExecutions       = "querysynth.executions"
	MetricRepairs          = "querysynth.repairs"
	MetricPromptTokens     = "querysynth.prompt.tokens"
	MetricAIRequests       = "querysynth.ai.requests"
	MetricAIRequestLatency = "querysynth.ai.request.duration_ms"
	MetricProviderSelected = "querysynth.ai.provider.selected"
	MetricProgressDropped  = "querysynth.progress.dropped"
)

// MetricInstruments holds cached metric instruments for efficient recording
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewMetricInstruments creates a new metrics instrument cache
func NewMetricInstruments(meterName string) *MetricInstruments {
	return &MetricInstruments{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a counter metric
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Int64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution (like latencies)
func (m *MetricInstruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			var err error
			histogram, err = m.meter.Float64Histogram(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}

// InstrumentCount returns how many instruments have been created. Used in tests.
func (m *MetricInstruments) InstrumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.counters) + len(m.histograms)
}

var defaultInstruments = NewMetricInstruments(TracerName)

// Counter increments a counter metric by 1.
// Labels should be provided as key-value pairs.
// Example: Counter(MetricActions, "action", "run_query", "status", "success")
func Counter(name string, labels ...string) {
	_ = defaultInstruments.RecordCounter(context.Background(), name, 1,
		metric.WithAttributes(labelAttributes(labels)...))
}

// Histogram records a value in a distribution.
// Example: Histogram(MetricActionDuration, 125.3, "action", "get_columns")
func Histogram(name string, value float64, labels ...string) {
	_ = defaultInstruments.RecordHistogram(context.Background(), name, value,
		metric.WithAttributes(labelAttributes(labels)...))
}

// Duration records elapsed time since startTime in milliseconds.
//
//	start := time.Now()
//	defer telemetry.Duration(MetricTaskDuration, start, "status", "done")
func Duration(name string, startTime time.Time, labels ...string) {
	Histogram(name, float64(time.Since(startTime).Milliseconds()), labels...)
}

// labelAttributes converts key-value pairs to attributes. A trailing key without value is dropped.
func labelAttributes(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}
