package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/itsneelabh/querysynth/core"
)

// withRecorder installs a span recorder as the global tracer provider for one test
func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func TestSpanHelpers(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "querysynth.iteration", attribute.Int("iteration", 1))
	AddSpanEvent(ctx, "action_selected", attribute.String("action", "list_tables"))
	SetSpanAttributes(ctx, attribute.Bool("repair", false))
	RecordSpanError(ctx, errors.New("sandbox failed"))

	tc := GetTraceContext(ctx)
	assert.Len(t, tc.TraceID, 32)
	assert.Len(t, tc.SpanID, 16)
	assert.True(t, tc.Sampled)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "querysynth.iteration", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)

	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "action_selected")
	assert.Contains(t, names, "exception")
}

func TestSpanHelpers_NoSpan(t *testing.T) {
	ctx := context.Background()
	// None of these may panic without a span
	AddSpanEvent(ctx, "noop")
	RecordSpanError(ctx, errors.New("x"))
	SetSpanAttributes(ctx, attribute.String("k", "v"))
	assert.Equal(t, TraceContext{}, GetTraceContext(ctx))
}

func TestSetup_StdoutExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	provider, err := Setup(context.Background(), core.TelemetryConfig{ServiceName: "querysynth-test"}, WithWriter(&buf))
	require.NoError(t, err)
	assert.Equal(t, "stdout", provider.Exporter())

	_, span := StartSpan(context.Background(), "querysynth.task")
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "querysynth.task")
	assert.Contains(t, buf.String(), "querysynth-test")
}

func TestProviderShutdown_Nil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestMetricInstruments_CachesInstruments(t *testing.T) {
	m := NewMetricInstruments("test")
	ctx := context.Background()

	require.NoError(t, m.RecordCounter(ctx, MetricActions, 1))
	require.NoError(t, m.RecordCounter(ctx, MetricActions, 2))
	require.NoError(t, m.RecordHistogram(ctx, MetricActionDuration, 12.5))
	assert.Equal(t, 2, m.InstrumentCount())

	// Package-level helpers must be safe without a meter provider
	Counter(MetricTasks, "status", "done")
	Histogram(MetricTaskDuration, 10, "status")
	Duration(MetricTaskDuration, time.Now())
}

func TestLabelAttributes(t *testing.T) {
	attrs := labelAttributes([]string{"a", "1", "b", "2", "dangling"})
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String("b", "2"), attrs[1])
}

func TestNewTracedHTTPClient(t *testing.T) {
	recorder := withRecorder(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("traceparent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	otel.SetTextMapPropagator(propagation.TraceContext{})
	client := NewTracedHTTPClient(5 * time.Second)

	ctx, parent := StartSpan(context.Background(), "parent")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	parent.End()

	assert.GreaterOrEqual(t, len(recorder.Ended()), 2)
}

func TestTrimScheme(t *testing.T) {
	assert.Equal(t, "collector:4317", trimScheme("http://collector:4317"))
	assert.Equal(t, "collector:4317", trimScheme("https://collector:4317"))
	assert.Equal(t, "collector:4317", trimScheme("collector:4317"))
}
