package observe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/orreryhq/orrery/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}
	return m, reader
}

// collect returns the recorded metric data keyed by instrument name.
func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordToolCall(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	m.RecordToolCall(context.Background(), "focus-planet", "ok", 0.05)
	m.RecordToolCall(context.Background(), "focus-planet", "error", 0.01)

	data := collect(t, reader)

	calls, ok := data["orrery.tool.calls"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("orrery.tool.calls data = %T", data["orrery.tool.calls"].Data)
	}
	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("tool call count = %d, want 2", total)
	}

	durations, ok := data["orrery.tool.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("orrery.tool.duration data = %T", data["orrery.tool.duration"].Data)
	}
	var samples uint64
	for _, dp := range durations.DataPoints {
		samples += dp.Count
	}
	if samples != 2 {
		t.Errorf("duration sample count = %d, want 2", samples)
	}
}

func TestRegistryGenerationGauge(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	m.RegistryGeneration.Record(context.Background(), 4)
	m.RegistryGeneration.Record(context.Background(), 5)

	data := collect(t, reader)
	gauge, ok := data["orrery.registry.generation"].Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("gauge data = %T", data["orrery.registry.generation"].Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 5 {
		t.Errorf("gauge = %+v, want single point with latest value 5", gauge.DataPoints)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)

	handler := observe.Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/x.js", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want downstream status preserved", rec.Code)
	}

	data := collect(t, reader)
	hist, ok := data["orrery.http.request.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("request duration data = %T", data["orrery.http.request.duration"].Data)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no request duration recorded")
	}
}
