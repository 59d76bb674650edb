package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogAndSpan(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	m, ctx := newRequestMetrics(context.Background(), logger, http.MethodPatch, "/api/tasks/:id")
	if ctx == nil {
		t.Fatalf("expected context")
	}
	m.start = m.start.Add(-20 * time.Millisecond)
	m.ObserveAuth(5 * time.Millisecond)
	m.SetUser("u1")
	m.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "request.metrics" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Data["route"] != "/api/tasks/:id" || entry.Data["user"] != "u1" || entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected fields %#v", entry.Data)
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total < 20 {
		t.Fatalf("unexpected total_ms %#v", entry.Data["total_ms"])
	}
	if _, ok := entry.Data["error_stage"]; ok {
		t.Fatalf("error stage must be absent on success")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributesToMap(spans[0].Attributes)
	if attrs["http.route"] != "/api/tasks/:id" || attrs["enduser.id"] != "u1" {
		t.Fatalf("unexpected span attributes %#v", attrs)
	}
	if spans[0].Status.Code == codes.Error {
		t.Fatalf("successful request marked as error")
	}
}

func TestRequestMetricsErrorMarksSpan(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	m, _ := newRequestMetrics(context.Background(), logger, http.MethodPost, "/api/tasks")
	m.SetErrorStage("create_task")
	m.Log(http.StatusInternalServerError, errors.New("boom"))
	_ = tp.ForceFlush(context.Background())

	entry := hook.LastEntry()
	if entry.Data["error_stage"] != "create_task" || entry.Data["error"] != "boom" {
		t.Fatalf("unexpected fields %#v", entry.Data)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("expected errored span, got %+v", spans)
	}
	if len(spans[0].Events) == 0 {
		t.Fatalf("expected recorded error event")
	}
}

func TestRequestMetricsNilIsSafe(t *testing.T) {
	var m *requestMetrics
	m.Log(http.StatusOK, nil)
}

func TestDurationToMillis(t *testing.T) {
	if durationToMillis(-time.Second) != 0 {
		t.Fatalf("negative durations clamp to zero")
	}
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
