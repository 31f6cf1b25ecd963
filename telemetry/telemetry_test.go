package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFrom(tp, "test", debug), rec
}

func TestGetTracer_NoopByDefault(t *testing.T) {
	SetGlobalTracer(nil)
	_, span := GetTracer().StartOperation(context.Background(), "claim")
	if span.SpanContext().IsValid() {
		t.Error("default tracer should produce no-op spans")
	}
	span.End()
}

func TestTracer_Operation(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	_, span := tr.StartOperation(context.Background(), "complete")
	tr.EndOperation(span, OperationOptions{TaskID: "T1", WorkerID: "W1", Text: "secret summary"}, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "task.complete" {
		t.Errorf("Name = %q", s.Name())
	}
	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["task.id"] != "T1" || attrs["task.worker"] != "W1" {
		t.Errorf("attributes = %v", attrs)
	}
	if _, ok := attrs["task.text"]; ok {
		t.Error("task text should only be recorded in debug mode")
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_OperationError(t *testing.T) {
	tr, rec := newRecordingTracer(true)

	_, span := tr.StartOperation(context.Background(), "fail")
	tr.EndOperation(span, OperationOptions{TaskID: "T1", Text: "boom"}, errors.New("not held"))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "not held" {
		t.Errorf("status = %+v", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("error should be recorded as an event")
	}
	found := false
	for _, kv := range s.Attributes() {
		if kv.Key == "task.text" {
			found = true
		}
	}
	if !found {
		t.Error("debug mode should record task text")
	}
}

func TestTracer_LLMSpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	_, span := tr.StartLLMSpan(context.Background(), "llm.chat")
	tr.EndLLMSpan(span, LLMSpanOptions{Model: "m", Provider: "echo", Prompt: "p"}, nil)

	if len(rec.Ended()) != 1 {
		t.Fatal("expected one span")
	}
}

func TestContextPropagation(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tr, _ := newRecordingTracer(false)

	ctx, span := tr.StartOperation(context.Background(), "claim")
	defer span.End()

	carrier := propagation.MapCarrier{}
	InjectContext(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatal("traceparent header not injected")
	}

	remote := trace.SpanContextFromContext(ExtractContext(context.Background(), carrier))
	if remote.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("extracted trace %s, want %s", remote.TraceID(), span.SpanContext().TraceID())
	}
	if !remote.IsRemote() {
		t.Error("extracted span context should be remote")
	}
}

func TestMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m.Claimed(ctx, "W1")
	m.Claimed(ctx, "W2")
	m.ClaimMiss(ctx)
	m.Completed(ctx)
	m.Failed(ctx)
	m.SnapshotFailure(ctx)

	c := m.Counts()
	if c.Claimed != 2 || c.ClaimMisses != 1 || c.Completed != 1 || c.Failed != 1 || c.SnapshotFailures != 1 {
		t.Errorf("Counts = %+v", c)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	if totals[MetricClaimed] != 2 {
		t.Errorf("%s = %d, want 2", MetricClaimed, totals[MetricClaimed])
	}
	if totals[MetricSnapshotFailures] != 1 {
		t.Errorf("%s = %d, want 1", MetricSnapshotFailures, totals[MetricSnapshotFailures])
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	m.Completed(context.Background())
	if m.Counts().Completed != 1 {
		t.Error("nop metrics should still keep in-process counts")
	}
}

func TestInitProvider_RequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{}); err == nil {
		t.Error("expected error without an endpoint")
	}
}

func TestInitProvider_UnknownProtocol(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestInitProvider_HTTPProtobuf(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	defer SetGlobalTracer(nil)

	p, err := InitProvider(ctx, ProviderConfig{
		Endpoint: "http://127.0.0.1:4318",
		Protocol: "http/protobuf",
		Insecure: true,
		Role:     "worker",
	})
	if err != nil {
		t.Fatalf("InitProvider error: %v", err)
	}
	if p.Tracer() != GetTracer() {
		t.Error("provider tracer should become the global tracer")
	}
	p.Metrics().Claimed(ctx, "w1")
	if p.Metrics().Counts().Claimed != 1 {
		t.Error("provider metrics should count claims")
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}
