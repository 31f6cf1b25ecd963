package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// DefaultServiceName names spans when neither config nor OTEL_SERVICE_NAME
// does.
const DefaultServiceName = "orchestrator"

// ProviderConfig configures trace export.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Role is "orchestrator" or "worker"; recorded on every span.
	Role string

	// Endpoint is host:port of the OTLP collector. Falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT. A scheme prefix is stripped.
	Endpoint string

	// Protocol is "grpc" (default) or "http" ("http/protobuf" also accepted).
	Protocol string
	Insecure bool

	// SampleRatio is the fraction of root traces kept. Zero keeps all.
	SampleRatio float64

	// Debug records task text (titles, summaries, errors) on spans.
	Debug bool

	// BatchTimeout caps how long spans wait before export.
	BatchTimeout time.Duration
}

// Provider owns the SDK trace and meter providers.
type Provider struct {
	traces  *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	tracer  *Tracer
	metrics *Metrics
}

// InitProvider installs an OTLP trace exporter as the global provider and
// creates the orchestrator counters on an SDK meter provider. Shutdown must
// be called to flush pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil, errors.New("telemetry: no endpoint (set telemetry.endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")

	name := cfg.ServiceName
	if name == "" {
		name = os.Getenv("OTEL_SERVICE_NAME")
	}
	if name == "" {
		name = DefaultServiceName
	}

	exporter, err := newExporter(ctx, cfg.Protocol, endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Role != "" {
		attrs = append(attrs, attribute.String("orchestrator.role", cfg.Role))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	traces := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(traces)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	meters := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	metrics, err := NewMetrics(meters)
	if err != nil {
		traces.Shutdown(ctx)
		return nil, err
	}

	tracer := NewTracerFrom(traces, name, cfg.Debug)
	SetGlobalTracer(tracer)
	return &Provider{traces: traces, meters: meters, tracer: tracer, metrics: metrics}, nil
}

func newExporter(ctx context.Context, protocol, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	// OTEL_EXPORTER_OTLP_PROTOCOL spells http as "http/protobuf".
	switch p := strings.ToLower(protocol); {
	case p == "" || p == "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	case p == "http" || strings.HasPrefix(p, "http/"):
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("telemetry: unknown protocol %q (use grpc or http)", protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: %s exporter: %w", protocol, err)
	}
	return exp, nil
}

// Tracer returns the tracer bound to this provider.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Metrics returns the counters recorded on this provider's meters.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes spans and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.traces.Shutdown(ctx), p.meters.Shutdown(ctx))
}
