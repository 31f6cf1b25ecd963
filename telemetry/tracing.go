package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span text limits, in bytes.
const (
	maxTaskText = 2000
	maxLLMText  = 4000
)

// Tracer records task operation and model call spans. In debug mode spans
// also carry summaries, failure reasons, prompts and replies.
type Tracer struct {
	tracer trace.Tracer
	debug  bool
}

var (
	tracerMu     sync.RWMutex
	globalTracer *Tracer
)

// SetGlobalTracer installs t as the tracer returned by GetTracer.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	globalTracer = t
	tracerMu.Unlock()
}

// GetTracer returns the installed tracer. Before InitProvider runs it
// returns a tracer whose spans go nowhere.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer != nil {
		return globalTracer
	}
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracerFrom names a tracer on tp.
func NewTracerFrom(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), debug: debug}
}

// Debug reports whether spans carry free text.
func (t *Tracer) Debug() bool { return t.debug }

// OperationOptions are the attributes of a finished task operation.
type OperationOptions struct {
	TaskID   string
	WorkerID string
	Status   string
	Text     string // debug only
}

// StartOperation opens a "task.<op>" span.
func (t *Tracer) StartOperation(ctx context.Context, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "task."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("task.operation", op)))
}

// EndOperation tags and closes a span opened by StartOperation.
func (t *Tracer) EndOperation(span trace.Span, opts OperationOptions, err error) {
	set := func(key, value string) {
		if value != "" {
			span.SetAttributes(attribute.String(key, value))
		}
	}
	set("task.id", opts.TaskID)
	set("task.worker", opts.WorkerID)
	set("task.status", opts.Status)
	if t.debug {
		set("task.text", clip(opts.Text, maxTaskText))
	}
	finish(span, err)
}

// LLMSpanOptions are the attributes of a finished model call.
type LLMSpanOptions struct {
	Model    string
	Provider string
	Prompt   string // debug only
	Response string // debug only
}

// StartLLMSpan opens a client span around a model call.
func (t *Tracer) StartLLMSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// EndLLMSpan tags and closes a span opened by StartLLMSpan.
func (t *Tracer) EndLLMSpan(span trace.Span, opts LLMSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("llm.provider", opts.Provider),
		attribute.String("llm.model", opts.Model),
	)
	if t.debug {
		if opts.Prompt != "" {
			span.SetAttributes(attribute.String("llm.prompt", clip(opts.Prompt, maxLLMText)))
		}
		if opts.Response != "" {
			span.SetAttributes(attribute.String("llm.response", clip(opts.Response, maxLLMText)))
		}
	}
	finish(span, err)
}

func finish(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// InjectContext writes the span context in ctx into carrier, e.g. the
// headers of a worker request.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext continues a trace started by the caller of a request.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
