// Tracing wrapper for LLM providers.
package llm

import (
	"context"

	"github.com/vinayprograms/orchestrator/telemetry"
)

// TracingProvider wraps a Provider with OpenTelemetry tracing.
type TracingProvider struct {
	provider Provider
	tracer   *telemetry.Tracer
}

// WithTracing wraps a provider with tracing instrumentation. A nil tracer
// uses the global one.
func WithTracing(p Provider, tracer *telemetry.Tracer) Provider {
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}
	return &TracingProvider{provider: p, tracer: tracer}
}

// Name implements Provider.
func (tp *TracingProvider) Name() string { return tp.provider.Name() }

// Chat implements Provider with tracing.
func (tp *TracingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := tp.tracer.StartLLMSpan(ctx, "llm.chat")

	resp, err := tp.provider.Chat(ctx, req)

	opts := telemetry.LLMSpanOptions{Provider: tp.provider.Name()}
	if resp != nil {
		opts.Model = resp.Model
		opts.Response = resp.Content
	}
	if tp.tracer.Debug() {
		opts.Prompt = req.UserText()
	}
	tp.tracer.EndLLMSpan(span, opts, err)

	return resp, err
}
