package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const pipelineInstrumentation = "github.com/campusnest/api/checkout"

// Pipeline instruments checkout runs: one span per stage and a run outcome counter.
type Pipeline struct {
	tracer trace.Tracer
	runs   metric.Int64Counter
}

// NewPipeline builds instruments from the global otel providers. Instrument creation
// errors degrade to no-op recording.
func NewPipeline() *Pipeline {
	p := &Pipeline{tracer: otel.Tracer(pipelineInstrumentation)}
	counter, err := otel.GetMeterProvider().Meter(pipelineInstrumentation).Int64Counter("checkout.runs",
		metric.WithDescription("Checkout runs by kind and outcome"),
	)
	if err == nil {
		p.runs = counter
	}
	return p
}

// StartStage opens the span checkout.<stage>. The returned func ends it, recording err.
func (p *Pipeline) StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if p == nil || p.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := p.tracer.Start(ctx, "checkout."+stage, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordRun increments checkout.runs.
func (p *Pipeline) RecordRun(ctx context.Context, kind, outcome string) {
	if p == nil || p.runs == nil {
		return
	}
	p.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
