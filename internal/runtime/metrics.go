package runtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hablalabs/habla-core/internal/pipeline"
)

// runMetrics instruments pipeline outcomes.
type runMetrics struct {
	runs      metric.Int64Counter
	fallbacks metric.Int64Counter
	duration  metric.Float64Histogram
}

func newRunMetrics() (*runMetrics, error) {
	meter := otel.Meter("habla-core/runtime")

	runs, err := meter.Int64Counter("habla_pipeline_runs_total",
		metric.WithDescription("Completed pipeline runs by result"))
	if err != nil {
		return nil, err
	}
	fallbacks, err := meter.Int64Counter("habla_pipeline_fallbacks_total",
		metric.WithDescription("Optional stages that degraded to the deterministic fallback"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("habla_pipeline_duration_seconds",
		metric.WithDescription("Wall time of one pipeline run"))
	if err != nil {
		return nil, err
	}
	return &runMetrics{runs: runs, fallbacks: fallbacks, duration: duration}, nil
}

func (m *runMetrics) observe(ctx context.Context, result pipeline.Result, runErr error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if runErr != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("result", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.fallbacks.Add(ctx, int64(len(result.Metadata.Fallbacks)))
	m.duration.Record(ctx, result.Duration.Seconds(), attrs)
}
