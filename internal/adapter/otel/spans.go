package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "warden"

// StartEvaluateSpan starts a span for one action evaluation.
func StartEvaluateSpan(ctx context.Context, instanceID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "evaluate",
		trace.WithAttributes(
			attribute.String("instance.id", instanceID),
			attribute.String("action.tool", tool),
		),
	)
}

// StartTransitionSpan starts a span for a task status transition.
func StartTransitionSpan(ctx context.Context, taskID, to string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "transition",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("transition.to", to),
		),
	)
}

// StartBackfillSpan starts a span for one backfill chunk.
func StartBackfillSpan(ctx context.Context, offset, batchSize int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "backfill",
		trace.WithAttributes(
			attribute.Int("backfill.offset", offset),
			attribute.Int("backfill.batch_size", batchSize),
		),
	)
}
