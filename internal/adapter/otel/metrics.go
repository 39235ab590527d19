package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "warden"

// Metrics holds all governance metric instruments.
type Metrics struct {
	DecisionsTotal    metric.Int64Counter
	ApprovalsOpened   metric.Int64Counter
	ApprovalsDecided  metric.Int64Counter
	TaskTransitions   metric.Int64Counter
	BackfillPatched   metric.Int64Counter
	EvaluateDuration  metric.Float64Histogram
	ActiveDeployments metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsTotal, err = meter.Int64Counter("warden.decisions.total",
		metric.WithDescription("Action evaluations by outcome"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsOpened, err = meter.Int64Counter("warden.approvals.opened",
		metric.WithDescription("Approval requests created"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsDecided, err = meter.Int64Counter("warden.approvals.decided",
		metric.WithDescription("Approval requests resolved, by final state"))
	if err != nil {
		return nil, err
	}

	m.TaskTransitions, err = meter.Int64Counter("warden.tasks.transitions",
		metric.WithDescription("Task status transitions applied"))
	if err != nil {
		return nil, err
	}

	m.BackfillPatched, err = meter.Int64Counter("warden.backfill.patched",
		metric.WithDescription("Records repaired by migration backfill"))
	if err != nil {
		return nil, err
	}

	m.EvaluateDuration, err = meter.Float64Histogram("warden.evaluate.duration_seconds",
		metric.WithDescription("Action evaluation latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.ActiveDeployments, err = meter.Int64UpDownCounter("warden.deployments.active",
		metric.WithDescription("Currently active deployments"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDecision increments the decision counter tagged with the
// verdict outcome and rule source.
func (m *Metrics) RecordDecision(ctx context.Context, outcome, source string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		))
}

// RecordEvaluateDuration records one evaluation latency sample.
func (m *Metrics) RecordEvaluateDuration(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.EvaluateDuration.Record(ctx, seconds)
}

// RecordTransition increments the transition counter tagged with the
// target status.
func (m *Metrics) RecordTransition(ctx context.Context, to string) {
	if m == nil {
		return
	}
	m.TaskTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}
