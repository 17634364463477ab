package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ripplehq/ripple"

// Tracer provides OpenTelemetry tracing for the engine.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new engine tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartItemSpan starts a span covering one queue item's processing.
func (t *Tracer) StartItemSpan(ctx context.Context, itemID, orgID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ripple.item",
		trace.WithAttributes(
			attribute.String("ripple.item_id", itemID),
			attribute.String("ripple.org_id", orgID),
			attribute.String("ripple.event_type", eventType),
		),
	)
}

// EndItemSpan ends an item span with result attributes.
func (t *Tracer) EndItemSpan(span trace.Span, status string, rulesMatched int, err string) {
	span.SetAttributes(
		attribute.String("ripple.status", status),
		attribute.Int("ripple.rules_matched", rulesMatched),
	)
	if err != "" {
		span.SetAttributes(attribute.String("ripple.error", err))
	}
	span.End()
}

// StartActionSpan starts a span covering one action execution.
func (t *Tracer) StartActionSpan(ctx context.Context, ruleID, actionType string, index int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ripple.action",
		trace.WithAttributes(
			attribute.String("ripple.rule_id", ruleID),
			attribute.String("ripple.action_type", actionType),
			attribute.Int("ripple.action_index", index),
		),
	)
}
