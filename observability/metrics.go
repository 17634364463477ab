// Package observability provides metric instruments and tracing spans for
// the automation engine.
package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the engine, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsEmittedTotal gu.Counter
	ItemsClaimedTotal  gu.Counter
	ItemsTotal         gu.Counter
	ActionsTotal       gu.Counter
	ItemLatency        gu.Histogram
	QueuePending       gu.Gauge
	QueueDead          gu.Gauge
}

// NewMetrics creates engine metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector() for standalone usage or a managed
// factory from the host application.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsEmittedTotal: factory.Counter("ripple_events_emitted_total"),
		ItemsClaimedTotal:  factory.Counter("ripple_items_claimed_total"),
		ItemsTotal:         factory.Counter("ripple_items_total"),
		ActionsTotal:       factory.Counter("ripple_actions_total"),
		ItemLatency:        factory.Histogram("ripple_item_latency_seconds"),
		QueuePending:       factory.Gauge("ripple_queue_pending"),
		QueueDead:          factory.Gauge("ripple_queue_dead"),
	}
}

// RecordItem records one processed queue item with its terminal status and
// processing latency.
func (m *Metrics) RecordItem(status string, latencySeconds float64) {
	m.ItemsTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.ItemLatency.Observe(latencySeconds)
}

// RecordAction records one executed action with its type and outcome.
func (m *Metrics) RecordAction(actionType, outcome string) {
	m.ActionsTotal.WithLabels(map[string]string{
		"type":    actionType,
		"outcome": outcome,
	}).Inc()
}
