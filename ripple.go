package ripple

import (
	"context"
	"fmt"
	"time"

	"github.com/ripplehq/ripple/audit"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/dispatch"
	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/ratelimit"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/run"
	"github.com/ripplehq/ripple/store"
	"github.com/ripplehq/ripple/webhook"
)

// wireServices initializes the internal services after options have been applied.
func (e *Engine) wireServices() {
	e.auditLog = audit.NewLog(e.store, e.logger)

	e.matcher = rule.NewMatcher(e.store, e.config.RuleCacheTTL, e.logger)
	e.ruleSvc = rule.NewService(e.store, e.matcher, e.auditLog, e.logger)
	e.bankSvc = bankrule.NewService(e.store, e.auditLog, e.logger)
	e.ledgerSvc = ledger.NewService(e.store, e.logger)

	e.queueSvc = queue.NewService(e.store, queue.Config{
		MaxAttempts: e.config.MaxAttempts,
		Backoff: queue.Backoff{
			Base: e.config.BackoffBase,
			Cap:  e.config.BackoffCap,
		},
	}, e.logger)

	sender := run.NewSender(e.config.ActionTimeout, ratelimit.New())

	collab := e.collab
	if collab.ChainEmitter == nil {
		collab.ChainEmitter = chainEmitter{e}
	}
	e.runner = run.NewRunner(collab, sender, run.Config{
		ActionTimeout: e.config.ActionTimeout,
		MaxChainDepth: e.config.MaxChainDepth,
	}, e.logger, e.metrics)

	e.dispatcher = dispatch.NewDispatcher(e.queueSvc, e.matcher, e.store, e.runner, dispatch.Config{
		Concurrency: e.config.Concurrency,
		Metrics:     e.metrics,
		Tracer:      e.tracer,
	}, e.logger)

	e.poller = dispatch.NewPoller(e.dispatcher, e.config.PollInterval, e.config.BatchSize, e.logger)

	e.ingestor = webhook.NewIngestor(e.ledgerSvc, queueEmitter{e}, e.config.SignatureTolerance, e.logger)
}

// Start begins the background poll loop.
func (e *Engine) Start(ctx context.Context) {
	e.poller.Start(ctx)
}

// Stop cancels the poll loop and waits for the in-flight batch to finish.
func (e *Engine) Stop(ctx context.Context) {
	e.poller.Stop(ctx)
}

// Emit validates and enqueues a domain event for rule processing. The
// returned item is the queued unit of work.
func (e *Engine) Emit(ctx context.Context, evt event.DomainEvent) (*queue.Item, error) {
	return e.emit(ctx, evt)
}

// EmitAt is Emit with a delayed first claim.
func (e *Engine) EmitAt(ctx context.Context, evt event.DomainEvent, at time.Time) (*queue.Item, error) {
	return e.emit(ctx, evt, queue.WithSchedule(at))
}

func (e *Engine) emit(ctx context.Context, evt event.DomainEvent, opts ...queue.EnqueueOption) (*queue.Item, error) {
	if err := event.ValidateType(evt.Type); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEventType, err)
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if evt.Source == "" {
		evt.Source = event.SourceInternal
	}

	it, err := e.queueSvc.Enqueue(ctx, evt, opts...)
	if err != nil {
		return nil, fmt.Errorf("ripple: enqueue item: %w", err)
	}

	if e.metrics != nil {
		e.metrics.EventsEmittedTotal.Inc()
	}
	return it, nil
}

// DispatchRule enqueues an event pinned to a single rule, bypassing
// matching. The rule runs even if inactive; that is the point of a manual
// dispatch. An empty event OrgID inherits the rule's.
func (e *Engine) DispatchRule(ctx context.Context, ruleID id.ID, evt event.DomainEvent) (*queue.Item, error) {
	rl, err := e.ruleSvc.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if evt.OrgID == "" {
		evt.OrgID = rl.OrgID
	}

	it, err := e.emit(ctx, evt, queue.WithRule(rl.ID))
	if err != nil {
		return nil, err
	}

	e.auditLog.Record(ctx, rl.OrgID, "rule.dispatched", rl.ID.String(), map[string]string{
		"item_id":    it.ID.String(),
		"event_type": evt.Type,
	})
	return it, nil
}

// RunBatch claims up to limit due items and processes them. Used by external
// schedulers instead of Start.
func (e *Engine) RunBatch(ctx context.Context, limit int) (dispatch.BatchResult, error) {
	return e.dispatcher.RunBatch(ctx, limit)
}

// TestEvent evaluates an event against an org's rules without enqueueing or
// executing anything.
func (e *Engine) TestEvent(ctx context.Context, evt event.DomainEvent) ([]*rule.Rule, error) {
	return e.dispatcher.TestEvent(ctx, evt)
}

// Rules returns the automation rule management service.
func (e *Engine) Rules() *rule.Service {
	return e.ruleSvc
}

// BankRules returns the bank categorization rule service.
func (e *Engine) BankRules() *bankrule.Service {
	return e.bankSvc
}

// Queue returns the queue service.
func (e *Engine) Queue() *queue.Service {
	return e.queueSvc
}

// Audit returns the audit log.
func (e *Engine) Audit() *audit.Log {
	return e.auditLog
}

// Ingestor returns the webhook ingestor. Register providers on it before
// serving traffic.
func (e *Engine) Ingestor() *webhook.Ingestor {
	return e.ingestor
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

// chainEmitter enqueues trigger_event follow-ups through the engine's queue,
// carrying the chain depth forward.
type chainEmitter struct {
	e *Engine
}

func (c chainEmitter) EmitChained(ctx context.Context, orgID, eventType string, payload map[string]any, chainDepth int) error {
	evt := event.DomainEvent{
		OrgID:      orgID,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
		Source:     event.SourceInternal,
	}
	_, err := c.e.emit(ctx, evt, queue.WithChainDepth(chainDepth))
	return err
}

// queueEmitter adapts the engine to the webhook ingestor's Emitter.
type queueEmitter struct {
	e *Engine
}

func (q queueEmitter) Emit(ctx context.Context, evt event.DomainEvent) error {
	_, err := q.e.emit(ctx, evt)
	return err
}
