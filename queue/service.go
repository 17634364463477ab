package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
)

// Config configures queue retry behavior.
type Config struct {
	// MaxAttempts is the attempt budget before an item goes dead.
	MaxAttempts int

	// Backoff schedules retries after transient failures.
	Backoff Backoff
}

// Service wraps the store with retry policy. Workers interact with the
// queue exclusively through it.
type Service struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// NewService creates a queue service.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// EnqueueOption configures an enqueued item.
type EnqueueOption func(*Item)

// WithRule pins the item to a single rule, bypassing matching.
func WithRule(ruleID id.ID) EnqueueOption {
	return func(it *Item) { it.RuleID = ruleID }
}

// WithChainDepth records how many trigger_event hops preceded this item.
func WithChainDepth(depth int) EnqueueOption {
	return func(it *Item) { it.ChainDepth = depth }
}

// WithSchedule delays the item's first claim until the given time.
func WithSchedule(at time.Time) EnqueueOption {
	return func(it *Item) { it.ScheduledFor = at }
}

// Enqueue persists a new pending item carrying the event snapshot.
func (svc *Service) Enqueue(ctx context.Context, evt event.DomainEvent, opts ...EnqueueOption) (*Item, error) {
	it := &Item{
		Entity:       entity.New(),
		ID:           id.NewItemID(),
		OrgID:        evt.OrgID,
		EventType:    evt.Type,
		EventPayload: evt.Payload,
		EventSource:  evt.Source,
		OccurredAt:   evt.OccurredAt,
		Status:       StatusPending,
		ScheduledFor: time.Now().UTC(),
	}
	for _, o := range opts {
		o(it)
	}

	if err := svc.store.Enqueue(ctx, it); err != nil {
		return nil, err
	}

	svc.logger.DebugContext(ctx, "item enqueued",
		slog.String("item_id", it.ID.String()),
		slog.String("org_id", it.OrgID),
		slog.String("event_type", it.EventType))

	return it, nil
}

// Get returns an item by ID.
func (svc *Service) Get(ctx context.Context, itemID id.ID) (*Item, error) {
	return svc.store.GetItem(ctx, itemID)
}

// ClaimBatch claims up to limit due items for a worker.
func (svc *Service) ClaimBatch(ctx context.Context, limit int, workerID string) ([]*Item, error) {
	return svc.store.ClaimBatch(ctx, limit, workerID)
}

// MarkDone completes an item.
func (svc *Service) MarkDone(ctx context.Context, it *Item) error {
	return svc.store.MarkDone(ctx, it.ID)
}

// MarkFailed applies the retry policy after a transient failure: return the
// item to pending with a backoff schedule while attempts remain, otherwise
// move it to dead. The returned status classifies the attempt outcome
// (StatusFailed for a rescheduled item, StatusDead for an exhausted one).
func (svc *Service) MarkFailed(ctx context.Context, it *Item, cause string) (Status, error) {
	attempts := it.AttemptCount + 1

	if attempts >= svc.cfg.MaxAttempts {
		if err := svc.store.MarkDead(ctx, it.ID, cause); err != nil {
			return "", err
		}
		svc.logger.ErrorContext(ctx, "item exhausted attempts",
			slog.String("item_id", it.ID.String()),
			slog.Int("attempts", attempts),
			slog.String("cause", cause))
		return StatusDead, nil
	}

	next := svc.cfg.Backoff.NextAttempt(attempts)
	if err := svc.store.Requeue(ctx, it.ID, next, cause); err != nil {
		return "", err
	}

	svc.logger.DebugContext(ctx, "item rescheduled",
		slog.String("item_id", it.ID.String()),
		slog.Int("attempts", attempts),
		slog.Time("next_attempt", next))

	return StatusFailed, nil
}

// MarkDead moves an item straight to dead, bypassing remaining attempts.
// Used for permanent failures that retrying cannot fix.
func (svc *Service) MarkDead(ctx context.Context, it *Item, cause string) error {
	if err := svc.store.MarkDead(ctx, it.ID, cause); err != nil {
		return err
	}
	svc.logger.ErrorContext(ctx, "item dead",
		slog.String("item_id", it.ID.String()),
		slog.String("cause", cause))
	return nil
}

// RequeueDead returns a dead item to pending with a fresh attempt budget.
func (svc *Service) RequeueDead(ctx context.Context, itemID id.ID) error {
	return svc.store.RequeueDead(ctx, itemID)
}

// List returns an org's items, newest first.
func (svc *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*Item, error) {
	return svc.store.ListItems(ctx, orgID, opts)
}

// Stats returns queue depth by status for an org. An empty orgID covers all
// organizations.
func (svc *Service) Stats(ctx context.Context, orgID string) (Stats, error) {
	return svc.store.CountByStatus(ctx, orgID)
}
