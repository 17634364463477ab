// Package webhook ingests provider deliveries: signature verification,
// idempotent claim through the ledger, translation into domain events and
// enqueueing.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/signature"
)

// Envelope is the provider-agnostic shape of an inbound delivery. Providers
// that use different field names are adapted by their translator.
type Envelope struct {
	// ID is the provider's event identifier, used for idempotency.
	ID string `json:"id"`

	// Type is the provider's event type.
	Type string `json:"type"`

	// Data is the provider's event payload.
	Data map[string]any `json:"data"`
}

// Translator converts a provider envelope into a domain event. Returning
// (zero, false, nil) ignores the delivery: it is acknowledged and recorded
// but produces no queue item.
type Translator func(env Envelope) (event.DomainEvent, bool, error)

// Emitter enqueues translated events.
type Emitter interface {
	Emit(ctx context.Context, evt event.DomainEvent) error
}

// Provider holds the per-provider ingestion configuration.
type Provider struct {
	// Secret verifies inbound signatures.
	Secret string

	// Translate converts envelopes to domain events.
	Translate Translator
}

// Disposition is the outcome of one ingestion attempt.
type Disposition int

const (
	// Accepted means the delivery produced a queue item.
	Accepted Disposition = iota

	// Duplicate means the event was already processed; acknowledge without
	// reprocessing.
	Duplicate

	// Ignored means the translator declined the event; acknowledge.
	Ignored

	// Rejected means the delivery failed verification or was malformed.
	Rejected
)

// ErrUnknownProvider is returned for deliveries to unregistered providers.
var ErrUnknownProvider = errors.New("ripple: unknown webhook provider")

// Ingestor verifies, deduplicates and enqueues provider deliveries.
type Ingestor struct {
	ledger    *ledger.Service
	emitter   Emitter
	tolerance time.Duration
	logger    *slog.Logger

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewIngestor creates an ingestor. tolerance bounds the accepted clock skew
// on signed timestamps; zero disables the check.
func NewIngestor(ledgerSvc *ledger.Service, emitter Emitter, tolerance time.Duration, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		ledger:    ledgerSvc,
		emitter:   emitter,
		tolerance: tolerance,
		logger:    logger,
		providers: make(map[string]Provider),
	}
}

// Register adds or replaces a provider configuration.
func (ing *Ingestor) Register(name string, p Provider) {
	ing.mu.Lock()
	ing.providers[name] = p
	ing.mu.Unlock()
}

// Ingest processes one raw delivery. body is the exact request body the
// signature covers.
func (ing *Ingestor) Ingest(ctx context.Context, provider string, body []byte, timestamp int64, sig string) (Disposition, error) {
	ing.mu.RLock()
	p, ok := ing.providers[provider]
	ing.mu.RUnlock()
	if !ok {
		return Rejected, ErrUnknownProvider
	}

	if !signature.WithinTolerance(timestamp, ing.tolerance) {
		return Rejected, errors.New("ripple: signed timestamp outside tolerance")
	}
	if !signature.Verify(body, p.Secret, timestamp, sig) {
		return Rejected, errors.New("ripple: signature verification failed")
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Rejected, fmt.Errorf("ripple: decode envelope: %w", err)
	}
	if env.ID == "" {
		return Rejected, errors.New("ripple: envelope missing event id")
	}

	evt, emit, err := p.Translate(env)
	if err != nil {
		return Rejected, fmt.Errorf("translate %s event: %w", provider, err)
	}

	// Claim before emitting so concurrent redeliveries race on the ledger,
	// not on the queue.
	won, err := ing.ledger.TryClaim(ctx, evt.OrgID, provider, env.ID)
	if err != nil {
		return Rejected, err
	}
	if !won {
		return Duplicate, nil
	}

	if !emit {
		if err := ing.ledger.RecordOutcome(ctx, provider, env.ID, ledger.OutcomeIgnored); err != nil {
			ing.logger.ErrorContext(ctx, "record outcome failed",
				slog.String("provider", provider),
				slog.Any("error", err))
		}
		return Ignored, nil
	}

	evt.Source = event.WebhookSource(provider)
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	if err := ing.emitter.Emit(ctx, evt); err != nil {
		// The claim stands; record the failure so operators can replay.
		if recErr := ing.ledger.RecordOutcome(ctx, provider, env.ID, ledger.OutcomeFailed); recErr != nil {
			ing.logger.ErrorContext(ctx, "record outcome failed",
				slog.String("provider", provider),
				slog.Any("error", recErr))
		}
		return Rejected, err
	}

	ing.logger.DebugContext(ctx, "webhook ingested",
		slog.String("provider", provider),
		slog.String("external_event_id", env.ID),
		slog.String("event_type", evt.Type))

	return Accepted, nil
}
