package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ripplehq/ripple/id"
)

// Service wraps the store with claim semantics for webhook ingestion.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a ledger service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// TryClaim attempts to claim an external event for processing. Returns true
// when this caller won the claim and must process the event; false when the
// event was already seen and must be acknowledged without reprocessing.
func (svc *Service) TryClaim(ctx context.Context, orgID, provider, externalEventID string) (bool, error) {
	rec := &Record{
		ID:              id.NewLedgerID(),
		OrgID:           orgID,
		Provider:        provider,
		ExternalEventID: externalEventID,
		ProcessedAt:     time.Now().UTC(),
		Outcome:         OutcomeAccepted,
	}

	err := svc.store.InsertRecord(ctx, rec)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrDuplicateExternalEvent) {
		svc.logger.DebugContext(ctx, "duplicate external event",
			slog.String("provider", provider),
			slog.String("external_event_id", externalEventID))
		return false, nil
	}
	return false, err
}

// RecordOutcome updates the claim's outcome once processing finishes.
func (svc *Service) RecordOutcome(ctx context.Context, provider, externalEventID, outcome string) error {
	return svc.store.SetRecordOutcome(ctx, provider, externalEventID, outcome)
}

// Lookup returns the ledger record for an external event.
func (svc *Service) Lookup(ctx context.Context, provider, externalEventID string) (*Record, error) {
	return svc.store.GetRecord(ctx, provider, externalEventID)
}
