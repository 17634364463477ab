package ledger

import "context"

// Store defines the persistence contract for idempotency records.
type Store interface {
	// InsertRecord persists a new record. Returns
	// ripple.ErrDuplicateExternalEvent when a record for the same
	// (provider, external event ID) already exists. The insert and the
	// uniqueness check must be one atomic operation.
	InsertRecord(ctx context.Context, rec *Record) error

	// GetRecord returns the record for an external event, or
	// ripple.ErrRecordNotFound.
	GetRecord(ctx context.Context, provider, externalEventID string) (*Record, error)

	// SetRecordOutcome updates a record's outcome after processing.
	SetRecordOutcome(ctx context.Context, provider, externalEventID, outcome string) error
}
