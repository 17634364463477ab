package ripple

import (
	"errors"

	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/run"
)

// Sentinel errors returned by Ripple operations.
var (
	// ErrNoStore is returned when an Engine is created without a store.
	ErrNoStore = errors.New("ripple: store is required")

	// ErrRuleNotFound is returned when an automation rule cannot be found.
	ErrRuleNotFound = errors.New("ripple: rule not found")

	// ErrBankRuleNotFound is returned when a bank rule cannot be found.
	ErrBankRuleNotFound = errors.New("ripple: bank rule not found")

	// ErrItemNotFound is returned when a queue item cannot be found.
	ErrItemNotFound = errors.New("ripple: queue item not found")

	// ErrRecordNotFound is returned when an idempotency record cannot be found.
	ErrRecordNotFound = errors.New("ripple: idempotency record not found")

	// ErrDuplicateExternalEvent is returned by the ledger store when a record
	// with the same (provider, external_event_id) already exists. Callers
	// interpret it as "already processed", not as a failure.
	ErrDuplicateExternalEvent = ledger.ErrDuplicateExternalEvent

	// ErrRecursionLimit is returned when chained trigger_event actions exceed
	// the configured depth bound. The item is never retried.
	ErrRecursionLimit = run.ErrRecursionLimit

	// ErrInvalidEventType is returned when an event type is not a
	// dot-namespaced identifier (e.g. "donation.received").
	ErrInvalidEventType = errors.New("ripple: invalid event type")

	// ErrNotDead is returned when requeueing a queue item that is not in the
	// dead state.
	ErrNotDead = errors.New("ripple: queue item is not dead")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("ripple: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("ripple: migration failed")
)
