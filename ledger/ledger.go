// Package ledger implements the idempotency ledger for externally sourced
// events. One record per (provider, external event ID); duplicates are
// rejected at insert time by the store's uniqueness guarantee.
package ledger

import (
	"errors"
	"time"

	"github.com/ripplehq/ripple/id"
)

// ErrDuplicateExternalEvent is returned by InsertRecord when a record with
// the same (provider, external_event_id) already exists. Defined here so
// the service can interpret it; the root package re-exports it.
var ErrDuplicateExternalEvent = errors.New("ripple: duplicate external event")

// Outcomes recorded after processing an external event.
const (
	OutcomeAccepted = "accepted"
	OutcomeIgnored  = "ignored"
	OutcomeFailed   = "failed"
)

// Record marks one external event as seen. Records are never deleted;
// the ledger is the proof that redelivered events were already handled.
type Record struct {
	// ID is the unique TypeID for this record.
	ID id.ID `json:"id"`

	// OrgID identifies the receiving organization.
	OrgID string `json:"org_id"`

	// Provider is the external system that delivered the event.
	Provider string `json:"provider"`

	// ExternalEventID is the provider's own event identifier.
	ExternalEventID string `json:"external_event_id"`

	// ProcessedAt is when the event was first claimed.
	ProcessedAt time.Time `json:"processed_at"`

	// Outcome records what processing did with the event.
	Outcome string `json:"outcome"`
}
