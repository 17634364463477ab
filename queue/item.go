// Package queue implements the durable work queue that decouples event
// emission from rule execution.
package queue

import (
	"time"

	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
)

// Status represents the lifecycle state of a queue item.
type Status string

const (
	// StatusPending indicates the item is awaiting a worker claim.
	StatusPending Status = "pending"

	// StatusClaimed indicates a worker holds the item.
	StatusClaimed Status = "claimed"

	// StatusDone indicates processing completed.
	StatusDone Status = "done"

	// StatusFailed classifies an attempt that failed and was rescheduled.
	// The stored item returns to pending; only the MarkFailed result and
	// batch counters carry this status.
	StatusFailed Status = "failed"

	// StatusDead indicates the item exhausted its attempts or failed
	// permanently. Dead items are kept for inspection and manual requeue.
	StatusDead Status = "dead"
)

// Item is one unit of work: a domain event snapshot waiting for rule
// execution. Manual dispatches pin a rule ID; emitted events leave it nil
// and the dispatcher matches rules at claim time.
type Item struct {
	entity.Entity

	// ID is the unique TypeID for this item.
	ID id.ID `json:"id"`

	// OrgID identifies the organization the work belongs to.
	OrgID string `json:"org_id"`

	// RuleID, when set, pins execution to a single rule and bypasses
	// matching. Set by manual dispatch and left zero for emitted events.
	RuleID id.ID `json:"rule_id,omitempty"`

	// EventType is the triggering event's type.
	EventType string `json:"event_type"`

	// EventPayload is the triggering event's payload snapshot.
	EventPayload map[string]any `json:"event_payload"`

	// EventSource records where the event came from.
	EventSource string `json:"event_source"`

	// OccurredAt is when the underlying fact happened.
	OccurredAt time.Time `json:"occurred_at"`

	// Status is the item's lifecycle state.
	Status Status `json:"status"`

	// ScheduledFor is the earliest time a worker may claim the item.
	ScheduledFor time.Time `json:"scheduled_for"`

	// ClaimedBy is the worker ID holding the item, if claimed.
	ClaimedBy string `json:"claimed_by,omitempty"`

	// ClaimedAt is when the current claim was taken.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// AttemptCount is the number of completed processing attempts.
	AttemptCount int `json:"attempt_count"`

	// ChainDepth counts trigger_event hops from the original event.
	ChainDepth int `json:"chain_depth"`

	// LastError is the message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// CompletedAt is when the item reached done or dead.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Event reconstructs the domain event carried by the item.
func (it *Item) Event() event.DomainEvent {
	return event.DomainEvent{
		OrgID:      it.OrgID,
		Type:       it.EventType,
		Payload:    it.EventPayload,
		OccurredAt: it.OccurredAt,
		Source:     it.EventSource,
	}
}

// ListOpts configures filtering and pagination for item listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}

// Stats summarizes queue depth by status.
type Stats struct {
	Pending int64 `json:"pending"`
	Claimed int64 `json:"claimed"`
	Done    int64 `json:"done"`
	Failed  int64 `json:"failed"`
	Dead    int64 `json:"dead"`
}
