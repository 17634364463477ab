// Package rule defines automation rules: trigger-condition-actions tuples
// evaluated against matching domain events.
package rule

import (
	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
)

// Rule is a user-configured automation rule. The engine evaluates rules
// read-only; creation and edits go through the Service.
type Rule struct {
	entity.Entity

	// ID is the unique TypeID for this rule.
	ID id.ID `json:"id"`

	// OrgID identifies the organization that owns this rule.
	OrgID string `json:"org_id"`

	// Name is a human-readable rule name.
	Name string `json:"name"`

	// TriggerEvents are the event types this rule reacts to. Entries may use
	// single-segment glob patterns ("donation.*").
	TriggerEvents []string `json:"trigger_events"`

	// Conditions is the expression tree filtering matched events by payload.
	// The zero tree matches every event.
	Conditions condition.Node `json:"conditions"`

	// Actions is the ordered action list executed when the rule matches.
	Actions []Action `json:"actions"`

	// IsActive removes the rule from matching without deleting history.
	IsActive bool `json:"is_active"`

	// StopOnError skips remaining actions after the first failure.
	StopOnError bool `json:"stop_on_error"`
}

// Input carries the user-supplied fields for creating or updating a rule.
type Input struct {
	OrgID         string         `json:"org_id"`
	Name          string         `json:"name"`
	TriggerEvents []string       `json:"trigger_events"`
	Conditions    condition.Node `json:"conditions"`
	Actions       []Action       `json:"actions"`
	StopOnError   bool           `json:"stop_on_error"`
}

// ListOpts configures filtering and pagination for rule listing.
type ListOpts struct {
	Offset          int
	Limit           int
	IncludeInactive bool
}
