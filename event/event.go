// Package event defines the domain event value type consumed by the
// automation engine.
package event

import (
	"fmt"
	"strings"
	"time"
)

// SourceInternal marks events produced by application logic.
const SourceInternal = "internal"

// WebhookSource returns the source string for an event delivered by an
// external provider (e.g. "webhook:stripe").
func WebhookSource(provider string) string {
	return "webhook:" + provider
}

// DomainEvent is a fact produced by application logic or an external
// provider. Immutable once created; the queue carries a copy of it through
// rule evaluation.
type DomainEvent struct {
	// OrgID identifies the organization the event belongs to.
	OrgID string `json:"org_id"`

	// Type is the dot-namespaced event type (e.g. "donation.received").
	Type string `json:"type"`

	// Payload is the event data, a JSON-shaped mapping of field names to
	// scalar or nested values.
	Payload map[string]any `json:"payload"`

	// OccurredAt is when the fact happened, which may precede ingestion.
	OccurredAt time.Time `json:"occurred_at"`

	// Source is SourceInternal or "webhook:<provider>".
	Source string `json:"source"`
}

// ValidateType checks that an event type is a dot-namespaced identifier:
// at least two non-empty segments of lowercase letters, digits and
// underscores (e.g. "member.joined", "grant.status_changed").
func ValidateType(eventType string) error {
	segments := strings.Split(eventType, ".")
	if len(segments) < 2 {
		return fmt.Errorf("event type %q: want at least two dot-separated segments", eventType)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("event type %q: empty segment", eventType)
		}
		for _, c := range seg {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
				return fmt.Errorf("event type %q: segment %q contains %q", eventType, seg, c)
			}
		}
	}
	return nil
}
