package rule

import (
	"context"

	"github.com/ripplehq/ripple/id"
)

// Store persists automation rules.
type Store interface {
	// CreateRule persists a new rule.
	CreateRule(ctx context.Context, r *Rule) error

	// GetRule returns a rule by ID, or ripple.ErrRuleNotFound.
	GetRule(ctx context.Context, ruleID id.ID) (*Rule, error)

	// UpdateRule replaces a rule's mutable fields.
	UpdateRule(ctx context.Context, r *Rule) error

	// SetRuleActive flips a rule's active flag.
	SetRuleActive(ctx context.Context, ruleID id.ID, active bool) error

	// ListRules returns an org's rules ordered by creation time.
	ListRules(ctx context.Context, orgID string, opts ListOpts) ([]*Rule, error)

	// ListActiveRules returns every active rule for an org, ordered by
	// creation time.
	ListActiveRules(ctx context.Context, orgID string) ([]*Rule, error)
}
