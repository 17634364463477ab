package bankrule

import (
	"context"

	"github.com/ripplehq/ripple/id"
)

// Store persists bank categorization rules.
type Store interface {
	// CreateBankRule persists a new rule.
	CreateBankRule(ctx context.Context, r *Rule) error

	// GetBankRule returns a rule by ID, or ripple.ErrBankRuleNotFound.
	GetBankRule(ctx context.Context, ruleID id.ID) (*Rule, error)

	// UpdateBankRule replaces a rule's mutable fields.
	UpdateBankRule(ctx context.Context, r *Rule) error

	// SetBankRuleActive flips a rule's active flag.
	SetBankRuleActive(ctx context.Context, ruleID id.ID, active bool) error

	// ListBankRules returns an org's rules ordered by priority descending,
	// then creation time ascending.
	ListBankRules(ctx context.Context, orgID string, opts ListOpts) ([]*Rule, error)

	// ListActiveBankRules returns every active rule for an org in
	// classification order.
	ListActiveBankRules(ctx context.Context, orgID string) ([]*Rule, error)
}
