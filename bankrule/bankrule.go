// Package bankrule implements priority-ordered categorization rules for
// imported bank transactions.
package bankrule

import (
	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
)

// Transaction directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Rule is a categorization rule for bank transactions. Unlike automation
// rules, bank rules are ranked: exactly one rule (the best ranked match)
// classifies a transaction.
type Rule struct {
	entity.Entity

	// ID is the unique TypeID for this rule.
	ID id.ID `json:"id"`

	// OrgID identifies the owning organization.
	OrgID string `json:"org_id"`

	// Name is a human-readable rule name.
	Name string `json:"name"`

	// Priority ranks the rule; higher values win. Ties break on creation
	// time, oldest first.
	Priority int `json:"priority"`

	// Conditions are matched against the transaction's fields. All entries
	// must pass (implicit AND). An empty list matches every transaction.
	Conditions []condition.Node `json:"conditions"`

	// TargetAccountID is the ledger account the transaction is booked to.
	TargetAccountID string `json:"target_account_id"`

	// Category is the reporting category assigned on match.
	Category string `json:"category"`

	// IsActive removes the rule from classification without deleting it.
	IsActive bool `json:"is_active"`
}

// Input carries the user-supplied fields for creating or updating a bank
// rule.
type Input struct {
	OrgID           string           `json:"org_id"`
	Name            string           `json:"name"`
	Priority        int              `json:"priority"`
	Conditions      []condition.Node `json:"conditions"`
	TargetAccountID string           `json:"target_account_id"`
	Category        string           `json:"category"`
}

// ListOpts configures filtering and pagination for bank rule listing.
type ListOpts struct {
	Offset          int
	Limit           int
	IncludeInactive bool
}

// Transaction is the imported bank transaction view used for
// classification. Amounts are integer cents.
type Transaction struct {
	MerchantName string `json:"merchant_name"`
	Memo         string `json:"memo"`
	AmountCents  int64  `json:"amount_cents"`
	Direction    string `json:"direction"`
}

// payload exposes the transaction's fields to the condition evaluator.
func (t Transaction) payload() map[string]any {
	return map[string]any{
		"merchant_name": t.MerchantName,
		"memo":          t.Memo,
		"amount_cents":  t.AmountCents,
		"direction":     t.Direction,
	}
}
