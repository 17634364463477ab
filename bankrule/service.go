package bankrule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
)

// ValidationError indicates a malformed bank rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "bank rule validation: " + e.Field + ": " + e.Message
}

// Auditor records bank rule configuration changes. Best effort.
type Auditor interface {
	Record(ctx context.Context, orgID, action, subject string, detail map[string]string)
}

// Service provides bank rule management and transaction classification.
type Service struct {
	store   Store
	auditor Auditor
	logger  *slog.Logger
}

// NewService creates a bank rule service. The auditor is optional.
func NewService(store Store, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		auditor: auditor,
		logger:  logger,
	}
}

// Create validates and persists a new rule. New rules start active.
func (svc *Service) Create(ctx context.Context, in Input) (*Rule, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	r := &Rule{
		Entity:          entity.New(),
		ID:              id.NewBankRuleID(),
		OrgID:           in.OrgID,
		Name:            in.Name,
		Priority:        in.Priority,
		Conditions:      in.Conditions,
		TargetAccountID: in.TargetAccountID,
		Category:        in.Category,
		IsActive:        true,
	}

	if err := svc.store.CreateBankRule(ctx, r); err != nil {
		return nil, err
	}

	svc.audit(ctx, r.OrgID, "bank_rule.created", r.ID.String(), map[string]string{"name": r.Name})

	return r, nil
}

// Get returns a rule by ID.
func (svc *Service) Get(ctx context.Context, ruleID id.ID) (*Rule, error) {
	return svc.store.GetBankRule(ctx, ruleID)
}

// Update replaces a rule's configuration. The org cannot change.
func (svc *Service) Update(ctx context.Context, ruleID id.ID, in Input) (*Rule, error) {
	r, err := svc.store.GetBankRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	in.OrgID = r.OrgID
	if err := validate(in); err != nil {
		return nil, err
	}

	r.Name = in.Name
	r.Priority = in.Priority
	r.Conditions = in.Conditions
	r.TargetAccountID = in.TargetAccountID
	r.Category = in.Category
	r.Touch()

	if err := svc.store.UpdateBankRule(ctx, r); err != nil {
		return nil, err
	}

	svc.audit(ctx, r.OrgID, "bank_rule.updated", r.ID.String(), map[string]string{"name": r.Name})

	return r, nil
}

// SetActive activates or deactivates a rule.
func (svc *Service) SetActive(ctx context.Context, ruleID id.ID, active bool) error {
	r, err := svc.store.GetBankRule(ctx, ruleID)
	if err != nil {
		return err
	}

	if err := svc.store.SetBankRuleActive(ctx, ruleID, active); err != nil {
		return err
	}

	action := "bank_rule.deactivated"
	if active {
		action = "bank_rule.activated"
	}
	svc.audit(ctx, r.OrgID, action, ruleID.String(), nil)

	return nil
}

// List returns an org's rules in classification order.
func (svc *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*Rule, error) {
	return svc.store.ListBankRules(ctx, orgID, opts)
}

// Classify returns the best ranked active rule matching the transaction:
// highest priority wins, ties break on creation time (oldest first). Returns
// (nil, nil) when no rule matches; unclassified transactions are left for
// manual review.
func (svc *Service) Classify(ctx context.Context, orgID string, txn Transaction) (*Rule, error) {
	rules, err := svc.store.ListActiveBankRules(ctx, orgID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	payload := txn.payload()
	for _, r := range rules {
		if matches(r, payload) {
			return r, nil
		}
	}
	return nil, nil
}

// matches requires every condition entry to pass.
func matches(r *Rule, payload map[string]any) bool {
	for _, n := range r.Conditions {
		if !condition.Evaluate(n, payload) {
			return false
		}
	}
	return true
}

func validate(in Input) error {
	if in.OrgID == "" {
		return &ValidationError{Field: "org_id", Message: "required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	if in.Priority < 0 {
		return &ValidationError{Field: "priority", Message: "must be non-negative"}
	}
	if in.TargetAccountID == "" && in.Category == "" {
		return &ValidationError{Field: "target_account_id", Message: "target account or category required"}
	}
	for i, n := range in.Conditions {
		if n.IsZero() {
			return &ValidationError{Field: fmt.Sprintf("conditions[%d]", i), Message: "empty condition"}
		}
		if err := checkNode(n, fmt.Sprintf("conditions[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func checkNode(n condition.Node, path string) error {
	if n.All != nil || n.Any != nil {
		children := n.All
		key := "all"
		if n.Any != nil {
			children = n.Any
			key = "any"
		}
		for i, child := range children {
			if err := checkNode(child, fmt.Sprintf("%s.%s[%d]", path, key, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if n.Field == "" {
		return &ValidationError{Field: path, Message: "field required"}
	}
	if !condition.Known(n.Op) {
		return &ValidationError{Field: path, Message: fmt.Sprintf("unknown operator %q", n.Op)}
	}
	return nil
}

func (svc *Service) audit(ctx context.Context, orgID, action, subject string, detail map[string]string) {
	if svc.auditor != nil {
		svc.auditor.Record(ctx, orgID, action, subject, detail)
	}
}
