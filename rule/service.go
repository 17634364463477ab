package rule

import (
	"context"
	"log/slog"

	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
)

// Auditor records rule configuration changes. Best effort; implementations
// must not fail the calling operation.
type Auditor interface {
	Record(ctx context.Context, orgID, action, subject string, detail map[string]string)
}

// Service provides rule management operations. Mutations invalidate the
// matcher's per-org cache so the dispatcher picks up changes within one
// cache TTL at most.
type Service struct {
	store     Store
	validator *Validator
	matcher   *Matcher
	auditor   Auditor
	logger    *slog.Logger
}

// NewService creates a rule service. The matcher and auditor are optional.
func NewService(store Store, matcher *Matcher, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		validator: NewValidator(),
		matcher:   matcher,
		auditor:   auditor,
		logger:    logger,
	}
}

// Create validates and persists a new rule. New rules start active.
func (svc *Service) Create(ctx context.Context, in Input) (*Rule, error) {
	if err := svc.validator.Validate(in); err != nil {
		return nil, err
	}

	r := &Rule{
		Entity:        entity.New(),
		ID:            id.NewRuleID(),
		OrgID:         in.OrgID,
		Name:          in.Name,
		TriggerEvents: in.TriggerEvents,
		Conditions:    in.Conditions,
		Actions:       in.Actions,
		IsActive:      true,
		StopOnError:   in.StopOnError,
	}

	if err := svc.store.CreateRule(ctx, r); err != nil {
		return nil, err
	}

	svc.invalidate(r.OrgID)
	svc.audit(ctx, r.OrgID, "rule.created", r.ID.String(), map[string]string{"name": r.Name})

	return r, nil
}

// Get returns a rule by ID.
func (svc *Service) Get(ctx context.Context, ruleID id.ID) (*Rule, error) {
	return svc.store.GetRule(ctx, ruleID)
}

// Update replaces a rule's configuration. The org cannot change.
func (svc *Service) Update(ctx context.Context, ruleID id.ID, in Input) (*Rule, error) {
	r, err := svc.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	in.OrgID = r.OrgID
	if err := svc.validator.Validate(in); err != nil {
		return nil, err
	}

	r.Name = in.Name
	r.TriggerEvents = in.TriggerEvents
	r.Conditions = in.Conditions
	r.Actions = in.Actions
	r.StopOnError = in.StopOnError
	r.Touch()

	if err := svc.store.UpdateRule(ctx, r); err != nil {
		return nil, err
	}

	svc.invalidate(r.OrgID)
	svc.audit(ctx, r.OrgID, "rule.updated", r.ID.String(), map[string]string{"name": r.Name})

	return r, nil
}

// SetActive activates or deactivates a rule. Deactivation removes it from
// matching without touching its execution history.
func (svc *Service) SetActive(ctx context.Context, ruleID id.ID, active bool) error {
	r, err := svc.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}

	if err := svc.store.SetRuleActive(ctx, ruleID, active); err != nil {
		return err
	}

	svc.invalidate(r.OrgID)

	action := "rule.deactivated"
	if active {
		action = "rule.activated"
	}
	svc.audit(ctx, r.OrgID, action, ruleID.String(), nil)

	return nil
}

// List returns an org's rules.
func (svc *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*Rule, error) {
	return svc.store.ListRules(ctx, orgID, opts)
}

func (svc *Service) invalidate(orgID string) {
	if svc.matcher != nil {
		svc.matcher.Invalidate(orgID)
	}
}

func (svc *Service) audit(ctx context.Context, orgID, action, subject string, detail map[string]string) {
	if svc.auditor != nil {
		svc.auditor.Record(ctx, orgID, action, subject, detail)
	}
}
