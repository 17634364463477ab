package rule_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/store/memory"
)

func newRuleService() *rule.Service {
	return rule.NewService(memory.New(), nil, nil, nil)
}

func TestRuleServiceCreateGet(t *testing.T) {
	svc := newRuleService()
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if r.ID.String() == "" {
		t.Fatal("expected non-empty ID")
	}
	if !r.IsActive {
		t.Fatal("expected new rule to be active")
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != r.Name {
		t.Fatalf("got name %q", got.Name)
	}
}

func TestRuleServiceGetNotFound(t *testing.T) {
	svc := newRuleService()

	_, err := svc.Get(context.Background(), id.NewRuleID())
	if !errors.Is(err, ripple.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestRuleServiceUpdate(t *testing.T) {
	svc := newRuleService()
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validInput()
	in.Name = "renamed"
	in.OrgID = "org-other" // ignored, org is immutable
	in.StopOnError = true

	updated, err := svc.Update(ctx, r.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("got name %q", updated.Name)
	}
	if updated.OrgID != "org-1" {
		t.Fatalf("org changed to %q", updated.OrgID)
	}
	if !updated.StopOnError {
		t.Fatal("stop_on_error not updated")
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatal("expected UpdatedAt to advance")
	}
}

func TestRuleServiceUpdateRejectsInvalid(t *testing.T) {
	svc := newRuleService()
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validInput()
	in.Actions = nil
	if _, err := svc.Update(ctx, r.ID, in); err == nil {
		t.Fatal("expected validation error")
	}

	// Stored rule untouched.
	got, _ := svc.Get(ctx, r.ID)
	if len(got.Actions) != 1 {
		t.Fatalf("stored rule mutated: %d actions", len(got.Actions))
	}
}

func TestRuleServiceList(t *testing.T) {
	svc := newRuleService()
	ctx := context.Background()

	var deactivated id.ID
	for i := 0; i < 3; i++ {
		r, err := svc.Create(ctx, validInput())
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			deactivated = r.ID
		}
	}
	if err := svc.SetActive(ctx, deactivated, false); err != nil {
		t.Fatal(err)
	}

	active, err := svc.List(ctx, "org-1", rule.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active rules, got %d", len(active))
	}

	all, err := svc.List(ctx, "org-1", rule.ListOpts{IncludeInactive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(all))
	}

	page, err := svc.List(ctx, "org-1", rule.ListOpts{IncludeInactive: true, Offset: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 rule in page, got %d", len(page))
	}
}
