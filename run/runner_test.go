package run_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/run"
)

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendTemplate(ctx context.Context, orgID, to, template string, metadata map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to+":"+template)
	return nil
}

type fakeTaskCreator struct {
	tasks []run.TaskInput
	err   error
}

func (c *fakeTaskCreator) CreateTask(ctx context.Context, in run.TaskInput) error {
	if c.err != nil {
		return c.err
	}
	c.tasks = append(c.tasks, in)
	return nil
}

type fakeMutator struct {
	updates int
}

func (m *fakeMutator) UpdateRecord(ctx context.Context, orgID, entityType, entityID string, fields map[string]any) error {
	m.updates++
	return nil
}

type fakeEmitter struct {
	emitted []string
	depths  []int
}

func (e *fakeEmitter) EmitChained(ctx context.Context, orgID, eventType string, payload map[string]any, chainDepth int) error {
	e.emitted = append(e.emitted, eventType)
	e.depths = append(e.depths, chainDepth)
	return nil
}

func newRule(stopOnError bool, actions ...rule.Action) *rule.Rule {
	return &rule.Rule{
		Entity:        entity.New(),
		ID:            id.NewRuleID(),
		OrgID:         "org-1",
		Name:          "test rule",
		TriggerEvents: []string{"*"},
		Conditions:    condition.Node{},
		Actions:       actions,
		IsActive:      true,
		StopOnError:   stopOnError,
	}
}

func newEvent() event.DomainEvent {
	return event.DomainEvent{
		OrgID:      "org-1",
		Type:       "donation.received",
		Payload:    map[string]any{"amount_cents": 5000},
		OccurredAt: time.Now().UTC(),
		Source:     event.SourceInternal,
	}
}

func runnerWith(collab run.Collaborators) *run.Runner {
	return run.NewRunner(collab, nil, run.Config{
		ActionTimeout: time.Second,
		MaxChainDepth: 3,
	}, nil, nil)
}

func TestRunRuleAllActionsSucceed(t *testing.T) {
	mailer := &fakeMailer{}
	tasks := &fakeTaskCreator{}
	r := runnerWith(run.Collaborators{Mailer: mailer, TaskCreator: tasks})

	res := r.RunRule(context.Background(), newRule(false,
		rule.Action{Type: rule.ActionSendEmail, Params: rule.MustParams(rule.SendEmailParams{
			To: "donor@example.org", Template: "thanks",
		})},
		rule.Action{Type: rule.ActionCreateTask, Params: rule.MustParams(rule.CreateTaskParams{
			Title: "follow up", DueInDays: 3,
		})},
	), newEvent(), 0)

	if res.Err() != nil {
		t.Fatalf("unexpected error: %v", res.Err())
	}
	if res.Completed != 2 {
		t.Fatalf("got %d completed", res.Completed)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "donor@example.org:thanks" {
		t.Fatalf("mailer calls: %v", mailer.sent)
	}
	if len(tasks.tasks) != 1 || tasks.tasks[0].DueAt == nil {
		t.Fatalf("task calls: %+v", tasks.tasks)
	}
}

func TestRunRuleStopOnError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	tasks := &fakeTaskCreator{}
	r := runnerWith(run.Collaborators{Mailer: mailer, TaskCreator: tasks})

	res := r.RunRule(context.Background(), newRule(true,
		rule.Action{Type: rule.ActionSendEmail, Params: rule.MustParams(rule.SendEmailParams{
			To: "a@b.c", Template: "t",
		})},
		rule.Action{Type: rule.ActionCreateTask, Params: rule.MustParams(rule.CreateTaskParams{
			Title: "never runs",
		})},
	), newEvent(), 0)

	if res.Err() == nil {
		t.Fatal("expected error")
	}
	if res.Skipped != 1 {
		t.Fatalf("got %d skipped", res.Skipped)
	}
	if len(tasks.tasks) != 0 {
		t.Fatal("second action should not run")
	}
}

func TestRunRuleContinueOnError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	tasks := &fakeTaskCreator{}
	r := runnerWith(run.Collaborators{Mailer: mailer, TaskCreator: tasks})

	res := r.RunRule(context.Background(), newRule(false,
		rule.Action{Type: rule.ActionSendEmail, Params: rule.MustParams(rule.SendEmailParams{
			To: "a@b.c", Template: "t",
		})},
		rule.Action{Type: rule.ActionCreateTask, Params: rule.MustParams(rule.CreateTaskParams{
			Title: "still runs",
		})},
	), newEvent(), 0)

	if res.Err() == nil {
		t.Fatal("expected error")
	}
	if res.Completed != 1 {
		t.Fatalf("got %d completed", res.Completed)
	}
	if len(tasks.tasks) != 1 {
		t.Fatal("second action should still run")
	}
}

func TestRunRuleMissingCollaboratorIsPermanent(t *testing.T) {
	r := runnerWith(run.Collaborators{})

	res := r.RunRule(context.Background(), newRule(false,
		rule.Action{Type: rule.ActionSendEmail, Params: rule.MustParams(rule.SendEmailParams{
			To: "a@b.c", Template: "t",
		})},
	), newEvent(), 0)

	aerr := res.Err()
	if aerr == nil {
		t.Fatal("expected error")
	}
	if aerr.Transient {
		t.Fatal("missing collaborator should be permanent")
	}
}

func TestRunRuleTriggerEvent(t *testing.T) {
	emitter := &fakeEmitter{}
	r := runnerWith(run.Collaborators{ChainEmitter: emitter})

	res := r.RunRule(context.Background(), newRule(false,
		rule.Action{Type: rule.ActionTriggerEvent, Params: rule.MustParams(rule.TriggerEventParams{
			EventType: "donor.upgraded",
			Payload:   map[string]any{"tier": "major"},
		})},
	), newEvent(), 1)

	if res.Err() != nil {
		t.Fatalf("unexpected error: %v", res.Err())
	}
	if len(emitter.emitted) != 1 || emitter.emitted[0] != "donor.upgraded" {
		t.Fatalf("emitted: %v", emitter.emitted)
	}
	if emitter.depths[0] != 2 {
		t.Fatalf("got chain depth %d, want 2", emitter.depths[0])
	}
}

func TestRunRuleRecursionLimit(t *testing.T) {
	emitter := &fakeEmitter{}
	r := runnerWith(run.Collaborators{ChainEmitter: emitter})

	res := r.RunRule(context.Background(), newRule(false,
		rule.Action{Type: rule.ActionTriggerEvent, Params: rule.MustParams(rule.TriggerEventParams{
			EventType: "loop.step",
		})},
	), newEvent(), 3) // depth already at the bound

	aerr := res.Err()
	if aerr == nil {
		t.Fatal("expected error")
	}
	if aerr.Transient {
		t.Fatal("recursion limit should be permanent")
	}
	if !errors.Is(aerr, run.ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", aerr)
	}
	if len(emitter.emitted) != 0 {
		t.Fatal("no event should be emitted past the limit")
	}
}

func TestRunRuleWait(t *testing.T) {
	r := run.NewRunner(run.Collaborators{}, nil, run.Config{
		ActionTimeout: 10 * time.Millisecond, // wait is exempt from this
		MaxChainDepth: 3,
	}, nil, nil)

	mutator := &fakeMutator{}
	r = run.NewRunner(run.Collaborators{RecordMutator: mutator}, nil, run.Config{
		ActionTimeout: 10 * time.Millisecond,
		MaxChainDepth: 3,
	}, nil, nil)

	start := time.Now()
	res := r.RunRule(context.Background(), newRule(false,
		rule.Action{Type: rule.ActionWait, Params: rule.MustParams(rule.WaitParams{Seconds: 1})},
		rule.Action{Type: rule.ActionUpdateRecord, Params: rule.MustParams(rule.UpdateRecordParams{
			EntityType: "donor", EntityID: "d1", Fields: map[string]any{"tier": "gold"},
		})},
	), newEvent(), 0)

	if res.Err() != nil {
		t.Fatalf("unexpected error: %v", res.Err())
	}
	if time.Since(start) < time.Second {
		t.Fatal("wait did not block")
	}
	if mutator.updates != 1 {
		t.Fatal("update_record did not run after wait")
	}
}

func TestRunRuleWaitCancelled(t *testing.T) {
	r := runnerWith(run.Collaborators{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := r.RunRule(ctx, newRule(false,
		rule.Action{Type: rule.ActionWait, Params: rule.MustParams(rule.WaitParams{Seconds: 60})},
	), newEvent(), 0)

	aerr := res.Err()
	if aerr == nil {
		t.Fatal("expected error")
	}
	if !aerr.Transient {
		t.Fatal("cancelled wait should be transient")
	}
}
