package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/dispatch"
	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/run"
	"github.com/ripplehq/ripple/store/memory"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) SendTemplate(ctx context.Context, orgID, to, template string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, template)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	queue      *queue.Service
	rules      *rule.Service
	dispatcher *dispatch.Dispatcher
	mailer     *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := memory.New()
	q := queue.NewService(s, queue.Config{
		MaxAttempts: 2,
		Backoff:     queue.Backoff{Base: time.Millisecond, Cap: 10 * time.Millisecond},
	}, nil)

	matcher := rule.NewMatcher(s, 0, nil)
	rules := rule.NewService(s, matcher, nil, nil)

	mailer := &recordingMailer{}
	runner := run.NewRunner(run.Collaborators{Mailer: mailer}, nil, run.Config{
		ActionTimeout: time.Second,
		MaxChainDepth: 3,
	}, nil, nil)

	d := dispatch.NewDispatcher(q, matcher, s, runner, dispatch.Config{Concurrency: 4}, nil)

	return &fixture{queue: q, rules: rules, dispatcher: d, mailer: mailer}
}

func (f *fixture) createRule(t *testing.T, in rule.Input) *rule.Rule {
	t.Helper()
	r, err := f.rules.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func emailRule() rule.Input {
	return rule.Input{
		OrgID:         "org-1",
		Name:          "thank donors",
		TriggerEvents: []string{"donation.received"},
		Actions: []rule.Action{
			{Type: rule.ActionSendEmail, Params: rule.MustParams(rule.SendEmailParams{
				To: "donor@example.org", Template: "thanks",
			})},
		},
	}
}

func donation(amountCents int) event.DomainEvent {
	return event.DomainEvent{
		OrgID:      "org-1",
		Type:       "donation.received",
		Payload:    map[string]any{"amount_cents": amountCents},
		OccurredAt: time.Now().UTC(),
		Source:     event.SourceInternal,
	}
}

func TestRunBatchProcessesMatchingItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createRule(t, emailRule())
	for i := 0; i < 3; i++ {
		if _, err := f.queue.Enqueue(ctx, donation(1000)); err != nil {
			t.Fatal(err)
		}
	}

	res, err := f.dispatcher.RunBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.WorkerID == "" {
		t.Fatal("expected worker ID")
	}
	if res.Claimed != 3 || res.Succeeded != 3 {
		t.Fatalf("got %+v", res)
	}
	if f.mailer.count() != 3 {
		t.Fatalf("mailer called %d times", f.mailer.count())
	}

	// Nothing left to claim.
	res, err = f.dispatcher.RunBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Claimed != 0 {
		t.Fatalf("expected empty batch, got %+v", res)
	}
}

func TestRunBatchNoMatchIsSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No rules at all: the item completes with zero rules run.
	it, err := f.queue.Enqueue(ctx, donation(1000))
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.dispatcher.RunBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("got %+v", res)
	}

	got, _ := f.queue.Get(ctx, it.ID)
	if got.Status != queue.StatusDone {
		t.Fatalf("got status %q", got.Status)
	}
}

func TestRunBatchTransientFailureRetriesThenDies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createRule(t, emailRule())
	f.mailer.err = errors.New("smtp down")

	it, err := f.queue.Enqueue(ctx, donation(1000))
	if err != nil {
		t.Fatal(err)
	}

	// First attempt reschedules.
	res, err := f.dispatcher.RunBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("got %+v", res)
	}

	// Wait out the backoff, second attempt exhausts MaxAttempts=2.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res, err = f.dispatcher.RunBatch(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if res.Dead == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if res.Dead != 1 {
		t.Fatalf("item never died: %+v", res)
	}

	got, _ := f.queue.Get(ctx, it.ID)
	if got.Status != queue.StatusDead {
		t.Fatalf("got status %q", got.Status)
	}
}

func TestRunBatchPinnedRuleBypassesMatching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The rule's trigger does not match the event type; pinning runs it
	// anyway.
	r := f.createRule(t, rule.Input{
		OrgID:         "org-1",
		Name:          "manual only",
		TriggerEvents: []string{"never.fires"},
		Conditions:    condition.Node{Field: "amount_cents", Op: condition.OpGte, Value: 1_000_000},
		Actions: []rule.Action{
			{Type: rule.ActionSendEmail, Params: rule.MustParams(rule.SendEmailParams{
				To: "ops@example.org", Template: "manual",
			})},
		},
	})

	_, err := f.queue.Enqueue(ctx, donation(5), queue.WithRule(r.ID))
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.dispatcher.RunBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("got %+v", res)
	}
	if f.mailer.count() != 1 {
		t.Fatal("pinned rule did not run")
	}
}

func TestTestEventDryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createRule(t, emailRule())

	matched, err := f.dispatcher.TestEvent(ctx, donation(1000))
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 {
		t.Fatalf("got %d matches", len(matched))
	}
	if f.mailer.count() != 0 {
		t.Fatal("dry run executed actions")
	}
}

func TestPoller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createRule(t, emailRule())
	if _, err := f.queue.Enqueue(ctx, donation(1000)); err != nil {
		t.Fatal(err)
	}

	p := dispatch.NewPoller(f.dispatcher, 5*time.Millisecond, 10, nil)
	p.Start(ctx)
	defer p.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.mailer.count() == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("poller never processed the item")
}
