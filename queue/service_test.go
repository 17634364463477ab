package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/store/memory"
)

func newQueue(t *testing.T) *queue.Service {
	t.Helper()
	return queue.NewService(memory.New(), queue.Config{
		MaxAttempts: 3,
		Backoff:     queue.Backoff{Base: time.Millisecond, Cap: 10 * time.Millisecond},
	}, nil)
}

func testEvent() event.DomainEvent {
	return event.DomainEvent{
		OrgID:      "org-1",
		Type:       "donation.received",
		Payload:    map[string]any{"amount_cents": 5000},
		OccurredAt: time.Now().UTC(),
		Source:     event.SourceInternal,
	}
}

func TestEnqueueClaim(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	it, err := svc.Enqueue(ctx, testEvent())
	if err != nil {
		t.Fatal(err)
	}
	if it.Status != queue.StatusPending {
		t.Fatalf("got status %q", it.Status)
	}

	claimed, err := svc.ClaimBatch(ctx, 10, "wrk-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(claimed))
	}
	if claimed[0].Status != queue.StatusClaimed {
		t.Fatalf("got status %q", claimed[0].Status)
	}
	if claimed[0].ClaimedBy != "wrk-1" {
		t.Fatalf("got claimed_by %q", claimed[0].ClaimedBy)
	}

	// Claimed items are invisible to other workers.
	again, err := svc.ClaimBatch(ctx, 10, "wrk-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("expected 0 claims, got %d", len(again))
	}
}

func TestScheduledItemsNotClaimable(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, testEvent(), queue.WithSchedule(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}

	claimed, err := svc.ClaimBatch(ctx, 10, "wrk-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Fatalf("future-scheduled item claimed: %d", len(claimed))
	}
}

func TestMarkDone(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	it, _ := svc.Enqueue(ctx, testEvent())
	claimed, _ := svc.ClaimBatch(ctx, 1, "wrk-1")
	if len(claimed) != 1 {
		t.Fatal("claim failed")
	}

	if err := svc.MarkDone(ctx, claimed[0]); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != queue.StatusDone {
		t.Fatalf("got status %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestMarkFailedReschedulesThenDies(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	it, _ := svc.Enqueue(ctx, testEvent())

	// Attempts 1 and 2 reschedule; attempt 3 exhausts the budget.
	for attempt := 1; attempt <= 3; attempt++ {
		var claimed []*queue.Item
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			claimed, _ = svc.ClaimBatch(ctx, 1, "wrk-1")
			if len(claimed) == 1 {
				break
			}
			time.Sleep(2 * time.Millisecond)
		}
		if len(claimed) != 1 {
			t.Fatalf("attempt %d: claim timed out", attempt)
		}

		status, err := svc.MarkFailed(ctx, claimed[0], "boom")
		if err != nil {
			t.Fatal(err)
		}
		want := queue.StatusFailed
		if attempt == 3 {
			want = queue.StatusDead
		}
		if status != want {
			t.Fatalf("attempt %d: got status %q, want %q", attempt, status, want)
		}

		// A rescheduled item waits as pending; only scheduled_for holds it
		// back from the next claim.
		if attempt < 3 {
			stored, err := svc.Get(ctx, it.ID)
			if err != nil {
				t.Fatal(err)
			}
			if stored.Status != queue.StatusPending {
				t.Fatalf("attempt %d: stored status %q, want %q", attempt, stored.Status, queue.StatusPending)
			}
		}
	}

	got, _ := svc.Get(ctx, it.ID)
	if got.Status != queue.StatusDead {
		t.Fatalf("got status %q", got.Status)
	}
	if got.LastError != "boom" {
		t.Fatalf("got last_error %q", got.LastError)
	}
	if got.AttemptCount != 3 {
		t.Fatalf("got attempt_count %d", got.AttemptCount)
	}
}

func TestMarkDeadImmediate(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	it, _ := svc.Enqueue(ctx, testEvent())
	claimed, _ := svc.ClaimBatch(ctx, 1, "wrk-1")

	if err := svc.MarkDead(ctx, claimed[0], "permanent"); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx, it.ID)
	if got.Status != queue.StatusDead {
		t.Fatalf("got status %q", got.Status)
	}
}

func TestRequeueDead(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	it, _ := svc.Enqueue(ctx, testEvent())
	claimed, _ := svc.ClaimBatch(ctx, 1, "wrk-1")
	_ = svc.MarkDead(ctx, claimed[0], "permanent")

	if err := svc.RequeueDead(ctx, it.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx, it.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("got status %q", got.Status)
	}
	if got.AttemptCount != 0 {
		t.Fatalf("expected fresh attempt budget, got %d", got.AttemptCount)
	}

	// Only dead items can be requeued.
	if err := svc.RequeueDead(ctx, it.ID); !errors.Is(err, ripple.ErrNotDead) {
		t.Fatalf("expected ErrNotDead, got %v", err)
	}
}

func TestRequeueDeadNotFound(t *testing.T) {
	svc := newQueue(t)

	err := svc.RequeueDead(context.Background(), id.NewItemID())
	if !errors.Is(err, ripple.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Enqueue(ctx, testEvent()); err != nil {
			t.Fatal(err)
		}
	}
	claimed, _ := svc.ClaimBatch(ctx, 1, "wrk-1")
	_ = svc.MarkDone(ctx, claimed[0])

	stats, err := svc.Stats(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 2 {
		t.Fatalf("got %d pending", stats.Pending)
	}
	if stats.Done != 1 {
		t.Fatalf("got %d done", stats.Done)
	}
}

func TestListItems(t *testing.T) {
	svc := newQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Enqueue(ctx, testEvent()); err != nil {
			t.Fatal(err)
		}
	}

	items, err := svc.List(ctx, "org-1", queue.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items", len(items))
	}

	status := queue.StatusDone
	items, err = svc.List(ctx, "org-1", queue.ListOpts{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("got %d done items", len(items))
	}
}
