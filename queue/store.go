package queue

import (
	"context"
	"time"

	"github.com/ripplehq/ripple/id"
)

// Store defines the persistence contract for queue items.
type Store interface {
	// Enqueue creates a pending item.
	Enqueue(ctx context.Context, it *Item) error

	// GetItem returns an item by ID, or ripple.ErrItemNotFound.
	GetItem(ctx context.Context, itemID id.ID) (*Item, error)

	// ClaimBatch atomically transitions up to limit due pending items to
	// claimed for the given worker and returns them, ordered by
	// scheduled_for then created_at. Implementations must guarantee no
	// item is returned to two concurrent callers (e.g. FOR UPDATE SKIP
	// LOCKED).
	ClaimBatch(ctx context.Context, limit int, workerID string) ([]*Item, error)

	// MarkDone transitions a claimed item to done.
	MarkDone(ctx context.Context, itemID id.ID) error

	// Requeue transitions a claimed item back to pending with the given
	// schedule, incrementing the attempt count and recording the error.
	// The next claim waits on scheduled_for, not on status.
	Requeue(ctx context.Context, itemID id.ID, scheduledFor time.Time, lastError string) error

	// MarkDead transitions an item to dead, recording the error.
	MarkDead(ctx context.Context, itemID id.ID, lastError string) error

	// RequeueDead transitions a dead item back to pending with a fresh
	// attempt budget. Returns ripple.ErrNotDead for items in any other
	// status.
	RequeueDead(ctx context.Context, itemID id.ID) error

	// ListItems returns an org's items, newest first.
	ListItems(ctx context.Context, orgID string, opts ListOpts) ([]*Item, error)

	// CountByStatus returns the number of items per status for an org.
	// An empty orgID counts across all organizations.
	CountByStatus(ctx context.Context, orgID string) (Stats, error)
}
