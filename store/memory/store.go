// Package memory provides an in-memory Store implementation for unit
// testing and examples.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/audit"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
	ripplestore "github.com/ripplehq/ripple/store"
)

// compile-time interface check.
var _ ripplestore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	rules     map[string]*rule.Rule      // keyed by ID string
	bankRules map[string]*bankrule.Rule  // keyed by ID string
	items     map[string]*queue.Item     // keyed by ID string
	records   map[string]*ledger.Record  // keyed by provider + NUL + external ID
	audits    []*audit.Entry

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		rules:     make(map[string]*rule.Rule),
		bankRules: make(map[string]*bankrule.Rule),
		items:     make(map[string]*queue.Item),
		records:   make(map[string]*ledger.Record),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ripple.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// rule.Store
// ──────────────────────────────────────────────────

// CreateRule persists a new rule.
func (s *Store) CreateRule(_ context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[r.ID.String()] = copyRule(r)
	return nil
}

// GetRule returns a rule by ID.
func (s *Store) GetRule(_ context.Context, ruleID id.ID) (*rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[ruleID.String()]
	if !ok {
		return nil, ripple.ErrRuleNotFound
	}
	return copyRule(r), nil
}

// UpdateRule replaces an existing rule.
func (s *Store) UpdateRule(_ context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID.String()]; !ok {
		return ripple.ErrRuleNotFound
	}
	s.rules[r.ID.String()] = copyRule(r)
	return nil
}

// SetRuleActive flips a rule's active flag.
func (s *Store) SetRuleActive(_ context.Context, ruleID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID.String()]
	if !ok {
		return ripple.ErrRuleNotFound
	}
	r.IsActive = active
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ListRules returns an org's rules ordered by creation time.
func (s *Store) ListRules(_ context.Context, orgID string, opts rule.ListOpts) ([]*rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.OrgID != orgID {
			continue
		}
		if !opts.IncludeInactive && !r.IsActive {
			continue
		}
		result = append(result, copyRule(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListActiveRules returns every active rule for an org.
func (s *Store) ListActiveRules(ctx context.Context, orgID string) ([]*rule.Rule, error) {
	return s.ListRules(ctx, orgID, rule.ListOpts{})
}

// ──────────────────────────────────────────────────
// bankrule.Store
// ──────────────────────────────────────────────────

// CreateBankRule persists a new bank rule.
func (s *Store) CreateBankRule(_ context.Context, r *bankrule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bankRules[r.ID.String()] = copyBankRule(r)
	return nil
}

// GetBankRule returns a bank rule by ID.
func (s *Store) GetBankRule(_ context.Context, ruleID id.ID) (*bankrule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.bankRules[ruleID.String()]
	if !ok {
		return nil, ripple.ErrBankRuleNotFound
	}
	return copyBankRule(r), nil
}

// UpdateBankRule replaces an existing bank rule.
func (s *Store) UpdateBankRule(_ context.Context, r *bankrule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bankRules[r.ID.String()]; !ok {
		return ripple.ErrBankRuleNotFound
	}
	s.bankRules[r.ID.String()] = copyBankRule(r)
	return nil
}

// SetBankRuleActive flips a bank rule's active flag.
func (s *Store) SetBankRuleActive(_ context.Context, ruleID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.bankRules[ruleID.String()]
	if !ok {
		return ripple.ErrBankRuleNotFound
	}
	r.IsActive = active
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ListBankRules returns an org's bank rules in classification order.
func (s *Store) ListBankRules(_ context.Context, orgID string, opts bankrule.ListOpts) ([]*bankrule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*bankrule.Rule, 0, len(s.bankRules))
	for _, r := range s.bankRules {
		if r.OrgID != orgID {
			continue
		}
		if !opts.IncludeInactive && !r.IsActive {
			continue
		}
		result = append(result, copyBankRule(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListActiveBankRules returns every active bank rule for an org.
func (s *Store) ListActiveBankRules(ctx context.Context, orgID string) ([]*bankrule.Rule, error) {
	return s.ListBankRules(ctx, orgID, bankrule.ListOpts{})
}

// ──────────────────────────────────────────────────
// queue.Store
// ──────────────────────────────────────────────────

// Enqueue creates a pending item.
func (s *Store) Enqueue(_ context.Context, it *queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[it.ID.String()] = copyItem(it)
	return nil
}

// GetItem returns a copy of the item by ID.
func (s *Store) GetItem(_ context.Context, itemID id.ID) (*queue.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[itemID.String()]
	if !ok {
		return nil, ripple.ErrItemNotFound
	}
	return copyItem(it), nil
}

// ClaimBatch atomically claims up to limit due items. The single lock
// stands in for FOR UPDATE SKIP LOCKED; no item is ever returned twice.
// Returns copies so callers can mutate without holding the lock.
func (s *Store) ClaimBatch(_ context.Context, limit int, workerID string) ([]*queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	candidates := make([]*queue.Item, 0, len(s.items))
	for _, it := range s.items {
		if it.Status != queue.StatusPending {
			continue
		}
		if it.ScheduledFor.After(now) {
			continue
		}
		candidates = append(candidates, it)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ScheduledFor.Equal(candidates[j].ScheduledFor) {
			return candidates[i].ScheduledFor.Before(candidates[j].ScheduledFor)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	claimedAt := time.Now().UTC()
	result := make([]*queue.Item, 0, len(candidates))
	for _, it := range candidates {
		it.Status = queue.StatusClaimed
		it.ClaimedBy = workerID
		it.ClaimedAt = &claimedAt
		it.UpdatedAt = claimedAt
		result = append(result, copyItem(it))
	}

	return result, nil
}

// MarkDone completes an item.
func (s *Store) MarkDone(_ context.Context, itemID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID.String()]
	if !ok {
		return ripple.ErrItemNotFound
	}

	now := time.Now().UTC()
	it.Status = queue.StatusDone
	it.AttemptCount++
	it.CompletedAt = &now
	it.ClaimedBy = ""
	it.ClaimedAt = nil
	it.UpdatedAt = now
	return nil
}

// Requeue returns a claimed item to pending after a failed attempt; the
// backoff lives entirely in scheduled_for.
func (s *Store) Requeue(_ context.Context, itemID id.ID, scheduledFor time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID.String()]
	if !ok {
		return ripple.ErrItemNotFound
	}

	it.Status = queue.StatusPending
	it.AttemptCount++
	it.ScheduledFor = scheduledFor
	it.LastError = lastError
	it.ClaimedBy = ""
	it.ClaimedAt = nil
	it.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDead moves an item to dead.
func (s *Store) MarkDead(_ context.Context, itemID id.ID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID.String()]
	if !ok {
		return ripple.ErrItemNotFound
	}

	now := time.Now().UTC()
	it.Status = queue.StatusDead
	it.AttemptCount++
	it.LastError = lastError
	it.CompletedAt = &now
	it.ClaimedBy = ""
	it.ClaimedAt = nil
	it.UpdatedAt = now
	return nil
}

// RequeueDead returns a dead item to pending with a fresh attempt budget.
func (s *Store) RequeueDead(_ context.Context, itemID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID.String()]
	if !ok {
		return ripple.ErrItemNotFound
	}
	if it.Status != queue.StatusDead {
		return ripple.ErrNotDead
	}

	it.Status = queue.StatusPending
	it.AttemptCount = 0
	it.ScheduledFor = time.Now().UTC()
	it.LastError = ""
	it.CompletedAt = nil
	it.UpdatedAt = time.Now().UTC()
	return nil
}

// ListItems returns an org's items, newest first.
func (s *Store) ListItems(_ context.Context, orgID string, opts queue.ListOpts) ([]*queue.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*queue.Item, 0, len(s.items))
	for _, it := range s.items {
		if it.OrgID != orgID {
			continue
		}
		if opts.Status != nil && it.Status != *opts.Status {
			continue
		}
		result = append(result, copyItem(it))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountByStatus returns queue depth per status for an org. An empty orgID
// counts across all organizations.
func (s *Store) CountByStatus(_ context.Context, orgID string) (queue.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats queue.Stats
	for _, it := range s.items {
		if orgID != "" && it.OrgID != orgID {
			continue
		}
		switch it.Status {
		case queue.StatusPending:
			stats.Pending++
		case queue.StatusClaimed:
			stats.Claimed++
		case queue.StatusDone:
			stats.Done++
		case queue.StatusFailed:
			stats.Failed++
		case queue.StatusDead:
			stats.Dead++
		}
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// ledger.Store
// ──────────────────────────────────────────────────

func recordKey(provider, externalEventID string) string {
	return provider + "\x00" + externalEventID
}

// InsertRecord persists a record; the map insert under lock provides the
// uniqueness guarantee.
func (s *Store) InsertRecord(_ context.Context, rec *ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.Provider, rec.ExternalEventID)
	if _, ok := s.records[key]; ok {
		return ledger.ErrDuplicateExternalEvent
	}

	cp := *rec
	s.records[key] = &cp
	return nil
}

// GetRecord returns the record for an external event.
func (s *Store) GetRecord(_ context.Context, provider, externalEventID string) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(provider, externalEventID)]
	if !ok {
		return nil, ripple.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// SetRecordOutcome updates a record's outcome.
func (s *Store) SetRecordOutcome(_ context.Context, provider, externalEventID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey(provider, externalEventID)]
	if !ok {
		return ripple.ErrRecordNotFound
	}
	rec.Outcome = outcome
	return nil
}

// ──────────────────────────────────────────────────
// audit.Store
// ──────────────────────────────────────────────────

// AppendAudit persists an audit entry.
func (s *Store) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.audits = append(s.audits, &cp)
	return nil
}

// ListAudit returns an org's audit entries, newest first.
func (s *Store) ListAudit(_ context.Context, orgID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Entry, 0, len(s.audits))
	for _, e := range s.audits {
		if e.OrgID != orgID {
			continue
		}
		if opts.Action != "" && e.Action != opts.Action {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	// Append order is chronological; reverse for newest first.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyRule(r *rule.Rule) *rule.Rule {
	cp := *r
	return &cp
}

func copyBankRule(r *bankrule.Rule) *bankrule.Rule {
	cp := *r
	return &cp
}

func copyItem(it *queue.Item) *queue.Item {
	cp := *it
	return &cp
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
