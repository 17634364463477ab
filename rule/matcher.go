package rule

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/event"
)

// Match reports whether a trigger pattern matches an event type. Patterns
// are exact event types, a bare "*", or dot-separated segments where "*"
// matches exactly one segment ("donation.*" matches "donation.received"
// but not "donation.refund.issued").
func Match(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	if pattern == eventType {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	eventParts := strings.Split(eventType, ".")

	if len(patternParts) != len(eventParts) {
		return false
	}

	for i, pp := range patternParts {
		if pp == "*" {
			continue
		}
		if pp != eventParts[i] {
			return false
		}
	}

	return true
}

// Matcher selects the active rules that fire for a domain event. Active
// rules are cached per organization with a TTL so a dispatch batch does not
// hit the store once per item.
type Matcher struct {
	store    Store
	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]cachedRules
	logger   *slog.Logger
}

type cachedRules struct {
	rules    []*Rule
	loadedAt time.Time
}

// NewMatcher creates a matcher backed by the given store.
func NewMatcher(store Store, cacheTTL time.Duration, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		store:    store,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedRules),
		logger:   logger,
	}
}

// MatchEvent returns the rules that fire for the event: active, owned by the
// event's org, trigger pattern matches and condition tree passes. Results
// are ordered by creation time (oldest first) with ID as tiebreak so
// execution order is deterministic.
func (m *Matcher) MatchEvent(ctx context.Context, evt event.DomainEvent) ([]*Rule, error) {
	rules, err := m.activeRules(ctx, evt.OrgID)
	if err != nil {
		return nil, err
	}

	var matched []*Rule
	for _, r := range rules {
		if !matchesAnyTrigger(r.TriggerEvents, evt.Type) {
			continue
		}
		if !condition.Evaluate(r.Conditions, evt.Payload) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	return matched, nil
}

// Invalidate drops the cached rule set for an org. Called by the Service
// after any rule mutation.
func (m *Matcher) Invalidate(orgID string) {
	m.mu.Lock()
	delete(m.cache, orgID)
	m.mu.Unlock()
}

// activeRules returns the org's active rules, from cache when fresh.
func (m *Matcher) activeRules(ctx context.Context, orgID string) ([]*Rule, error) {
	m.mu.RLock()
	entry, ok := m.cache[orgID]
	m.mu.RUnlock()
	if ok && !m.expired(entry) {
		return entry.rules, nil
	}

	rules, err := m.store.ListActiveRules(ctx, orgID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[orgID] = cachedRules{rules: rules, loadedAt: time.Now()}
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "rule cache refreshed",
		slog.String("org_id", orgID),
		slog.Int("rules", len(rules)))

	return rules, nil
}

func (m *Matcher) expired(entry cachedRules) bool {
	if m.cacheTTL == 0 {
		return false
	}
	return time.Since(entry.loadedAt) > m.cacheTTL
}

func matchesAnyTrigger(patterns []string, eventType string) bool {
	for _, p := range patterns {
		if Match(p, eventType) {
			return true
		}
	}
	return false
}
