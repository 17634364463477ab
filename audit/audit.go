// Package audit provides a best-effort, append-only log of configuration
// changes and manual interventions.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/ripplehq/ripple/id"
)

// Entry is one audit log line. Entries are immutable once written.
type Entry struct {
	// ID is the unique TypeID for this entry.
	ID id.ID `json:"id"`

	// OrgID identifies the organization the change belongs to.
	OrgID string `json:"org_id"`

	// Actor identifies who made the change, when known.
	Actor string `json:"actor,omitempty"`

	// Action is the dot-namespaced change kind (e.g. "rule.created").
	Action string `json:"action"`

	// Subject is the identifier of the changed object.
	Subject string `json:"subject"`

	// Detail carries small free-form context about the change.
	Detail map[string]string `json:"detail,omitempty"`

	// RecordedAt is when the entry was written.
	RecordedAt time.Time `json:"recorded_at"`
}

// ListOpts configures filtering and pagination for audit listing.
type ListOpts struct {
	Offset int
	Limit  int
	Action string
}

// Store defines the persistence contract for audit entries.
type Store interface {
	// AppendAudit persists an entry.
	AppendAudit(ctx context.Context, e *Entry) error

	// ListAudit returns an org's entries, newest first.
	ListAudit(ctx context.Context, orgID string, opts ListOpts) ([]*Entry, error)
}

// Log writes audit entries. Append failures are logged and swallowed; an
// unavailable audit trail never blocks the operation being audited.
type Log struct {
	store  Store
	logger *slog.Logger
}

// NewLog creates an audit log backed by the given store.
func NewLog(store Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		store:  store,
		logger: logger,
	}
}

// Record appends an entry. Best effort.
func (l *Log) Record(ctx context.Context, orgID, action, subject string, detail map[string]string) {
	e := &Entry{
		ID:         id.NewAuditID(),
		OrgID:      orgID,
		Action:     action,
		Subject:    subject,
		Detail:     detail,
		RecordedAt: time.Now().UTC(),
	}

	if err := l.store.AppendAudit(ctx, e); err != nil {
		l.logger.ErrorContext(ctx, "audit append failed",
			slog.String("action", action),
			slog.String("subject", subject),
			slog.Any("error", err))
	}
}

// List returns an org's entries, newest first.
func (l *Log) List(ctx context.Context, orgID string, opts ListOpts) ([]*Entry, error) {
	return l.store.ListAudit(ctx, orgID, opts)
}
