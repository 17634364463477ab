package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/ripplehq/ripple/audit"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/condition"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/internal/entity"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
)

// --- Automation rule models ---

type ruleModel struct {
	grove.BaseModel `grove:"table:ripple_rules"`

	ID            string          `grove:"id,pk"`
	OrgID         string          `grove:"org_id"`
	Name          string          `grove:"name"`
	TriggerEvents []string        `grove:"trigger_events,array"`
	Conditions    json.RawMessage `grove:"conditions,type:jsonb"`
	Actions       json.RawMessage `grove:"actions,type:jsonb"`
	IsActive      bool            `grove:"is_active"`
	StopOnError   bool            `grove:"stop_on_error"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toRuleModel(r *rule.Rule) *ruleModel {
	conditions, _ := json.Marshal(r.Conditions) //nolint:errcheck // best-effort
	actions, _ := json.Marshal(r.Actions)       //nolint:errcheck // best-effort

	return &ruleModel{
		ID:            r.ID.String(),
		OrgID:         r.OrgID,
		Name:          r.Name,
		TriggerEvents: r.TriggerEvents,
		Conditions:    conditions,
		Actions:       actions,
		IsActive:      r.IsActive,
		StopOnError:   r.StopOnError,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromRuleModel(m *ruleModel) (*rule.Rule, error) {
	ruleID, err := id.ParseRuleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse rule ID %q: %w", m.ID, err)
	}

	var conditions condition.Node
	if len(m.Conditions) > 0 {
		_ = json.Unmarshal(m.Conditions, &conditions) //nolint:errcheck // best-effort
	}

	var actions []rule.Action
	if len(m.Actions) > 0 {
		_ = json.Unmarshal(m.Actions, &actions) //nolint:errcheck // best-effort
	}

	return &rule.Rule{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            ruleID,
		OrgID:         m.OrgID,
		Name:          m.Name,
		TriggerEvents: m.TriggerEvents,
		Conditions:    conditions,
		Actions:       actions,
		IsActive:      m.IsActive,
		StopOnError:   m.StopOnError,
	}, nil
}

// --- Bank rule models ---

type bankRuleModel struct {
	grove.BaseModel `grove:"table:ripple_bank_rules"`

	ID              string          `grove:"id,pk"`
	OrgID           string          `grove:"org_id"`
	Name            string          `grove:"name"`
	Priority        int             `grove:"priority"`
	Conditions      json.RawMessage `grove:"conditions,type:jsonb"`
	TargetAccountID string          `grove:"target_account_id"`
	Category        string          `grove:"category"`
	IsActive        bool            `grove:"is_active"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toBankRuleModel(r *bankrule.Rule) *bankRuleModel {
	conditions, _ := json.Marshal(r.Conditions) //nolint:errcheck // best-effort

	return &bankRuleModel{
		ID:              r.ID.String(),
		OrgID:           r.OrgID,
		Name:            r.Name,
		Priority:        r.Priority,
		Conditions:      conditions,
		TargetAccountID: r.TargetAccountID,
		Category:        r.Category,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func fromBankRuleModel(m *bankRuleModel) (*bankrule.Rule, error) {
	ruleID, err := id.ParseBankRuleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse bank rule ID %q: %w", m.ID, err)
	}

	var conditions []condition.Node
	if len(m.Conditions) > 0 {
		_ = json.Unmarshal(m.Conditions, &conditions) //nolint:errcheck // best-effort
	}

	return &bankrule.Rule{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              ruleID,
		OrgID:           m.OrgID,
		Name:            m.Name,
		Priority:        m.Priority,
		Conditions:      conditions,
		TargetAccountID: m.TargetAccountID,
		Category:        m.Category,
		IsActive:        m.IsActive,
	}, nil
}

// --- Queue item models ---

type itemModel struct {
	grove.BaseModel `grove:"table:ripple_queue_items"`

	ID           string          `grove:"id,pk"`
	OrgID        string          `grove:"org_id"`
	RuleID       string          `grove:"rule_id"`
	EventType    string          `grove:"event_type"`
	EventPayload json.RawMessage `grove:"event_payload,type:jsonb"`
	EventSource  string          `grove:"event_source"`
	OccurredAt   time.Time       `grove:"occurred_at"`
	Status       string          `grove:"status"`
	ScheduledFor time.Time       `grove:"scheduled_for"`
	ClaimedBy    string          `grove:"claimed_by"`
	ClaimedAt    *time.Time      `grove:"claimed_at"`
	AttemptCount int             `grove:"attempt_count"`
	ChainDepth   int             `grove:"chain_depth"`
	LastError    string          `grove:"last_error"`
	CompletedAt  *time.Time      `grove:"completed_at"`
	CreatedAt    time.Time       `grove:"created_at"`
	UpdatedAt    time.Time       `grove:"updated_at"`
}

func toItemModel(it *queue.Item) *itemModel {
	payload, _ := json.Marshal(it.EventPayload) //nolint:errcheck // best-effort

	return &itemModel{
		ID:           it.ID.String(),
		OrgID:        it.OrgID,
		RuleID:       it.RuleID.String(),
		EventType:    it.EventType,
		EventPayload: payload,
		EventSource:  it.EventSource,
		OccurredAt:   it.OccurredAt,
		Status:       string(it.Status),
		ScheduledFor: it.ScheduledFor,
		ClaimedBy:    it.ClaimedBy,
		ClaimedAt:    it.ClaimedAt,
		AttemptCount: it.AttemptCount,
		ChainDepth:   it.ChainDepth,
		LastError:    it.LastError,
		CompletedAt:  it.CompletedAt,
		CreatedAt:    it.CreatedAt,
		UpdatedAt:    it.UpdatedAt,
	}
}

func fromItemModel(m *itemModel) (*queue.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse item ID %q: %w", m.ID, err)
	}

	ruleID := id.Nil
	if m.RuleID != "" {
		ruleID, err = id.ParseRuleID(m.RuleID)
		if err != nil {
			return nil, fmt.Errorf("parse rule ID %q: %w", m.RuleID, err)
		}
	}

	var payload map[string]any
	if len(m.EventPayload) > 0 {
		_ = json.Unmarshal(m.EventPayload, &payload) //nolint:errcheck // best-effort
	}

	return &queue.Item{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           itemID,
		OrgID:        m.OrgID,
		RuleID:       ruleID,
		EventType:    m.EventType,
		EventPayload: payload,
		EventSource:  m.EventSource,
		OccurredAt:   m.OccurredAt,
		Status:       queue.Status(m.Status),
		ScheduledFor: m.ScheduledFor,
		ClaimedBy:    m.ClaimedBy,
		ClaimedAt:    m.ClaimedAt,
		AttemptCount: m.AttemptCount,
		ChainDepth:   m.ChainDepth,
		LastError:    m.LastError,
		CompletedAt:  m.CompletedAt,
	}, nil
}

// --- Ledger record models ---

type recordModel struct {
	grove.BaseModel `grove:"table:ripple_ledger"`

	ID              string    `grove:"id,pk"`
	OrgID           string    `grove:"org_id"`
	Provider        string    `grove:"provider"`
	ExternalEventID string    `grove:"external_event_id"`
	ProcessedAt     time.Time `grove:"processed_at"`
	Outcome         string    `grove:"outcome"`
}

func toRecordModel(rec *ledger.Record) *recordModel {
	return &recordModel{
		ID:              rec.ID.String(),
		OrgID:           rec.OrgID,
		Provider:        rec.Provider,
		ExternalEventID: rec.ExternalEventID,
		ProcessedAt:     rec.ProcessedAt,
		Outcome:         rec.Outcome,
	}
}

func fromRecordModel(m *recordModel) (*ledger.Record, error) {
	recID, err := id.ParseLedgerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse ledger record ID %q: %w", m.ID, err)
	}

	return &ledger.Record{
		ID:              recID,
		OrgID:           m.OrgID,
		Provider:        m.Provider,
		ExternalEventID: m.ExternalEventID,
		ProcessedAt:     m.ProcessedAt,
		Outcome:         m.Outcome,
	}, nil
}

// --- Audit entry models ---

type auditModel struct {
	grove.BaseModel `grove:"table:ripple_audit"`

	ID         string            `grove:"id,pk"`
	OrgID      string            `grove:"org_id"`
	Actor      string            `grove:"actor"`
	Action     string            `grove:"action"`
	Subject    string            `grove:"subject"`
	Detail     map[string]string `grove:"detail,type:jsonb"`
	RecordedAt time.Time         `grove:"recorded_at"`
}

func toAuditModel(e *audit.Entry) *auditModel {
	return &auditModel{
		ID:         e.ID.String(),
		OrgID:      e.OrgID,
		Actor:      e.Actor,
		Action:     e.Action,
		Subject:    e.Subject,
		Detail:     e.Detail,
		RecordedAt: e.RecordedAt,
	}
}

func fromAuditModel(m *auditModel) (*audit.Entry, error) {
	entryID, err := id.ParseAuditID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse audit entry ID %q: %w", m.ID, err)
	}

	return &audit.Entry{
		ID:         entryID,
		OrgID:      m.OrgID,
		Actor:      m.Actor,
		Action:     m.Action,
		Subject:    m.Subject,
		Detail:     m.Detail,
		RecordedAt: m.RecordedAt,
	}, nil
}
