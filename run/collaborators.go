// Package run executes the action list of a matched rule against a domain
// event.
package run

import (
	"context"
	"time"
)

// TaskInput carries the fields for a task created by a create_task action.
type TaskInput struct {
	OrgID       string
	Title       string
	Description string
	AssigneeID  string
	DueAt       *time.Time
}

// Mailer sends templated email on behalf of send_email actions.
type Mailer interface {
	SendTemplate(ctx context.Context, orgID, to, template string, metadata map[string]string) error
}

// TaskCreator creates tasks on behalf of create_task actions.
type TaskCreator interface {
	CreateTask(ctx context.Context, in TaskInput) error
}

// RecordMutator applies field updates on behalf of update_record actions.
type RecordMutator interface {
	UpdateRecord(ctx context.Context, orgID, entityType, entityID string, fields map[string]any) error
}

// ChainEmitter enqueues follow-up events on behalf of trigger_event
// actions. Implementations must propagate the chain depth.
type ChainEmitter interface {
	EmitChained(ctx context.Context, orgID, eventType string, payload map[string]any, chainDepth int) error
}

// Collaborators bundles the application-provided integrations actions call
// into. Any of them may be nil; actions needing a missing collaborator fail
// permanently.
type Collaborators struct {
	Mailer        Mailer
	TaskCreator   TaskCreator
	RecordMutator RecordMutator
	ChainEmitter  ChainEmitter
}
