package rule

import (
	"encoding/json"
	"fmt"
)

// ActionType identifies one variant of the closed action set.
type ActionType string

// Recognized action types. The set is closed: unknown types are rejected at
// rule-save time, never at execution time.
const (
	ActionSendEmail    ActionType = "send_email"
	ActionCreateTask   ActionType = "create_task"
	ActionUpdateRecord ActionType = "update_record"
	ActionCallWebhook  ActionType = "call_webhook"
	ActionWait         ActionType = "wait"
	ActionTriggerEvent ActionType = "trigger_event"
)

// Action is one step of a rule's ordered action list. Params holds the
// variant's parameter record as stored; decode with the typed accessors.
type Action struct {
	Type   ActionType      `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// SendEmailParams configures a send_email action.
type SendEmailParams struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateTaskParams configures a create_task action.
type CreateTaskParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	DueInDays   int    `json:"due_in_days,omitempty"`
}

// UpdateRecordParams configures an update_record action.
type UpdateRecordParams struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Fields     map[string]any `json:"fields"`
}

// CallWebhookParams configures a call_webhook action. The payload is signed
// with the per-endpoint secret.
type CallWebhookParams struct {
	URL       string            `json:"url"`
	Secret    string            `json:"secret"`
	Headers   map[string]string `json:"headers,omitempty"`
	RateLimit int               `json:"rate_limit,omitempty"`
}

// WaitParams configures a wait action.
type WaitParams struct {
	Seconds int `json:"seconds"`
}

// TriggerEventParams configures a trigger_event action, which re-emits a new
// domain event for chained automations.
type TriggerEventParams struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// decodeParams decodes an action's raw params into the variant's typed
// record.
func decodeParams[T any](a Action) (T, error) {
	var out T
	raw := a.Params
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("rule: decode %s params: %w", a.Type, err)
	}
	return out, nil
}

// SendEmail decodes the params of a send_email action.
func (a Action) SendEmail() (SendEmailParams, error) { return decodeParams[SendEmailParams](a) }

// CreateTask decodes the params of a create_task action.
func (a Action) CreateTask() (CreateTaskParams, error) { return decodeParams[CreateTaskParams](a) }

// UpdateRecord decodes the params of an update_record action.
func (a Action) UpdateRecord() (UpdateRecordParams, error) {
	return decodeParams[UpdateRecordParams](a)
}

// CallWebhook decodes the params of a call_webhook action.
func (a Action) CallWebhook() (CallWebhookParams, error) {
	return decodeParams[CallWebhookParams](a)
}

// Wait decodes the params of a wait action.
func (a Action) Wait() (WaitParams, error) { return decodeParams[WaitParams](a) }

// TriggerEvent decodes the params of a trigger_event action.
func (a Action) TriggerEvent() (TriggerEventParams, error) {
	return decodeParams[TriggerEventParams](a)
}

// MustParams marshals a params record into an Action's raw form. Panics on
// marshal failure (programming error); intended for constructing actions in
// code and tests.
func MustParams(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("rule: marshal params: %v", err))
	}
	return raw
}
