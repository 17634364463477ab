package rule

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ripplehq/ripple/condition"
)

// ValidationError indicates a malformed rule, condition or action
// configuration. Raised at save time; invalid rules never reach the
// dispatcher.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "rule validation: " + e.Field + ": " + e.Message
}

// actionSchemas holds the JSON Schema for each action type's parameter
// record. The schema set is the closed action contract: additionalProperties
// is off everywhere so typos fail at save time.
var actionSchemas = map[ActionType]string{
	ActionSendEmail: `{
		"type": "object",
		"required": ["to", "template"],
		"properties": {
			"to":       {"type": "string", "minLength": 3},
			"template": {"type": "string", "minLength": 1},
			"metadata": {"type": "object", "additionalProperties": {"type": "string"}}
		},
		"additionalProperties": false
	}`,
	ActionCreateTask: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title":       {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"assignee_id": {"type": "string"},
			"due_in_days": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`,
	ActionUpdateRecord: `{
		"type": "object",
		"required": ["entity_type", "entity_id", "fields"],
		"properties": {
			"entity_type": {"type": "string", "minLength": 1},
			"entity_id":   {"type": "string", "minLength": 1},
			"fields":      {"type": "object", "minProperties": 1}
		},
		"additionalProperties": false
	}`,
	ActionCallWebhook: `{
		"type": "object",
		"required": ["url", "secret"],
		"properties": {
			"url":        {"type": "string", "pattern": "^https?://"},
			"secret":     {"type": "string", "minLength": 16},
			"headers":    {"type": "object", "additionalProperties": {"type": "string"}},
			"rate_limit": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`,
	ActionWait: `{
		"type": "object",
		"required": ["seconds"],
		"properties": {
			"seconds": {"type": "integer", "minimum": 1, "maximum": 300}
		},
		"additionalProperties": false
	}`,
	ActionTriggerEvent: `{
		"type": "object",
		"required": ["event_type"],
		"properties": {
			"event_type": {"type": "string", "pattern": "^[a-z0-9_]+(\\.[a-z0-9_]+)+$"},
			"payload":    {"type": "object"}
		},
		"additionalProperties": false
	}`,
}

// Validator validates rule input, including action params against the
// per-type JSON Schemas. Compiled schemas are cached across calls.
type Validator struct {
	mu    sync.RWMutex
	cache map[ActionType]*jsonschema.Schema
}

// NewValidator creates a rule validator.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[ActionType]*jsonschema.Schema),
	}
}

// Validate checks a full rule input. Returns a *ValidationError describing
// the first problem found, or nil when the input is well-formed.
func (v *Validator) Validate(in Input) error {
	if in.OrgID == "" {
		return &ValidationError{Field: "org_id", Message: "required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	if len(in.TriggerEvents) == 0 {
		return &ValidationError{Field: "trigger_events", Message: "at least one event type required"}
	}
	for _, pattern := range in.TriggerEvents {
		if !validTriggerPattern(pattern) {
			return &ValidationError{
				Field:   "trigger_events",
				Message: fmt.Sprintf("%q is not a dot-namespaced event type or pattern", pattern),
			}
		}
	}

	if err := validateCondition(in.Conditions, "conditions"); err != nil {
		return err
	}

	if len(in.Actions) == 0 {
		return &ValidationError{Field: "actions", Message: "at least one action required"}
	}
	for i, a := range in.Actions {
		if err := v.ValidateAction(a); err != nil {
			var verr *ValidationError
			if ok := asValidationError(err, &verr); ok {
				return &ValidationError{
					Field:   fmt.Sprintf("actions[%d].%s", i, verr.Field),
					Message: verr.Message,
				}
			}
			return &ValidationError{Field: fmt.Sprintf("actions[%d]", i), Message: err.Error()}
		}
	}
	return nil
}

// ValidateAction checks a single action's type and parameter record.
func (v *Validator) ValidateAction(a Action) error {
	schemaSrc, ok := actionSchemas[a.Type]
	if !ok {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown action type %q", a.Type)}
	}

	compiled, err := v.compile(a.Type, schemaSrc)
	if err != nil {
		return fmt.Errorf("compile %s schema: %w", a.Type, err)
	}

	raw := a.Params
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var doc any
	if unmarshalErr := json.Unmarshal(raw, &doc); unmarshalErr != nil {
		return &ValidationError{Field: "params", Message: "not a JSON object"}
	}

	if validateErr := compiled.Validate(doc); validateErr != nil {
		return &ValidationError{Field: "params", Message: validateErr.Error()}
	}
	return nil
}

// compile returns the cached compiled schema for an action type.
func (v *Validator) compile(at ActionType, src string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.cache[at]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	var doc any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := "ripple://action-schema/" + string(at)

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	v.cache[at] = compiled
	v.mu.Unlock()

	return compiled, nil
}

// validateCondition walks the tree rejecting malformed nodes.
func validateCondition(n condition.Node, path string) error {
	if n.IsZero() {
		return nil
	}

	groups := 0
	if n.All != nil {
		groups++
	}
	if n.Any != nil {
		groups++
	}

	if groups > 1 {
		return &ValidationError{Field: path, Message: "all and any are mutually exclusive"}
	}

	if groups == 1 {
		if n.Field != "" || n.Op != "" || n.Value != nil {
			return &ValidationError{Field: path, Message: "combinator node cannot carry a leaf comparison"}
		}
		children := n.All
		key := "all"
		if n.Any != nil {
			children = n.Any
			key = "any"
		}
		for i, child := range children {
			if err := validateCondition(child, fmt.Sprintf("%s.%s[%d]", path, key, i)); err != nil {
				return err
			}
		}
		return nil
	}

	// Leaf node.
	if n.Field == "" {
		return &ValidationError{Field: path, Message: "field required"}
	}
	if !condition.Known(n.Op) {
		return &ValidationError{Field: path, Message: fmt.Sprintf("unknown operator %q", n.Op)}
	}
	if n.Op == condition.OpIn {
		if _, ok := n.Value.([]any); !ok {
			return &ValidationError{Field: path, Message: "in operator requires a list value"}
		}
	}
	if n.Op != condition.OpExists && n.Op != condition.OpIn && n.Value == nil {
		return &ValidationError{Field: path, Message: fmt.Sprintf("%s operator requires a value", n.Op)}
	}
	return nil
}

// validTriggerPattern accepts dot-namespaced event types where each segment
// is lowercase alphanumeric/underscore or the "*" wildcard. A bare "*"
// matches everything.
func validTriggerPattern(pattern string) bool {
	if pattern == "*" {
		return true
	}
	segments := strings.Split(pattern, ".")
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments {
		if seg == "" {
			return false
		}
		if seg == "*" {
			continue
		}
		for _, c := range seg {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
				return false
			}
		}
	}
	return true
}

// asValidationError unwraps err into target when it is a *ValidationError.
func asValidationError(err error, target **ValidationError) bool {
	v, ok := err.(*ValidationError) //nolint:errorlint // raised directly above
	if ok {
		*target = v
	}
	return ok
}
