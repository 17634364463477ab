// Package condition provides a pure boolean expression tree evaluated against
// event payloads and transaction records.
//
// A tree is either a leaf comparison ({field, op, value}) or a combinator
// ({all: [...]} / {any: [...]}). Combinators nest to arbitrary depth. The
// zero Node matches everything, so rules without conditions always apply.
package condition

// Op is a leaf comparison operator.
type Op string

// Recognized leaf operators.
const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpIn       Op = "in"
	OpExists   Op = "exists"
)

// knownOps is the closed operator set accepted at rule-save time.
var knownOps = map[Op]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true,
	OpLte: true, OpContains: true, OpIn: true, OpExists: true,
}

// Known reports whether op is a recognized leaf operator.
func Known(op Op) bool { return knownOps[op] }

// Node is one node of a condition tree.
//
// Exactly one of the following forms is valid:
//   - leaf: Field and Op set (Value as the operator requires)
//   - AND group: All set
//   - OR group: Any set
//   - empty: nothing set, evaluates to true (no condition)
type Node struct {
	// All is an AND combinator: every child must pass.
	// Vacuously true when explicitly empty.
	All []Node `json:"all,omitempty"`

	// Any is an OR combinator: at least one child must pass.
	// Vacuously false when explicitly empty.
	Any []Node `json:"any,omitempty"`

	// Field is a dotted path into the payload (e.g. "donor.email").
	Field string `json:"field,omitempty"`

	// Op is the leaf comparison operator.
	Op Op `json:"op,omitempty"`

	// Value is the comparison operand. For OpIn it must be a list.
	Value any `json:"value,omitempty"`
}

// IsZero reports whether the node carries no condition at all.
func (n Node) IsZero() bool {
	return n.All == nil && n.Any == nil && n.Field == "" && n.Op == "" && n.Value == nil
}
