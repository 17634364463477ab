package condition

import (
	"encoding/json"
	"testing"
)

func payload() map[string]any {
	return map[string]any{
		"amount_cents": float64(15000), // JSON numbers decode to float64
		"currency":     "USD",
		"memo":         "AMAZON WEB SERVICES",
		"tags":         []any{"Recurring", "cloud"},
		"donor": map[string]any{
			"email": "pat@example.org",
			"tier":  "gold",
		},
	}
}

func TestEvaluateLeafOperators(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"eq match", Node{Field: "currency", Op: OpEq, Value: "USD"}, true},
		{"eq mismatch", Node{Field: "currency", Op: OpEq, Value: "EUR"}, false},
		{"eq numeric int vs float", Node{Field: "amount_cents", Op: OpEq, Value: 15000}, true},
		{"neq", Node{Field: "currency", Op: OpNeq, Value: "EUR"}, true},

		{"gt pass", Node{Field: "amount_cents", Op: OpGt, Value: 10000}, true},
		{"gt fail equal", Node{Field: "amount_cents", Op: OpGt, Value: 15000}, false},
		{"gte equal", Node{Field: "amount_cents", Op: OpGte, Value: 15000}, true},
		{"lt fail", Node{Field: "amount_cents", Op: OpLt, Value: 10000}, false},
		{"lte equal", Node{Field: "amount_cents", Op: OpLte, Value: 15000}, true},
		{"gt non-numeric payload value", Node{Field: "currency", Op: OpGt, Value: 5}, false},

		{"contains substring case-insensitive", Node{Field: "memo", Op: OpContains, Value: "amazon"}, true},
		{"contains not a substring", Node{Field: "memo", Op: OpContains, Value: "aws"}, false},
		{"contains array membership case-insensitive", Node{Field: "tags", Op: OpContains, Value: "recurring"}, true},
		{"contains array miss", Node{Field: "tags", Op: OpContains, Value: "one-time"}, false},

		{"in match", Node{Field: "currency", Op: OpIn, Value: []any{"USD", "EUR"}}, true},
		{"in numeric match", Node{Field: "amount_cents", Op: OpIn, Value: []any{float64(100), float64(15000)}}, true},
		{"in miss", Node{Field: "currency", Op: OpIn, Value: []any{"GBP"}}, false},
		{"in non-list value", Node{Field: "currency", Op: OpIn, Value: "USD"}, false},

		{"exists present", Node{Field: "donor.email", Op: OpExists}, true},
		{"exists missing", Node{Field: "donor.phone", Op: OpExists}, false},

		// Missing fields never match and never error.
		{"missing field eq", Node{Field: "nope", Op: OpEq, Value: 1}, false},
		{"missing nested field gt", Node{Field: "donor.score.total", Op: OpGt, Value: 1}, false},
		{"path through non-map", Node{Field: "currency.code", Op: OpEq, Value: "USD"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.node, payload()); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.node, got, tt.want)
			}
		})
	}
}

func TestEvaluateDottedPath(t *testing.T) {
	n := Node{Field: "donor.tier", Op: OpEq, Value: "gold"}
	if !Evaluate(n, payload()) {
		t.Error("expected nested dotted path to resolve")
	}
}

func TestEvaluateCombinators(t *testing.T) {
	gt := Node{Field: "amount_cents", Op: OpGt, Value: 10000}
	eur := Node{Field: "currency", Op: OpEq, Value: "EUR"}
	usd := Node{Field: "currency", Op: OpEq, Value: "USD"}

	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"all pass", Node{All: []Node{gt, usd}}, true},
		{"all one fails", Node{All: []Node{gt, eur}}, false},
		{"all empty vacuously true", Node{All: []Node{}}, true},
		{"any pass", Node{Any: []Node{eur, usd}}, true},
		{"any all fail", Node{Any: []Node{eur}}, false},
		{"any empty vacuously false", Node{Any: []Node{}}, false},
		{"empty node matches everything", Node{}, true},
		{
			"nested arbitrary depth",
			Node{All: []Node{
				gt,
				{Any: []Node{
					eur,
					{All: []Node{usd, {Field: "donor.tier", Op: OpEq, Value: "gold"}}},
				}},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.node, payload()); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.node, got, tt.want)
			}
		})
	}
}

func TestEvaluateJSONRoundTrip(t *testing.T) {
	// Trees arrive from storage as JSON; explicit empty groups must keep
	// their vacuous semantics after decoding.
	var n Node
	if err := json.Unmarshal([]byte(`{"any":[]}`), &n); err != nil {
		t.Fatal(err)
	}
	if Evaluate(n, payload()) {
		t.Error("decoded empty any-group should be vacuously false")
	}

	var tree Node
	raw := `{"all":[{"field":"amount_cents","op":"gt","value":10000},{"field":"memo","op":"contains","value":"AWS"}]}`
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatal(err)
	}
	got := Evaluate(tree, payload())
	if got {
		t.Error("memo does not contain the literal AWS substring")
	}
}

func TestEvaluateIsConcurrencySafe(t *testing.T) {
	n := Node{Field: "amount_cents", Op: OpGte, Value: 100}
	p := payload()

	done := make(chan struct{})
	for range 8 {
		go func() {
			for range 100 {
				Evaluate(n, p)
			}
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}
}
