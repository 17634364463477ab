package condition

import (
	"math"
	"strings"
)

// Evaluate runs the condition tree against a payload. It is pure: no side
// effects, safe to call repeatedly and concurrently on the same payload.
//
// A missing field evaluates OpExists to false and every comparison operator
// to false; evaluation never fails. Monetary fields are compared as integer
// cents; integral values never go through floating point.
func Evaluate(n Node, payload map[string]any) bool {
	switch {
	case n.All != nil:
		for _, child := range n.All {
			if !Evaluate(child, payload) {
				return false
			}
		}
		return true // vacuously true on empty list

	case n.Any != nil:
		for _, child := range n.Any {
			if Evaluate(child, payload) {
				return true
			}
		}
		return false // vacuously false on empty list

	case n.Field != "":
		return evalLeaf(n, payload)

	default:
		return true // empty node: no condition
	}
}

// evalLeaf evaluates a single field/op/value comparison.
func evalLeaf(n Node, payload map[string]any) bool {
	got, ok := Lookup(payload, n.Field)

	if n.Op == OpExists {
		return ok
	}
	if !ok {
		return false
	}

	switch n.Op {
	case OpEq:
		return looseEqual(got, n.Value)
	case OpNeq:
		return !looseEqual(got, n.Value)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, comparable := compare(got, n.Value)
		if !comparable {
			return false
		}
		switch n.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpContains:
		return contains(got, n.Value)
	case OpIn:
		list, isList := n.Value.([]any)
		if !isList {
			return false
		}
		for _, candidate := range list {
			if looseEqual(got, candidate) {
				return true
			}
		}
		return false
	default:
		return false // unknown operator never matches
	}
}

// Lookup resolves a dotted path through nested map[string]any values.
func Lookup(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = payload
	for part := range strings.SplitSeq(path, ".") {
		m, isMap := current.(map[string]any)
		if !isMap {
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// looseEqual compares two payload values: numeric-aware for numbers (so an
// int64 15000 equals a JSON-decoded float64 15000), exact for strings and
// bools.
func looseEqual(a, b any) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}

	sa, aIsStr := a.(string)
	sb, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return sa == sb
	}

	ba, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return ba == bb
	}

	return false
}

// compare orders two numeric values. Both integral values compare on the
// int64 path (monetary amounts stay exact); only genuinely fractional values
// fall back to float comparison.
func compare(a, b any) (int, bool) {
	ia, fa, aInt, aOK := toNumber(a)
	ib, fb, bInt, bOK := toNumber(b)
	if !aOK || !bOK {
		return 0, false
	}

	if aInt && bInt {
		switch {
		case ia < ib:
			return -1, true
		case ia > ib:
			return 1, true
		default:
			return 0, true
		}
	}

	if aInt {
		fa = float64(ia)
	}
	if bInt {
		fb = float64(ib)
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	default:
		return 0, true
	}
}

// toNumber normalizes a value to either an exact int64 or a float64.
// JSON-decoded whole numbers (float64 with no fraction) take the int64 path.
func toNumber(v any) (i int64, f float64, isInt, ok bool) {
	switch n := v.(type) {
	case int:
		return int64(n), 0, true, true
	case int8:
		return int64(n), 0, true, true
	case int16:
		return int64(n), 0, true, true
	case int32:
		return int64(n), 0, true, true
	case int64:
		return n, 0, true, true
	case uint:
		return int64(n), 0, true, true
	case uint8:
		return int64(n), 0, true, true
	case uint16:
		return int64(n), 0, true, true
	case uint32:
		return int64(n), 0, true, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, float64(n), false, true
		}
		return int64(n), 0, true, true
	case float32:
		return normalizeFloat(float64(n))
	case float64:
		return normalizeFloat(n)
	default:
		return 0, 0, false, false
	}
}

func normalizeFloat(f float64) (int64, float64, bool, bool) {
	if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return int64(f), 0, true, true
	}
	return 0, f, false, true
}

// contains implements the contains operator: case-insensitive substring on
// strings, case-insensitive membership on lists.
func contains(got, want any) bool {
	switch g := got.(type) {
	case string:
		w, isStr := want.(string)
		if !isStr {
			return false
		}
		return strings.Contains(strings.ToLower(g), strings.ToLower(w))
	case []any:
		for _, elem := range g {
			es, elemIsStr := elem.(string)
			ws, wantIsStr := want.(string)
			if elemIsStr && wantIsStr {
				if strings.EqualFold(es, ws) {
					return true
				}
				continue
			}
			if looseEqual(elem, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
