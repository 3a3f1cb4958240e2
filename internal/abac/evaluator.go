package abac

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Bags is the triple of flat attribute maps a Condition is evaluated
// against, produced by Resolver.Resolve.
type Bags struct {
	Subject     map[string]any
	Resource    map[string]any
	Environment map[string]any
}

// Evaluator evaluates a single Condition or ConditionGroup. It never
// throws — any coercion failure or malformed input resolves to false,
// per spec §4.2.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// EvaluateGroup evaluates a ConditionGroup. Exactly one of All/Any/None
// must be set (nil vs. present-but-empty is the distinguishing signal);
// anything else evaluates to false.
func (e *Evaluator) EvaluateGroup(g *ConditionGroup, bags Bags) bool {
	if g == nil {
		return true
	}
	present := 0
	if g.All != nil {
		present++
	}
	if g.Any != nil {
		present++
	}
	if g.None != nil {
		present++
	}
	if present != 1 {
		return false
	}

	switch {
	case g.All != nil:
		for _, c := range g.All {
			if !e.EvaluateCondition(c, bags) {
				return false
			}
		}
		return true
	case g.Any != nil:
		for _, c := range g.Any {
			if e.EvaluateCondition(c, bags) {
				return true
			}
		}
		return false
	default: // g.None != nil
		for _, c := range g.None {
			if e.EvaluateCondition(c, bags) {
				return false
			}
		}
		return true
	}
}

// EvaluateCondition evaluates one typed predicate against the bags. Operator
// names are matched case-insensitively ("eq" and "EQ" are the same).
func (e *Evaluator) EvaluateCondition(c Condition, bags Bags) bool {
	actual, _ := lookupPath(c.Attribute, bags)
	expected := resolveOperand(c.Value, bags)
	c.Operator = Operator(strings.ToUpper(string(c.Operator)))

	switch c.Operator {
	case OpEQ:
		return deepEqual(actual, expected)
	case OpNE:
		return !deepEqual(actual, expected)
	case OpGT, OpGTE, OpLT, OpLTE:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case OpGT:
			return a > b
		case OpGTE:
			return a >= b
		case OpLT:
			return a < b
		default:
			return a <= b
		}
	case OpIN, OpNotIN:
		list, ok := toSlice(expected)
		if !ok {
			return c.Operator == OpNotIN
		}
		member := false
		for _, v := range list {
			if deepEqual(actual, v) {
				member = true
				break
			}
		}
		if c.Operator == OpIN {
			return member
		}
		return !member
	case OpContains:
		return strings.Contains(toStringForm(actual), toStringForm(expected))
	case OpStartsWith:
		return strings.HasPrefix(toStringForm(actual), toStringForm(expected))
	case OpEndsWith:
		return strings.HasSuffix(toStringForm(actual), toStringForm(expected))
	case OpBetween:
		bounds, ok := toSlice(expected)
		if !ok || len(bounds) != 2 {
			return false
		}
		a, aok := toFloat(actual)
		lo, lok := toFloat(bounds[0])
		hi, hok := toFloat(bounds[1])
		if !aok || !lok || !hok {
			return false
		}
		return a >= lo && a <= hi
	case OpIsNull:
		return actual == nil
	case OpIsNotNull:
		return actual != nil
	default:
		return false
	}
}

// resolveOperand treats a string of the exact form "{{path}}" as a
// reference into the bags; anything else (including a string merely
// containing braces) is a literal. Per spec §9, nested or partial
// references are not supported.
func resolveOperand(v any, bags Bags) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return v
	}
	path := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	val, _ := lookupPath(path, bags)
	return val
}

// lookupPath splits a dotted attribute path, selects the bag by its root
// segment, and walks nested map lookups. "user" and "subject" are aliases
// for the same bag, per spec §4.2.
func lookupPath(path string, bags Bags) (any, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return nil, false
	}

	var bag map[string]any
	switch segments[0] {
	case "subject", "user":
		bag = bags.Subject
	case "resource":
		bag = bags.Resource
	case "environment":
		bag = bags.Environment
	default:
		return nil, false
	}

	var cur any = bag
	for _, seg := range segments[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func deepEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice {
			out := make([]any, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				out[i] = rv.Index(i).Interface()
			}
			return out, true
		}
		return nil, false
	}
}

func toStringForm(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
