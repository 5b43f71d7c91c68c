package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// ExpressionType discriminates the leaf string predicates.
type ExpressionType string

const (
	ExpressionRegexMatch ExpressionType = "regexMatch"
	ExpressionEquals     ExpressionType = "equals"
	ExpressionStartsWith ExpressionType = "startsWith"
	ExpressionEndsWith   ExpressionType = "endsWith"
	ExpressionContains   ExpressionType = "contains"
)

// maxConditionDepth bounds condition nesting. Trees deeper than this are
// rejected at deserialization rather than risking unbounded recursion on
// evaluation.
const maxConditionDepth = 64

// StringExpression is a leaf predicate over a string. For regexMatch the
// pattern is compiled once at construction; the compiled form is derived
// state and equality is by the source pattern.
type StringExpression struct {
	Type  ExpressionType
	Value string

	re *regexp.Regexp
}

// NewStringExpression builds a leaf predicate, compiling the pattern when
// exprType is regexMatch.
func NewStringExpression(exprType ExpressionType, value string) (StringExpression, error) {
	expr := StringExpression{Type: exprType, Value: value}
	switch exprType {
	case ExpressionRegexMatch:
		re, err := regexp.Compile(value)
		if err != nil {
			return StringExpression{}, fmt.Errorf("invalid regex pattern %q: %w", value, err)
		}
		expr.re = re
	case ExpressionEquals, ExpressionStartsWith, ExpressionEndsWith, ExpressionContains:
	default:
		return StringExpression{}, fmt.Errorf("unknown string expression type %q", exprType)
	}
	return expr, nil
}

// Matches reports whether subject satisfies the predicate. It is total: it
// never fails, whatever the subject.
func (e StringExpression) Matches(subject string) bool {
	switch e.Type {
	case ExpressionRegexMatch:
		return e.re != nil && e.re.MatchString(subject)
	case ExpressionEquals:
		return subject == e.Value
	case ExpressionStartsWith:
		return len(subject) >= len(e.Value) && subject[:len(e.Value)] == e.Value
	case ExpressionEndsWith:
		return len(subject) >= len(e.Value) && subject[len(subject)-len(e.Value):] == e.Value
	case ExpressionContains:
		return bytes.Contains([]byte(subject), []byte(e.Value))
	}
	return false
}

// Equal compares two expressions by type and source value. regexMatch
// expressions compare by pattern string, never by compiled state.
func (e StringExpression) Equal(other StringExpression) bool {
	return e.Type == other.Type && e.Value == other.Value
}

type stringExpressionJSON struct {
	Type  ExpressionType `json:"type"`
	Value string         `json:"value"`
}

func (e StringExpression) MarshalJSON() ([]byte, error) {
	return json.Marshal(stringExpressionJSON{Type: e.Type, Value: e.Value})
}

func (e *StringExpression) UnmarshalJSON(b []byte) error {
	var raw stringExpressionJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	expr, err := NewStringExpression(raw.Type, raw.Value)
	if err != nil {
		return err
	}
	*e = expr
	return nil
}

type conditionKind uint8

const (
	condInvalid conditionKind = iota
	condAny
	condOne
	condAnd
	condOr
	condNot
)

// Condition is a recursive boolean expression over string predicates.
//
// The wire form matches the admin API: "any" as a bare string, {"and": […]},
// {"or": […]}, {"not": {…}}, and an untagged leaf {"type": …, "value": …}.
type Condition struct {
	kind     conditionKind
	expr     StringExpression
	children []Condition
	child    *Condition
}

// Any matches every subject.
func Any() Condition { return Condition{kind: condAny} }

// One wraps a single leaf predicate.
func One(expr StringExpression) Condition { return Condition{kind: condOne, expr: expr} }

// And matches when every child matches; with no children it matches.
func And(children ...Condition) Condition { return Condition{kind: condAnd, children: children} }

// Or matches when at least one child matches; with no children it does not.
func Or(children ...Condition) Condition { return Condition{kind: condOr, children: children} }

// Not inverts its child.
func Not(child Condition) Condition { return Condition{kind: condNot, child: &child} }

// IsZero reports whether the condition was never set (the zero value, which
// is not a valid condition and matches nothing).
func (c Condition) IsZero() bool { return c.kind == condInvalid }

// Matches evaluates the condition against subject. Evaluation is total and
// pure: it never panics and never fails.
func (c Condition) Matches(subject string) bool {
	switch c.kind {
	case condAny:
		return true
	case condOne:
		return c.expr.Matches(subject)
	case condAnd:
		for _, child := range c.children {
			if !child.Matches(subject) {
				return false
			}
		}
		return true
	case condOr:
		for _, child := range c.children {
			if child.Matches(subject) {
				return true
			}
		}
		return false
	case condNot:
		return c.child != nil && !c.child.Matches(subject)
	}
	return false
}

// Equal compares two condition trees structurally, with regexMatch leaves
// compared by source pattern.
func (c Condition) Equal(other Condition) bool {
	if c.kind != other.kind {
		return false
	}
	switch c.kind {
	case condOne:
		return c.expr.Equal(other.expr)
	case condAnd, condOr:
		if len(c.children) != len(other.children) {
			return false
		}
		for i := range c.children {
			if !c.children[i].Equal(other.children[i]) {
				return false
			}
		}
		return true
	case condNot:
		return c.child.Equal(*other.child)
	}
	return true
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case condAny:
		return json.Marshal("any")
	case condOne:
		return json.Marshal(c.expr)
	case condAnd:
		return json.Marshal(map[string][]Condition{"and": c.children})
	case condOr:
		return json.Marshal(map[string][]Condition{"or": c.children})
	case condNot:
		return json.Marshal(map[string]Condition{"not": *c.child})
	}
	return nil, fmt.Errorf("cannot serialize an unset condition")
}

func (c *Condition) UnmarshalJSON(b []byte) error {
	parsed, err := parseCondition(b, 0)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func parseCondition(b []byte, depth int) (Condition, error) {
	if depth > maxConditionDepth {
		return Condition{}, fmt.Errorf("condition nests deeper than %d levels", maxConditionDepth)
	}

	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return Condition{}, fmt.Errorf("empty condition")
	}

	if trimmed[0] == '"' {
		var tag string
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			return Condition{}, err
		}
		if tag != "any" {
			return Condition{}, fmt.Errorf("unknown condition tag %q", tag)
		}
		return Any(), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Condition{}, fmt.Errorf("condition must be an object or \"any\": %w", err)
	}

	switch {
	case fields["and"] != nil:
		children, err := parseConditionList(fields["and"], depth+1)
		if err != nil {
			return Condition{}, err
		}
		return And(children...), nil
	case fields["or"] != nil:
		children, err := parseConditionList(fields["or"], depth+1)
		if err != nil {
			return Condition{}, err
		}
		return Or(children...), nil
	case fields["not"] != nil:
		child, err := parseCondition(fields["not"], depth+1)
		if err != nil {
			return Condition{}, err
		}
		return Not(child), nil
	case fields["type"] != nil:
		var expr StringExpression
		if err := json.Unmarshal(trimmed, &expr); err != nil {
			return Condition{}, err
		}
		return One(expr), nil
	}
	return Condition{}, fmt.Errorf("unrecognized condition object")
}

func parseConditionList(b []byte, depth int) ([]Condition, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("condition list: %w", err)
	}
	children := make([]Condition, 0, len(items))
	for _, item := range items {
		child, err := parseCondition(item, depth)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
