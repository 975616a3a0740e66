package routing

import (
	"encoding/json"
	"strings"
)

// Facts is the small fact set a condition is evaluated against.
type Facts struct {
	Intent string
	Prompt string
}

// Condition is one node of the boolean expression tree. A node is exactly
// one of: an all-group, an any-group, or a leaf comparison. Group slices are
// kept distinguishable from absent ones so that `{"all": []}` (true) and
// `{"any": []}` (false) evaluate per contract.
type Condition struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`

	Fact     string `json:"fact,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Operators accepted in leaf conditions. All comparisons are
// case-insensitive.
const (
	OpEquals     = "equals"
	OpContains   = "contains"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
)

// ParseCondition decodes a persisted condition tree. Callers skip (and log)
// rules whose condition fails to parse; a broken rule must never break
// evaluation of the others.
func ParseCondition(raw json.RawMessage) (Condition, error) {
	var c Condition
	if len(raw) == 0 {
		return c, nil
	}
	err := json.Unmarshal(raw, &c)
	return c, err
}

// Evaluate walks the condition tree against the facts. It is total: unknown
// facts and unknown operators evaluate to false rather than erroring, so a
// forward-incompatible rule can never crash evaluation.
func Evaluate(c Condition, facts Facts) bool {
	switch {
	case c.All != nil:
		for _, child := range c.All {
			if !Evaluate(child, facts) {
				return false
			}
		}
		return true
	case c.Any != nil:
		for _, child := range c.Any {
			if Evaluate(child, facts) {
				return true
			}
		}
		return false
	default:
		return evaluateLeaf(c, facts)
	}
}

func evaluateLeaf(c Condition, facts Facts) bool {
	var actual string
	switch strings.ToLower(c.Fact) {
	case "intent":
		actual = facts.Intent
	case "prompt":
		actual = facts.Prompt
	default:
		return false
	}

	actual = strings.ToLower(actual)
	value := strings.ToLower(c.Value)

	switch c.Operator {
	case OpEquals:
		return actual == value
	case OpContains:
		return strings.Contains(actual, value)
	case OpStartsWith:
		return strings.HasPrefix(actual, value)
	case OpEndsWith:
		return strings.HasSuffix(actual, value)
	default:
		return false
	}
}
