package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/warden/model/constraint"
)

// ConditionKind identifies a supported approval condition.
type ConditionKind string

const (
	// ConditionSingleUse binds the approval to one dispatch; it is not replayed after a restart.
	ConditionSingleUse ConditionKind = "single use"
	// ConditionValidFor limits how long after the decision execution may start.
	ConditionValidFor ConditionKind = "valid for"
	// ConditionParam requires a parameter constraint to hold when execution starts.
	ConditionParam ConditionKind = "param"
)

// Condition is a parsed approval condition.
type Condition struct {
	Kind       ConditionKind
	Duration   time.Duration
	Constraint *constraint.Constraint
	Text       string
}

// ParseCondition parses one of: "single use", "valid for <duration>", "param <constraint>".
func ParseCondition(text string) (*Condition, error) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	switch {
	case lower == string(ConditionSingleUse):
		return &Condition{Kind: ConditionSingleUse, Text: trimmed}, nil
	case strings.HasPrefix(lower, string(ConditionValidFor)+" "):
		value := strings.TrimSpace(trimmed[len(ConditionValidFor):])
		duration, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid condition %q: %w", text, err)
		}
		if duration <= 0 {
			return nil, fmt.Errorf("invalid condition %q: duration must be positive", text)
		}
		return &Condition{Kind: ConditionValidFor, Duration: duration, Text: trimmed}, nil
	case strings.HasPrefix(lower, string(ConditionParam)+" "):
		expr := strings.TrimSpace(trimmed[len(ConditionParam):])
		aConstraint, err := constraint.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid condition %q: %w", text, err)
		}
		return &Condition{Kind: ConditionParam, Constraint: aConstraint, Text: trimmed}, nil
	}
	return nil, fmt.Errorf("unsupported condition: %q", text)
}

// ParseConditions parses all conditions, failing on the first invalid one.
func ParseConditions(texts []string) ([]*Condition, error) {
	ret := make([]*Condition, 0, len(texts))
	for _, text := range texts {
		condition, err := ParseCondition(text)
		if err != nil {
			return nil, err
		}
		ret = append(ret, condition)
	}
	return ret, nil
}

// Check verifies the condition against a request about to execute at the given time.
func (c *Condition) Check(req *OperationRequest, at time.Time) error {
	switch c.Kind {
	case ConditionValidFor:
		if req.Decision == nil {
			return fmt.Errorf("condition %q: request has no decision", c.Text)
		}
		if deadline := req.Decision.DecidedAt.Add(c.Duration); at.After(deadline) {
			return fmt.Errorf("condition %q: approval lapsed at %s", c.Text, deadline.Format(time.RFC3339))
		}
	case ConditionParam:
		if !c.Constraint.Match(req.Parameters) {
			return fmt.Errorf("condition %q: not satisfied", c.Text)
		}
	}
	return nil
}

// HasCondition reports whether the decision carries a condition of the given kind.
func HasCondition(decision *Decision, kind ConditionKind) bool {
	if decision == nil {
		return false
	}
	for _, text := range decision.Conditions {
		if condition, err := ParseCondition(text); err == nil && condition.Kind == kind {
			return true
		}
	}
	return false
}
