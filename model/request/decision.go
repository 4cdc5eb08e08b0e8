package request

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is a decision outcome.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictDeny    Verdict = "deny"
)

// AutoRulePrefix prefixes DecidedBy for rule decisions.
const AutoRulePrefix = "auto-rule:"

// Valid reports whether v is approve or deny.
func (v Verdict) Valid() bool {
	return v == VerdictApprove || v == VerdictDeny
}

// ParseVerdict parses approve/deny, accepting a few common aliases.
func ParseVerdict(text string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "approve", "approved", "yes", "y":
		return VerdictApprove, nil
	case "deny", "denied", "reject", "rejected", "no", "n":
		return VerdictDeny, nil
	}
	return "", fmt.Errorf("invalid verdict: %q", text)
}

// Decision records who approved or denied a request.
type Decision struct {
	DecidedBy  string    `json:"decidedBy" yaml:"decidedBy"`
	Verdict    Verdict   `json:"verdict" yaml:"verdict"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Conditions []string  `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	DecidedAt  time.Time `json:"decidedAt" yaml:"decidedAt"`
}

// IsAuto reports whether the decision was made by a rule.
func (d *Decision) IsAuto() bool {
	return d != nil && strings.HasPrefix(d.DecidedBy, AutoRulePrefix)
}

// RuleID returns the deciding rule id, or "" for human decisions.
func (d *Decision) RuleID() string {
	if !d.IsAuto() {
		return ""
	}
	return strings.TrimPrefix(d.DecidedBy, AutoRulePrefix)
}
