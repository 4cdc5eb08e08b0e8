package rule

import (
	"sort"
	"time"

	"github.com/viant/warden/model/request"
)

// Match describes the rule that auto-approved a request.
type Match struct {
	Rule   *Rule
	Reason string
}

// DecidedBy returns the decision author for the matched rule.
func (m *Match) DecidedBy() string {
	return request.AutoRulePrefix + m.Rule.ID
}

// Evaluate returns the first enabled rule, by priority then declaration
// order, that approves req at the given time, or nil.
func Evaluate(req *request.OperationRequest, rules []*Rule, at time.Time) *Match {
	for _, candidate := range Ordered(rules) {
		if !candidate.IsEnabled() || !candidate.MatchesKind(req.Kind) {
			continue
		}
		if !req.RiskLevel.AtMost(candidate.MaxRisk) {
			continue
		}
		if !candidate.Window.Contains(at) {
			continue
		}
		if !matchAll(candidate, req) {
			continue
		}
		return &Match{Rule: candidate, Reason: reason(candidate, req)}
	}
	return nil
}

// Ordered returns a copy of rules stably sorted by priority.
func Ordered(rules []*Rule) []*Rule {
	ret := make([]*Rule, 0, len(rules))
	for _, candidate := range rules {
		if candidate != nil {
			ret = append(ret, candidate)
		}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Priority < ret[j].Priority
	})
	return ret
}

func matchAll(candidate *Rule, req *request.OperationRequest) bool {
	for _, c := range candidate.Constraints {
		if !c.Match(req.Parameters) {
			return false
		}
	}
	return true
}

func reason(candidate *Rule, req *request.OperationRequest) string {
	ret := "auto-approved by rule " + candidate.ID + ": kind " + req.Kind +
		" matches " + kindPattern(candidate) + ", risk " + req.RiskLevel.String() +
		" within " + candidate.MaxRisk.String()
	for _, c := range candidate.Constraints {
		ret += ", " + c.String()
	}
	return ret
}

func kindPattern(candidate *Rule) string {
	if candidate.Kind == "" {
		return "*"
	}
	return candidate.Kind
}
