package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/viant/warden/model/permission"
)

// Built-in template ids.
const (
	RequestAnalysis = "request.analysis"
	SystemReport    = "system.report"
	AuditSummary    = "audit.summary"
)

var (
	ErrUnknownTemplate = errors.New("unknown template")
	ErrMissingValue    = errors.New("missing template value")
)

// Template is a text with ${name} and ${a.b} references. Derive computes
// additional values from the render context; values supplied by the caller
// take precedence.
type Template struct {
	ID          string
	Description string
	Text        string
	Derive      func(ctx map[string]interface{}) map[string]interface{}
}

// Render expands the template against ctx.
func (t *Template) Render(ctx map[string]interface{}) (string, error) {
	values := make(map[string]interface{}, len(ctx)+4)
	if t.Derive != nil {
		for k, v := range t.Derive(ctx) {
			values[k] = v
		}
	}
	for k, v := range ctx {
		values[k] = v
	}
	ret, missing := expand(t.Text, values)
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v: %v", ErrMissingValue, t.ID, strings.Join(missing, ", "))
	}
	return ret, nil
}

var builtins = map[string]*Template{
	RequestAnalysis: {
		ID:          RequestAnalysis,
		Description: "risk assessment and recommendation for a single request",
		Text: `[APPROVAL REQUEST ${request.id}]
Operation: ${request.kind}
Description: ${request.description}
Requester: ${request.requester}
Risk Level: ${request.risk}
Permission Required: ${request.permission}
Expires: ${request.expiresAt}

Assessment: ${assessment}
Parameters:
${parameters}
Recommendation: ${recommendation}
`,
		Derive: deriveAnalysis,
	},
	SystemReport: {
		ID:          SystemReport,
		Description: "pending requests and active auto-approval rules",
		Text: `[APPROVAL SYSTEM STATUS] ${generatedAt}

Pending Approval Requests: ${pendingCount}
${pendingList}
Active Rules: ${ruleCount}
${ruleList}`,
	},
	AuditSummary: {
		ID:          AuditSummary,
		Description: "audit record counts per event and actor",
		Text: `[AUDIT SUMMARY]
Records: ${summary.total}
Requests: ${summary.requests}
Period: ${summary.first} .. ${summary.last}

Events:
${events}
Actors:
${actors}`,
	},
}

// Lookup returns a built-in template.
func Lookup(templateID string) (*Template, bool) {
	ret, ok := builtins[templateID]
	return ret, ok
}

// IDs returns the built-in template ids in lexical order.
func IDs() []string {
	ret := make([]string, 0, len(builtins))
	for id := range builtins {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// Render expands the built-in template templateID against ctx.
func Render(templateID string, ctx map[string]interface{}) (string, error) {
	aTemplate, ok := Lookup(templateID)
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownTemplate, templateID)
	}
	return aTemplate.Render(ctx)
}

var assessments = map[permission.Risk][2]string{
	permission.Low:      {"minimal system impact, low risk to system stability", "APPROVE - low risk operation with minimal system impact"},
	permission.Medium:   {"moderate system impact, requires careful monitoring", "REVIEW - moderate risk requires human oversight"},
	permission.High:     {"significant system impact, could affect system functionality", "CAREFUL REVIEW - high risk operation needs thorough evaluation"},
	permission.Critical: {"critical system impact, requires immediate attention and oversight", "MANUAL APPROVAL - critical operation requires explicit authorization"},
}

func deriveAnalysis(ctx map[string]interface{}) map[string]interface{} {
	ret := map[string]interface{}{"parameters": "  (none)"}
	value, ok := lookup("request.risk", ctx)
	if !ok {
		return ret
	}
	risk, err := permission.ParseRisk(stringify(value))
	if err != nil {
		return ret
	}
	entry := assessments[risk]
	ret["assessment"] = entry[0]
	ret["recommendation"] = entry[1]
	return ret
}
