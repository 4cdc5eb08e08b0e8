package template

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/rule"
	"github.com/viant/warden/service/audit"
)

// reportLimit caps the pending requests listed in a system report.
const reportLimit = 10

// RequestContext builds the request.analysis context for req.
func RequestContext(req *request.OperationRequest) map[string]interface{} {
	ret := map[string]interface{}{
		"request": map[string]interface{}{
			"id":          req.ID,
			"kind":        req.Kind,
			"description": req.Description,
			"requester":   req.Requester,
			"risk":        req.RiskLevel.String(),
			"permission":  req.RequiredPermission.String(),
			"status":      string(req.Status),
			"createdAt":   req.CreatedAt,
			"expiresAt":   req.ExpiresAt,
		},
	}
	if len(req.Parameters) > 0 {
		var lines []string
		for _, param := range req.Parameters {
			lines = append(lines, fmt.Sprintf("  - %v: %v", param.Name, stringify(param.Value)))
		}
		ret["parameters"] = strings.Join(lines, "\n")
	}
	return ret
}

// ReportContext builds the system.report context.
func ReportContext(pending []*request.OperationRequest, rules []*rule.Rule, at time.Time) map[string]interface{} {
	var pendingLines []string
	for i, req := range pending {
		if i == reportLimit {
			pendingLines = append(pendingLines, fmt.Sprintf("  ... and %d more requests", len(pending)-reportLimit))
			break
		}
		pendingLines = append(pendingLines, fmt.Sprintf("  - %v | %v | %v | %v | expires %v",
			req.ID, req.Kind, req.RiskLevel, req.Requester, stringify(req.ExpiresAt)))
	}
	var ruleLines []string
	for _, aRule := range rules {
		if !aRule.IsEnabled() {
			continue
		}
		ruleLines = append(ruleLines, fmt.Sprintf("  - %v | kind: %v | max risk: %v | priority: %d",
			aRule.ID, aRule.Kind, aRule.MaxRisk, aRule.Priority))
	}
	return map[string]interface{}{
		"generatedAt":  at,
		"pendingCount": len(pending),
		"pendingList":  joinLines(pendingLines),
		"ruleCount":    len(ruleLines),
		"ruleList":     joinLines(ruleLines),
	}
}

// SummaryContext builds the audit.summary context.
func SummaryContext(summary *audit.Summary) map[string]interface{} {
	events := make([]string, 0, len(summary.ByEvent))
	for event, count := range summary.ByEvent {
		events = append(events, fmt.Sprintf("  - %v: %d", event, count))
	}
	actors := make([]string, 0, len(summary.Actors))
	for actor, count := range summary.Actors {
		actors = append(actors, fmt.Sprintf("  - %v: %d", actor, count))
	}
	sort.Strings(events)
	sort.Strings(actors)
	return map[string]interface{}{
		"summary": map[string]interface{}{
			"total":    summary.Total,
			"requests": summary.Requests,
			"first":    summary.First,
			"last":     summary.Last,
		},
		"events": joinLines(events),
		"actors": joinLines(actors),
	}
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
