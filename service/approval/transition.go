package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/audit"
)

// transition appends the audit record for ev and, once it is durable,
// persists req in the new status. Callers hold the request lock.
func (e *Engine) transition(ctx context.Context, req *request.OperationRequest, ev audit.Event, actor, message string, detail *audit.Detail, mutate func(r *request.OperationRequest)) error {
	to, ok := ev.Status()
	if !ok {
		return fmt.Errorf("unknown audit event %q", ev)
	}
	from := req.Status
	if ev == audit.EventAwaitingDecision {
		if from != request.StatusPending {
			return fmt.Errorf("%w: request %v is %v", ErrInvalidState, req.ID, from)
		}
	} else if !request.CanTransition(from, to) {
		return fmt.Errorf("%w: request %v cannot move from %q to %q", ErrInvalidState, req.ID, from, to)
	}
	now := e.now()
	record := &audit.Record{
		RequestID: req.ID,
		Event:     ev,
		From:      from,
		To:        to,
		Actor:     actor,
		Message:   message,
		Detail:    detail,
		Time:      now,
	}
	if err := e.audit.Append(ctx, record); err != nil {
		return e.auditFailed(ctx, req, record, err)
	}
	if mutate != nil {
		mutate(req)
	}
	req.Status = to
	req.UpdatedAt = now
	if err := e.requests.Save(ctx, req); err != nil {
		e.logger.Error("request_save_failed", "id", req.ID, "status", string(to), "error", err)
		return fmt.Errorf("%w: failed to save request %v: %v", ErrStorageUnavailable, req.ID, err)
	}
	return nil
}

// auditFailed aborts a transition whose record could not be appended. The
// request is moved to failed in the request table and the failure is
// recorded with retries; when the log stays unavailable it is escalated.
func (e *Engine) auditFailed(ctx context.Context, req *request.OperationRequest, record *audit.Record, cause error) error {
	cause = audit.Unavailable(cause)
	e.logger.Error("audit_append_failed", "id", req.ID, "event", string(record.Event), "error", cause)

	var pending []*audit.Record
	from := record.From
	if record.Event == audit.EventCreated {
		pending = append(pending, record)
		from = request.StatusPending
	}
	reason := fmt.Sprintf("audit log unavailable while recording %v: %v", record.Event, cause)
	now := e.now()
	pending = append(pending, &audit.Record{
		RequestID: req.ID,
		Event:     audit.EventFailed,
		From:      from,
		To:        request.StatusFailed,
		Actor:     SystemActor,
		Message:   reason,
		Detail:    &audit.Detail{Kind: req.Kind, Error: cause.Error()},
		Time:      now,
	})

	req.Status = request.StatusFailed
	req.Error = reason
	req.UpdatedAt = now
	if err := e.requests.Save(ctx, req); err != nil {
		e.logger.Error("request_save_failed", "id", req.ID, "status", string(request.StatusFailed), "error", err)
	}
	if err := e.appendWithRetry(ctx, pending); err != nil {
		e.logger.Error("audit_unavailable", "id", req.ID, "event", string(record.Event), "error", err)
		e.publish(ctx, TopicAuditUnavailable, req, SystemActor)
	}
	e.publish(ctx, TopicRequestFailed, req, SystemActor)
	e.alert(ctx, req, SystemActor, reason)
	return fmt.Errorf("failed to record %v for request %v: %w", record.Event, req.ID, cause)
}

// appendWithRetry appends records in order, retrying with exponential backoff.
func (e *Engine) appendWithRetry(ctx context.Context, records []*audit.Record) error {
	delay := e.auditRetryDelay
	next := 0
	var err error
	for attempt := 0; attempt <= e.auditRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (gave up: %v)", err, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		for next < len(records) {
			if err = e.audit.Append(ctx, records[next]); err != nil {
				break
			}
			next++
		}
		if next == len(records) {
			return nil
		}
	}
	return err
}

func createdMessage(req *request.OperationRequest) string {
	ret := fmt.Sprintf("request %v created by %v: %v classified as %v risk, requires %v permission, expires at %v",
		req.ID, req.Requester, req.Kind, req.RiskLevel, req.RequiredPermission, req.ExpiresAt.Format(time.RFC3339))
	if req.Description != "" {
		ret += "; " + req.Description
	}
	return ret
}

func awaitingMessage(req *request.OperationRequest) string {
	return fmt.Sprintf("awaiting human decision: no auto-approval rule matched %v at %v risk; approver needs %v permission",
		req.Kind, req.RiskLevel, req.RequiredPermission)
}

func decisionMessage(req *request.OperationRequest, decision *request.Decision) string {
	verb := "approved"
	if decision.Verdict == request.VerdictDeny {
		verb = "denied"
	}
	ret := fmt.Sprintf("%v %v %v request %v", decision.DecidedBy, verb, req.Kind, req.ID)
	if decision.Reason != "" {
		ret += ": " + decision.Reason
	}
	if len(decision.Conditions) > 0 {
		ret += "; conditions: " + strings.Join(decision.Conditions, ", ")
	}
	return ret
}
