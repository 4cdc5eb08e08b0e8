package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/tracing"
)

// Recover implements Service. The audit trail is the source of truth: the
// request table is first brought in line with the replayed status, then
// interrupted executions fail, approved requests are dispatched again and
// overdue pending requests expire. Nothing is ever executed twice.
func (e *Engine) Recover(ctx context.Context) (ret *Recovery, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.recover", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()

	all, err := e.requests.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list requests: %v", ErrStorageUnavailable, err)
	}
	sortByCreated(all)
	ret = &Recovery{}
	known := make(map[string]bool, len(all))
	var redispatch []*request.OperationRequest
	var errs []error
	for _, candidate := range all {
		known[candidate.ID] = true
		req, rErr := e.recoverOne(ctx, candidate.ID, ret)
		if rErr != nil {
			errs = append(errs, rErr)
			continue
		}
		if req != nil {
			redispatch = append(redispatch, req)
		}
	}

	created, err := e.audit.List(ctx, audit.WithEvent(audit.EventCreated))
	if err != nil {
		errs = append(errs, audit.Unavailable(err))
	}
	for _, record := range created {
		if !known[record.RequestID] {
			ret.Orphaned = append(ret.Orphaned, record.RequestID)
			e.logger.Warn("recover_orphaned_trail", "id", record.RequestID)
		}
	}

	for _, req := range redispatch {
		if _, dErr := e.dispatch(ctx, req); dErr != nil {
			errs = append(errs, dErr)
		}
	}
	e.logger.Info("recovery_completed",
		"reconciled", len(ret.Reconciled),
		"redispatched", len(ret.Redispatched),
		"failed", len(ret.Failed),
		"expired", len(ret.Expired),
		"orphaned", len(ret.Orphaned))
	return ret, errors.Join(errs...)
}

// recoverOne reconciles one request and returns it when it needs dispatching.
func (e *Engine) recoverOne(ctx context.Context, id string, report *Recovery) (*request.OperationRequest, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	req, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := e.audit.Query(ctx, id)
	if err != nil {
		return nil, audit.Unavailable(err)
	}
	if len(records) > 0 || req.Status == request.StatusFailed {
		status, rErr := audit.Replay(records)
		switch {
		case rErr != nil:
			e.logger.Warn("recover_replay_failed", "id", id, "error", rErr)
		case status == req.Status:
		case req.Status == request.StatusFailed:
			if err = e.completeFailure(ctx, req, status); err != nil {
				return nil, err
			}
			report.Reconciled = append(report.Reconciled, id)
		default:
			e.logger.Warn("request_reconciled", "id", id, "table", string(req.Status), "audit", string(status))
			reconcile(req, records, status)
			req.UpdatedAt = e.now()
			if err = e.requests.Save(ctx, req); err != nil {
				return nil, fmt.Errorf("%w: failed to save request %v: %v", ErrStorageUnavailable, id, err)
			}
			report.Reconciled = append(report.Reconciled, id)
		}
	}

	switch {
	case req.Status == request.StatusExecuting:
		cause := "execution interrupted by restart"
		if err = e.fail(ctx, req, "execution outcome unknown: "+cause+"; not re-executed", cause); err != nil {
			return nil, err
		}
		report.Failed = append(report.Failed, id)
	case req.Status.IsApproved():
		if request.HasCondition(req.Decision, request.ConditionSingleUse) {
			cause := "single use approval is not replayed after restart"
			if err = e.fail(ctx, req, cause, cause); err != nil {
				return nil, err
			}
			report.Failed = append(report.Failed, id)
			return nil, nil
		}
		report.Redispatched = append(report.Redispatched, id)
		return req, nil
	case req.IsExpired(e.now()):
		if err = e.expire(ctx, req); err != nil {
			return nil, err
		}
		report.Expired = append(report.Expired, id)
	}
	return nil, nil
}

// completeFailure appends the failure records an earlier audit outage could
// not write, so the trail ends in failed like the request table.
func (e *Engine) completeFailure(ctx context.Context, req *request.OperationRequest, status request.Status) error {
	var records []*audit.Record
	now := e.now()
	if status == "" {
		records = append(records, &audit.Record{
			RequestID: req.ID, Event: audit.EventCreated, To: request.StatusPending, Actor: req.Requester,
			Message: createdMessage(req), Detail: &audit.Detail{Kind: req.Kind, Risk: req.RiskLevel.String(), Permission: req.RequiredPermission.String()},
			Time: now,
		})
		status = request.StatusPending
	}
	if !request.CanTransition(status, request.StatusFailed) {
		e.logger.Warn("recover_failure_unrecordable", "id", req.ID, "audit", string(status))
		return nil
	}
	records = append(records, &audit.Record{
		RequestID: req.ID, Event: audit.EventFailed, From: status, To: request.StatusFailed, Actor: SystemActor,
		Message: "recorded after recovery: " + req.Error, Detail: &audit.Detail{Kind: req.Kind, Error: req.Error},
		Time: now,
	})
	for _, record := range records {
		if err := e.audit.Append(ctx, record); err != nil {
			return audit.Unavailable(err)
		}
	}
	return nil
}

// reconcile rebuilds the status, decision and outcome of req from its trail.
func reconcile(req *request.OperationRequest, records []*audit.Record, status request.Status) {
	req.Status = status
	for _, record := range records {
		switch record.Event {
		case audit.EventAutoApproved, audit.EventApproved, audit.EventDenied:
			decision := &request.Decision{DecidedBy: record.Actor, DecidedAt: record.Time, Verdict: request.VerdictApprove}
			if record.Event == audit.EventDenied {
				decision.Verdict = request.VerdictDeny
			}
			if record.Detail != nil {
				decision.Reason = record.Detail.Reason
				decision.Conditions = append([]string(nil), record.Detail.Conditions...)
			}
			req.Decision = decision
		case audit.EventExecuted:
			if record.Detail != nil {
				req.Result = record.Detail.Result
			}
		case audit.EventFailed:
			if record.Detail != nil {
				req.Error = record.Detail.Error
			}
		}
	}
}
