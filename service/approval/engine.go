package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/internal/keylock"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/rule"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
	"github.com/viant/warden/service/event"
	"github.com/viant/warden/service/executor"
	"github.com/viant/warden/tracing"
)

// Engine is the approval workflow engine. Every state change is appended to
// the audit log before the request table is updated, under a per-request lock.
type Engine struct {
	requests        dao.Service[string, request.OperationRequest]
	audit           audit.Log
	classifier      *permission.Classifier
	rules           []*rule.Rule
	ttl             permission.TTL
	executor        executor.Executor
	dispatcher      Dispatcher
	publisher       *Publisher
	publishTimeout  time.Duration
	grants          *permission.Grants
	initialGrants   []*permission.Grant
	restricted      atomic.Bool
	sensitive       []string
	auditRetries    int
	auditRetryDelay time.Duration
	now             clock.Func
	newID           idgen.Func
	logger          *slog.Logger
	locks           *keylock.Locker
}

var _ Service = (*Engine)(nil)

// New creates an engine; a request table and an audit log are required.
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		ttl:             permission.DefaultTTL(),
		auditRetries:    3,
		auditRetryDelay: 50 * time.Millisecond,
		publishTimeout:  100 * time.Millisecond,
		grants:          &permission.Grants{},
		now:             clock.System,
		newID:           idgen.New,
		logger:          slog.Default(),
		locks:           keylock.New(),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.requests == nil {
		return nil, fmt.Errorf("request table is required")
	}
	if e.audit == nil {
		return nil, fmt.Errorf("audit log is required")
	}
	if e.classifier == nil {
		classifier, err := permission.NewClassifier(permission.DefaultTable())
		if err != nil {
			return nil, err
		}
		e.classifier = classifier
	}
	if err := e.ttl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for _, candidate := range e.rules {
		if err := candidate.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	for _, grant := range e.initialGrants {
		if err := e.grants.Put(grant); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		e.restricted.Store(true)
	}
	return e, nil
}

// Grant adds or replaces an approver grant. Once any grant exists, only
// holders of an active grant may decide.
func (e *Engine) Grant(grant *permission.Grant) error {
	if err := e.grants.Put(grant); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	e.restricted.Store(true)
	args := []any{"approver", grant.Approver, "level", grant.Level.String()}
	if grant.ExpiresAt != nil {
		args = append(args, "expiresAt", grant.ExpiresAt.Format(time.RFC3339))
	}
	e.logger.Warn("approver_granted", args...)
	return nil
}

// Revoke removes an approver grant and reports whether it existed.
func (e *Engine) Revoke(approver string) bool {
	revoked := e.grants.Revoke(approver)
	if revoked {
		e.logger.Warn("approver_revoked", "approver", approver)
	}
	return revoked
}

// Grants returns the approver grants, expired ones included until swept.
func (e *Engine) Grants() []*permission.Grant {
	return e.grants.List()
}

// Rules returns the configured auto-approval rules in evaluation order.
func (e *Engine) Rules() []*rule.Rule {
	return rule.Ordered(e.rules)
}

// Submit implements Service.
func (e *Engine) Submit(ctx context.Context, kind string, params request.Parameters, requester string, options ...SubmitOption) (ret *request.OperationRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.submit", tracing.KindServer)
	defer func() { tracing.EndSpan(span, err) }()

	kind = strings.TrimSpace(kind)
	requester = strings.TrimSpace(requester)
	if kind == "" {
		return nil, fmt.Errorf("%w: kind was empty", ErrInvalidArgument)
	}
	if requester == "" {
		return nil, fmt.Errorf("%w: requester was empty", ErrInvalidArgument)
	}
	opts := &submitOptions{}
	for _, opt := range options {
		opt(opts)
	}
	level, risk, err := e.classifier.Classify(kind, params)
	if err != nil {
		return nil, err
	}
	now := e.now()
	req := &request.OperationRequest{
		ID:                 e.newID(),
		Kind:               kind,
		Parameters:         params.Clone(),
		RequiredPermission: level,
		RiskLevel:          risk,
		Requester:          requester,
		Description:        opts.description,
		CreatedAt:          now,
		ExpiresAt:          now.Add(e.ttl.For(risk)),
		UpdatedAt:          now,
	}
	span.WithAttributes(map[string]string{"request.id": req.ID, "request.kind": kind, "request.risk": risk.String()})

	unlock := e.locks.Lock(req.ID)
	detail := &audit.Detail{Kind: kind, Risk: risk.String(), Permission: level.String()}
	if err = e.transition(ctx, req, audit.EventCreated, requester, createdMessage(req), detail, nil); err != nil {
		unlock()
		return nil, err
	}
	e.logger.Info("request_submitted", "id", req.ID, "kind", kind, "risk", risk.String(), "requester", requester)
	if e.isSensitive(kind) {
		e.alert(ctx, req, requester, "sensitive operation submitted: "+kind)
	}

	match := rule.Evaluate(req, e.rules, now)
	if match == nil {
		err = e.transition(ctx, req, audit.EventAwaitingDecision, SystemActor, awaitingMessage(req), nil, nil)
		unlock()
		if err != nil {
			return nil, err
		}
		e.publish(ctx, TopicRequestCreated, req, requester)
		return req.Clone(), nil
	}

	decision := &request.Decision{
		DecidedBy: match.DecidedBy(),
		Verdict:   request.VerdictApprove,
		Reason:    match.Reason,
		DecidedAt: now,
	}
	detail = &audit.Detail{Kind: kind, RuleID: match.Rule.ID, Verdict: string(decision.Verdict), Reason: match.Reason}
	err = e.transition(ctx, req, audit.EventAutoApproved, decision.DecidedBy, match.Reason, detail, func(r *request.OperationRequest) {
		r.Decision = decision
	})
	unlock()
	if err != nil {
		return nil, err
	}
	e.logger.Info("request_auto_approved", "id", req.ID, "rule", match.Rule.ID)
	e.publish(ctx, TopicDecisionCreated, req, decision.DecidedBy)
	return e.dispatch(ctx, req)
}

// Decide implements Service.
func (e *Engine) Decide(ctx context.Context, id string, verdict request.Verdict, decidedBy, reason string, conditions ...string) (ret *request.OperationRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.decide", tracing.KindServer)
	span.WithAttributes(map[string]string{"request.id": id, "decision.verdict": string(verdict)})
	defer func() { tracing.EndSpan(span, err) }()

	decidedBy = strings.TrimSpace(decidedBy)
	switch {
	case !verdict.Valid():
		return nil, fmt.Errorf("%w: invalid verdict %q", ErrInvalidArgument, verdict)
	case decidedBy == "":
		return nil, fmt.Errorf("%w: decidedBy was empty", ErrInvalidArgument)
	case strings.HasPrefix(decidedBy, request.AutoRulePrefix):
		return nil, fmt.Errorf("%w: %q is reserved for rules", ErrInvalidArgument, request.AutoRulePrefix)
	case strings.EqualFold(decidedBy, SystemActor):
		return nil, fmt.Errorf("%w: %q is reserved for the engine", ErrInvalidArgument, SystemActor)
	}
	if _, err = request.ParseConditions(conditions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	unlock := e.locks.Lock(id)
	req, err := e.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if req.IsExpired(e.now()) {
		err = e.expire(ctx, req)
		unlock()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: request %v expired at %v", ErrExpired, id, req.ExpiresAt.Format(time.RFC3339))
	}
	if req.Status != request.StatusPending {
		unlock()
		return nil, fmt.Errorf("%w: request %v is %v", ErrInvalidState, id, req.Status)
	}
	if err = e.authorize(decidedBy, req); err != nil {
		unlock()
		return nil, err
	}

	decision := &request.Decision{
		DecidedBy:  decidedBy,
		Verdict:    verdict,
		Reason:     reason,
		Conditions: append([]string(nil), conditions...),
		DecidedAt:  e.now(),
	}
	ev := audit.EventApproved
	if verdict == request.VerdictDeny {
		ev = audit.EventDenied
	}
	detail := &audit.Detail{Kind: req.Kind, Verdict: string(verdict), Reason: reason, Conditions: decision.Conditions}
	err = e.transition(ctx, req, ev, decidedBy, decisionMessage(req, decision), detail, func(r *request.OperationRequest) {
		r.Decision = decision
	})
	unlock()
	if err != nil {
		return nil, err
	}
	e.logger.Info("request_decided", "id", id, "verdict", string(verdict), "by", decidedBy)
	e.publish(ctx, TopicDecisionCreated, req, decidedBy)
	if verdict == request.VerdictDeny {
		return req.Clone(), nil
	}
	return e.dispatch(ctx, req)
}

// Get implements Service; an overdue pending request is expired first.
func (e *Engine) Get(ctx context.Context, id string) (*request.OperationRequest, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	req, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsExpired(e.now()) {
		if err = e.expire(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// ListPending implements Service.
func (e *Engine) ListPending(ctx context.Context) ([]*request.OperationRequest, error) {
	candidates, err := e.requests.List(ctx, criteria.WithStatus(request.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list requests: %v", ErrStorageUnavailable, err)
	}
	var ret []*request.OperationRequest
	for _, candidate := range candidates {
		req, err := e.Get(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if req.Status == request.StatusPending {
			ret = append(ret, req)
		}
	}
	sortByCreated(ret)
	return ret, nil
}

// AuditTrail implements Service.
func (e *Engine) AuditTrail(ctx context.Context, id string) ([]*audit.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id was empty", ErrInvalidArgument)
	}
	records, err := e.audit.Query(ctx, id)
	if err != nil {
		return nil, audit.Unavailable(err)
	}
	if len(records) == 0 {
		if _, err = e.load(ctx, id); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Sweep implements Service.
func (e *Engine) Sweep(ctx context.Context) (count int, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.sweep", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()

	candidates, err := e.requests.List(ctx, criteria.WithStatus(request.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to list requests: %v", ErrStorageUnavailable, err)
	}
	now := e.now()
	var errs []error
	for _, candidate := range candidates {
		if !candidate.IsExpired(now) {
			continue
		}
		expired, xErr := e.expireIfDue(ctx, candidate.ID)
		if xErr != nil {
			errs = append(errs, xErr)
			continue
		}
		if expired {
			count++
		}
	}
	if count > 0 {
		e.logger.Info("requests_swept", "expired", count)
	}
	if lapsed := e.grants.Prune(now); len(lapsed) > 0 {
		e.logger.Warn("approver_grants_expired", "approvers", lapsed)
	}
	return count, errors.Join(errs...)
}

// Execute implements Service.
func (e *Engine) Execute(ctx context.Context, id string) (ret *request.OperationRequest, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.execute", tracing.KindInternal)
	span.WithAttributes(map[string]string{"request.id": id})
	defer func() { tracing.EndSpan(span, err) }()

	req, started, err := e.start(ctx, id)
	if err != nil || !started {
		return req, err
	}
	result, execErr := e.run(ctx, req)
	return e.finish(ctx, id, result, execErr)
}

// start checks conditions and persists the executing marker. It reports
// false when the request already started or finished.
func (e *Engine) start(ctx context.Context, id string) (*request.OperationRequest, bool, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	req, err := e.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if req.Status == request.StatusExecuting || req.Status.IsTerminal() {
		return req, false, nil
	}
	if !req.Status.IsApproved() {
		return nil, false, fmt.Errorf("%w: request %v is %v", ErrInvalidState, id, req.Status)
	}
	if cErr := e.checkConditions(req); cErr != nil {
		if err = e.fail(ctx, req, "approval condition violated: "+cErr.Error(), cErr.Error()); err != nil {
			return nil, false, err
		}
		return req, false, fmt.Errorf("%w: %v", ErrConditionFailed, cErr)
	}
	message := fmt.Sprintf("execution of %v started for request %v", req.Kind, req.ID)
	if err = e.transition(ctx, req, audit.EventExecutionStarted, SystemActor, message, &audit.Detail{Kind: req.Kind}, nil); err != nil {
		return nil, false, err
	}
	e.logger.Info("execution_started", "id", id, "kind", req.Kind)
	return req, true, nil
}

func (e *Engine) checkConditions(req *request.OperationRequest) error {
	if req.Decision == nil || len(req.Decision.Conditions) == 0 {
		return nil
	}
	conditions, err := request.ParseConditions(req.Decision.Conditions)
	if err != nil {
		return err
	}
	now := e.now()
	for _, condition := range conditions {
		if err = condition.Check(req, now); err != nil {
			return err
		}
	}
	return nil
}

// run calls the executor with no lock held.
func (e *Engine) run(ctx context.Context, req *request.OperationRequest) (*executor.Result, error) {
	if e.executor == nil {
		return nil, fmt.Errorf("no executor configured for %v", req.Kind)
	}
	ctx, span := tracing.StartSpan(ctx, "executor."+req.Kind, tracing.KindClient)
	result, err := e.executor.Execute(ctx, req.Kind, req.Parameters)
	tracing.EndSpan(span, err)
	if err == nil && result == nil {
		result = &executor.Result{}
	}
	return result, err
}

func (e *Engine) finish(ctx context.Context, id string, result *executor.Result, execErr error) (*request.OperationRequest, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	req, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != request.StatusExecuting {
		return req, fmt.Errorf("%w: request %v is %v after execution", ErrInvalidState, id, req.Status)
	}
	if execErr != nil {
		if err = e.fail(ctx, req, "execution failed: "+execErr.Error(), execErr.Error()); err != nil {
			return nil, err
		}
		e.logger.Warn("execution_failed", "id", id, "kind", req.Kind, "error", execErr)
		return req, fmt.Errorf("%w: %v: %w", ErrExecutor, req.Kind, execErr)
	}
	message := fmt.Sprintf("executed %v for request %v", req.Kind, req.ID)
	if result.Summary != "" {
		message += ": " + result.Summary
	}
	detail := &audit.Detail{Kind: req.Kind, Result: result.Summary}
	err = e.transition(ctx, req, audit.EventExecuted, SystemActor, message, detail, func(r *request.OperationRequest) {
		r.Result = result.Summary
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("execution_completed", "id", id, "kind", req.Kind)
	e.publish(ctx, TopicRequestExecuted, req, SystemActor)
	return req, nil
}

// dispatch queues or runs execution. Executor and condition failures are
// recorded on the request and not returned.
func (e *Engine) dispatch(ctx context.Context, req *request.OperationRequest) (*request.OperationRequest, error) {
	if e.dispatcher != nil {
		if err := e.dispatcher.Submit(ctx, req.ID); err != nil {
			e.logger.Error("dispatch_failed", "id", req.ID, "error", err)
		}
		return req.Clone(), nil
	}
	ret, err := e.Execute(ctx, req.ID)
	if errors.Is(err, ErrExecutor) || errors.Is(err, ErrConditionFailed) {
		return ret, nil
	}
	return ret, err
}

func (e *Engine) expireIfDue(ctx context.Context, id string) (bool, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	req, err := e.load(ctx, id)
	if err != nil {
		return false, err
	}
	if !req.IsExpired(e.now()) {
		return false, nil
	}
	return true, e.expire(ctx, req)
}

func (e *Engine) expire(ctx context.Context, req *request.OperationRequest) error {
	message := fmt.Sprintf("request %v expired: no decision before %v", req.ID, req.ExpiresAt.Format(time.RFC3339))
	detail := &audit.Detail{Kind: req.Kind, Risk: req.RiskLevel.String()}
	if err := e.transition(ctx, req, audit.EventExpired, SystemActor, message, detail, nil); err != nil {
		return err
	}
	e.logger.Info("request_expired", "id", req.ID, "kind", req.Kind)
	e.publish(ctx, TopicRequestExpired, req, SystemActor)
	return nil
}

func (e *Engine) fail(ctx context.Context, req *request.OperationRequest, message, cause string) error {
	err := e.transition(ctx, req, audit.EventFailed, SystemActor, message, &audit.Detail{Kind: req.Kind, Error: cause}, func(r *request.OperationRequest) {
		r.Error = cause
	})
	if err == nil {
		e.publish(ctx, TopicRequestFailed, req, SystemActor)
		e.alert(ctx, req, SystemActor, message)
	}
	return err
}

// authorize lets anyone decide until a grant is configured.
func (e *Engine) authorize(decidedBy string, req *request.OperationRequest) error {
	if !e.restricted.Load() {
		return nil
	}
	grant, ok := e.grants.Lookup(decidedBy)
	if !ok {
		return fmt.Errorf("%w: %v is not an approver", ErrPermissionDenied, decidedBy)
	}
	if !grant.Active(e.now()) {
		return fmt.Errorf("%w: grant of %v expired at %v", ErrPermissionDenied, decidedBy, grant.ExpiresAt.Format(time.RFC3339))
	}
	if !permission.Satisfies(grant.Level, req.RequiredPermission) {
		return fmt.Errorf("%w: %v holds %v, %v requires %v", ErrPermissionDenied, decidedBy, grant.Level, req.Kind, req.RequiredPermission)
	}
	return nil
}

func (e *Engine) isSensitive(kind string) bool {
	kind = strings.ToLower(kind)
	for _, candidate := range e.sensitive {
		if candidate != "" && strings.Contains(kind, strings.ToLower(candidate)) {
			return true
		}
	}
	return false
}

// alert logs and publishes a security alert about req.
func (e *Engine) alert(ctx context.Context, req *request.OperationRequest, actor, reason string) {
	e.logger.Warn("security_alert", "id", req.ID, "kind", req.Kind, "status", string(req.Status), "reason", reason)
	e.send(ctx, e.newEvent(TopicSecurityAlert, req, actor, reason))
}

func (e *Engine) load(ctx context.Context, id string) (*request.OperationRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id was empty", ErrInvalidArgument)
	}
	req, err := e.requests.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("request %v: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: failed to load request %v: %v", ErrStorageUnavailable, id, err)
	}
	return req, nil
}

func (e *Engine) publish(ctx context.Context, topic string, req *request.OperationRequest, actor string) {
	e.send(ctx, e.newEvent(topic, req, actor, ""))
}

func (e *Engine) newEvent(topic string, req *request.OperationRequest, actor, reason string) *Event {
	evt := event.NewEvent(&event.Context{
		Topic:     topic,
		RequestID: req.ID,
		Kind:      req.Kind,
		Status:    string(req.Status),
		Actor:     actor,
	}, *req.Clone())
	evt.CreatedAt = e.now()
	if reason != "" {
		evt.Metadata["reason"] = reason
	}
	return evt
}

// send never waits longer than publishTimeout; notifications are best effort
// and callers may hold a request lock.
func (e *Engine) send(ctx context.Context, evt *Event) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.Warn("event_publish_failed", "topic", evt.Topic(), "id", evt.Context.RequestID, "error", err)
	}
}

func sortByCreated(requests []*request.OperationRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}
