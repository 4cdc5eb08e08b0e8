package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
)

// DecisionFunc decides what to do with a pending request.
// Return (VerdictApprove, "") to approve or (VerdictDeny, "…") to deny with reason.
type DecisionFunc func(r *request.OperationRequest) (verdict request.Verdict, reason string)

// AutoDecider starts a goroutine that polls ListPending and applies fn to
// every request on behalf of decidedBy. It returns stop() – call it (or
// cancel ctx) to exit.
func AutoDecider(ctx context.Context,
	svc Service,
	decidedBy string,
	fn DecisionFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return every(ctx, interval, func() {
		reqs, _ := svc.ListPending(ctx)
		for _, r := range reqs {
			verdict, reason := fn(r)
			_, _ = svc.Decide(ctx, r.ID, verdict, decidedBy, reason)
		}
	})
}

// AutoApprove automatically approves all pending requests
func AutoApprove(ctx context.Context,
	svc Service,
	decidedBy string,
	interval time.Duration) func() {
	return AutoDecider(ctx, svc, decidedBy,
		func(*request.OperationRequest) (request.Verdict, string) { return request.VerdictApprove, "" }, interval)
}

// AutoReject automatically denies all pending requests with the given reason
func AutoReject(ctx context.Context,
	svc Service,
	decidedBy string,
	reason string,
	interval time.Duration) func() {
	return AutoDecider(ctx, svc, decidedBy,
		func(*request.OperationRequest) (request.Verdict, string) { return request.VerdictDeny, reason }, interval)
}

// AutoExpire runs Sweep every interval until stopped.
func AutoExpire(ctx context.Context,
	svc Service,
	interval time.Duration) func() {
	if interval <= 0 {
		interval = time.Minute
	}
	return every(ctx, interval, func() {
		_, _ = svc.Sweep(ctx)
	})
}

func every(ctx context.Context, interval time.Duration, fn func()) (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}

// WaitForDecision blocks until the request leaves pending or timeout elapses.
func WaitForDecision(ctx context.Context, svc Service, id string, timeout time.Duration) (*request.OperationRequest, error) {
	return waitFor(ctx, svc, id, timeout, func(r *request.OperationRequest) bool {
		return r.Status != request.StatusPending
	})
}

// WaitForOutcome blocks until the request reaches a terminal status or timeout elapses.
func WaitForOutcome(ctx context.Context, svc Service, id string, timeout time.Duration) (*request.OperationRequest, error) {
	return waitFor(ctx, svc, id, timeout, func(r *request.OperationRequest) bool {
		return r.Status.IsTerminal()
	})
}

func waitFor(ctx context.Context, svc Service, id string, timeout time.Duration, done func(r *request.OperationRequest) bool) (*request.OperationRequest, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if done(req) {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return req, fmt.Errorf("request %v still %v: %w", id, req.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

// PendingFilter narrows ListPending results.
type PendingFilter func(r *request.OperationRequest) bool

// WithKind keeps requests of the given kinds.
func WithKind(kinds ...string) PendingFilter {
	return func(r *request.OperationRequest) bool {
		for _, kind := range kinds {
			if r.Kind == kind {
				return true
			}
		}
		return false
	}
}

// WithRequester keeps requests submitted by requester.
func WithRequester(requester string) PendingFilter {
	return func(r *request.OperationRequest) bool { return r.Requester == requester }
}

// WithMaxRisk keeps requests at or below risk.
func WithMaxRisk(risk permission.Risk) PendingFilter {
	return func(r *request.OperationRequest) bool { return r.RiskLevel.AtMost(risk) }
}

// ListPending returns pending requests matching every filter.
func ListPending(ctx context.Context, svc Service, filters ...PendingFilter) ([]*request.OperationRequest, error) {
	pending, err := svc.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	var ret []*request.OperationRequest
outer:
	for _, r := range pending {
		for _, filter := range filters {
			if !filter(r) {
				continue outer
			}
		}
		ret = append(ret, r)
	}
	return ret, nil
}
