package approval

import (
	"context"

	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/audit"
)

// Service gates operations behind approval and records their audit trail.
type Service interface {
	// Submit classifies and records a new request, auto-approving it when a rule matches.
	Submit(ctx context.Context, kind string, params request.Parameters, requester string, options ...SubmitOption) (*request.OperationRequest, error)
	// Decide approves or denies a pending request.
	Decide(ctx context.Context, id string, verdict request.Verdict, decidedBy, reason string, conditions ...string) (*request.OperationRequest, error)
	Get(ctx context.Context, id string) (*request.OperationRequest, error)
	// ListPending returns pending requests ordered by CreatedAt.
	ListPending(ctx context.Context) ([]*request.OperationRequest, error)
	AuditTrail(ctx context.Context, id string) ([]*audit.Record, error)
	// Sweep expires overdue pending requests and returns how many were expired.
	Sweep(ctx context.Context) (int, error)
	// Recover reconciles persisted state after a restart.
	Recover(ctx context.Context) (*Recovery, error)
	// Execute runs an approved request; it is a no-op once execution started.
	Execute(ctx context.Context, id string) (*request.OperationRequest, error)
}
