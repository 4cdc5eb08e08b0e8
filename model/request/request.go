package request

import (
	"time"

	"github.com/viant/warden/model/permission"
)

// OperationRequest represents an operation awaiting, or past, an approval decision.
type OperationRequest struct {
	ID                 string           `json:"id" yaml:"id"`
	Kind               string           `json:"kind" yaml:"kind"`
	Parameters         Parameters       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequiredPermission permission.Level `json:"requiredPermission" yaml:"requiredPermission"`
	RiskLevel          permission.Risk  `json:"riskLevel" yaml:"riskLevel"`
	Requester          string           `json:"requester" yaml:"requester"`
	Description        string           `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt          time.Time        `json:"createdAt" yaml:"createdAt"`
	ExpiresAt          time.Time        `json:"expiresAt" yaml:"expiresAt"`
	UpdatedAt          time.Time        `json:"updatedAt" yaml:"updatedAt"`
	Status             Status           `json:"status" yaml:"status"`
	Decision           *Decision        `json:"decision,omitempty" yaml:"decision,omitempty"`
	Result             string           `json:"result,omitempty" yaml:"result,omitempty"`
	Error              string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// IsExpired reports whether the request is pending and at is not before ExpiresAt.
func (r *OperationRequest) IsExpired(at time.Time) bool {
	return r.Status == StatusPending && !at.Before(r.ExpiresAt)
}

// Clone returns a deep copy of the request envelope; parameter values are shared.
func (r *OperationRequest) Clone() *OperationRequest {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Parameters = r.Parameters.Clone()
	if r.Decision != nil {
		decision := *r.Decision
		decision.Conditions = append([]string(nil), r.Decision.Conditions...)
		ret.Decision = &decision
	}
	return &ret
}
