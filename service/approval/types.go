package approval

import (
	"context"

	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/event"
)

// Event topics published by the engine.
const (
	TopicRequestCreated   = "request.created"
	TopicRequestExpired   = "request.expired"
	TopicDecisionCreated  = "decision.created"
	TopicRequestExecuted  = "request.executed"
	TopicRequestFailed    = "request.failed"
	TopicAuditUnavailable = "audit.unavailable"
	TopicSecurityAlert    = "security.alert"
)

// SystemActor authors transitions made by the engine itself.
const SystemActor = "system"

// Event is a request notification.
type Event = event.Event[request.OperationRequest]

// Publisher publishes request notifications.
type Publisher = event.Publisher[request.OperationRequest]

// Dispatcher queues the execution of an approved request.
type Dispatcher interface {
	Submit(ctx context.Context, requestID string) error
}

// Recovery summarises what Recover changed.
type Recovery struct {
	Reconciled   []string `json:"reconciled,omitempty" yaml:"reconciled,omitempty"`
	Redispatched []string `json:"redispatched,omitempty" yaml:"redispatched,omitempty"`
	Failed       []string `json:"failed,omitempty" yaml:"failed,omitempty"`
	Expired      []string `json:"expired,omitempty" yaml:"expired,omitempty"`
	Orphaned     []string `json:"orphaned,omitempty" yaml:"orphaned,omitempty"`
}

type submitOptions struct {
	description string
}

// SubmitOption customises a submission.
type SubmitOption func(o *submitOptions)

// WithDescription attaches free text describing the operation.
func WithDescription(description string) SubmitOption {
	return func(o *submitOptions) {
		o.description = description
	}
}
