package approval

import (
	"log/slog"
	"time"

	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/rule"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/executor"
)

// Option configures the engine.
type Option func(e *Engine)

// WithRequestDAO sets the request table.
func WithRequestDAO(requests dao.Service[string, request.OperationRequest]) Option {
	return func(e *Engine) { e.requests = requests }
}

// WithAuditLog sets the audit log.
func WithAuditLog(log audit.Log) Option {
	return func(e *Engine) { e.audit = log }
}

// WithClassifier sets the permission and risk classifier.
func WithClassifier(classifier *permission.Classifier) Option {
	return func(e *Engine) { e.classifier = classifier }
}

// WithRules sets the auto-approval rules.
func WithRules(rules ...*rule.Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithTTL sets the pending request time-to-live per risk.
func WithTTL(ttl permission.TTL) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithExecutor sets the executor running approved requests.
func WithExecutor(executor executor.Executor) Option {
	return func(e *Engine) { e.executor = executor }
}

// WithDispatcher queues executions instead of running them inline.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = dispatcher }
}

// WithPublisher sets the notification publisher.
func WithPublisher(publisher *Publisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithApprovers restricts deciders to the listed identities; each may only
// decide requests whose required permission its level satisfies. Names
// compare case-insensitively.
func WithApprovers(approvers map[string]permission.Level) Option {
	return func(e *Engine) {
		for name, level := range approvers {
			e.initialGrants = append(e.initialGrants, &permission.Grant{Approver: name, Level: level})
		}
	}
}

// WithGrants restricts deciders to active grant holders.
func WithGrants(grants ...*permission.Grant) Option {
	return func(e *Engine) { e.initialGrants = append(e.initialGrants, grants...) }
}

// WithSensitiveKinds raises a security alert whenever a submitted kind
// contains one of the given names.
func WithSensitiveKinds(kinds ...string) Option {
	return func(e *Engine) { e.sensitive = append(e.sensitive, kinds...) }
}

// WithPublishTimeout bounds how long a notification may wait on its queue.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.publishTimeout = timeout
		}
	}
}

// WithAuditRetries sets how often, and with which initial backoff, a failure
// record is retried after an audit append failed.
func WithAuditRetries(retries int, delay time.Duration) Option {
	return func(e *Engine) {
		e.auditRetries = retries
		e.auditRetryDelay = delay
	}
}

func WithClock(now clock.Func) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID idgen.Func) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}
