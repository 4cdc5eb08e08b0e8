package warden

import (
	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/rule"
	"github.com/viant/warden/model/types"
	"github.com/viant/warden/service/action/shell"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/executor"
	"github.com/viant/warden/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the service.
type Option func(s *Service)

// WithConfig sets the configuration; DefaultConfig is used otherwise.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithRequestDAO replaces the configured request table.
func WithRequestDAO(requests dao.Service[string, request.OperationRequest]) Option {
	return func(s *Service) {
		s.requests = requests
	}
}

// WithAuditLog replaces the configured audit log.
func WithAuditLog(log audit.Log) Option {
	return func(s *Service) {
		s.audit = log
	}
}

// WithExecutor replaces the executor registry entirely.
func WithExecutor(executor executor.Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithExtensionServices registers additional action services; their method
// names become executable kinds.
func WithExtensionServices(services ...types.Service) Option {
	return func(s *Service) {
		s.extensionServices = append(s.extensionServices, services...)
	}
}

// WithRules appends auto-approval rules to those loaded from rules.file.
func WithRules(rules ...*rule.Rule) Option {
	return func(s *Service) {
		s.rules = append(s.rules, rules...)
	}
}

// WithMetaFsOptions sets storage options, for example an embed.FS, used when
// loading classification and rule files.
func WithMetaFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.metaFsOptions = append(s.metaFsOptions, options...)
	}
}

// WithRunner sets the command runner used by the exec, git and vscode actions.
func WithRunner(runner shell.Runner) Option {
	return func(s *Service) {
		s.runner = runner
	}
}

// WithFS sets the file service used by stores, queues and actions.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

func WithClock(now clock.Func) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(newID idgen.Func) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter. This enables
// integrations with exporters other than the built-in stdout exporter, for example OTLP, Jaeger or
// Zipkin. The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.logger.Warn("tracing_init_failed", "error", err)
		}
	}
}
