package warden

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/rule"
	"github.com/viant/warden/model/types"
	"github.com/viant/warden/service/action/exec"
	"github.com/viant/warden/service/action/git"
	"github.com/viant/warden/service/action/patch"
	"github.com/viant/warden/service/action/secret"
	"github.com/viant/warden/service/action/shell"
	"github.com/viant/warden/service/action/vscode"
	"github.com/viant/warden/service/action/workspace"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	afs_audit "github.com/viant/warden/service/audit/fs"
	mem_audit "github.com/viant/warden/service/audit/memory"
	sql_audit "github.com/viant/warden/service/audit/sqlite"
	"github.com/viant/warden/service/dao"
	fs_request "github.com/viant/warden/service/dao/request/fs"
	mem_request "github.com/viant/warden/service/dao/request/memory"
	sql_request "github.com/viant/warden/service/dao/request/sqlite"
	"github.com/viant/warden/service/event"
	"github.com/viant/warden/service/executor"
	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/service/messaging/fs"
	"github.com/viant/warden/service/messaging/memory"
	"github.com/viant/warden/service/meta"
	"github.com/viant/warden/service/processor"
	"github.com/viant/warden/service/template"
	"github.com/viant/warden/tracing"
)

// Service assembles the approval engine with its stores, executor
// collaborators, notification queues and dispatch pool.
type Service struct {
	config            *Config
	engine            *approval.Engine
	requests          dao.Service[string, request.OperationRequest]
	audit             audit.Log
	executor          executor.Executor
	registry          *executor.Registry
	extensionServices []types.Service
	rules             []*rule.Rule
	table             permission.Table
	runner            shell.Runner
	secrets           *secret.Resolver
	events            *event.Service
	processor         *processor.Service
	meta              *meta.Service
	metaFsOptions     []storage.Option
	fs                afs.Service
	now               clock.Func
	newID             idgen.Func
	logger            *slog.Logger
	closers           []io.Closer
}

func (s *Service) init(ctx context.Context) (err error) {
	if err = s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.config.Tracing.Enabled {
		if err = tracing.Init(s.config.Tracing.Service, s.config.Tracing.Version, s.config.Tracing.OutputFile); err != nil {
			s.logger.Warn("tracing_init_failed", "error", err)
		}
	}
	if err = s.ensureStores(); err != nil {
		return err
	}
	if err = s.ensureEvents(); err != nil {
		return err
	}
	s.ensureExecutor()

	options, err := s.engineOptions(ctx)
	if err != nil {
		return err
	}
	if s.config.Execution.Workers > 0 {
		if s.processor, err = s.newProcessor(); err != nil {
			return err
		}
		options = append(options, approval.WithDispatcher(s.processor))
	}
	if s.engine, err = approval.New(options...); err != nil {
		return err
	}
	return nil
}

func (s *Service) engineOptions(ctx context.Context) ([]approval.Option, error) {
	ttl, err := s.config.Approval.TTLTable()
	if err != nil {
		return nil, err
	}
	grants, err := s.config.Approval.GrantList()
	if err != nil {
		return nil, err
	}
	table := permission.DefaultTable()
	if file := s.config.Classification.File; file != "" {
		if table, err = s.meta.Classifications(ctx, file); err != nil {
			return nil, err
		}
	}
	s.table = table
	classifier, err := permission.NewClassifier(table, permission.WithStrict(s.config.Approval.Strict))
	if err != nil {
		return nil, err
	}
	rules := s.rules
	if file := s.config.Rules.File; file != "" {
		set, err := s.meta.Rules(ctx, file)
		if err != nil {
			return nil, err
		}
		rules = append(set.Rules, rules...)
	}
	ret := []approval.Option{
		approval.WithRequestDAO(s.requests),
		approval.WithAuditLog(s.audit),
		approval.WithClassifier(classifier),
		approval.WithRules(rules...),
		approval.WithTTL(ttl),
		approval.WithExecutor(s.executor),
		approval.WithAuditRetries(s.config.Audit.Retries, s.config.Audit.RetryDelay),
		approval.WithLogger(s.logger),
	}
	if len(grants) > 0 {
		ret = append(ret, approval.WithGrants(grants...))
	}
	if sensitive := s.config.Approval.Sensitive; len(sensitive) > 0 {
		ret = append(ret, approval.WithSensitiveKinds(sensitive...))
	}
	if s.events != nil {
		publisher, err := event.PublisherOf[request.OperationRequest](s.events)
		if err != nil {
			return nil, err
		}
		ret = append(ret, approval.WithPublisher(publisher))
	}
	if s.now != nil {
		ret = append(ret, approval.WithClock(s.now))
	}
	if s.newID != nil {
		ret = append(ret, approval.WithIDGenerator(s.newID))
	}
	return ret, nil
}

func (s *Service) ensureStores() error {
	if s.requests == nil {
		switch s.config.Store.Vendor {
		case StoreFS:
			requests, err := fs_request.New(url.Join(s.config.Store.BaseURL, "requests"), fs_request.WithFS(s.fs), fs_request.WithLogger(s.logger))
			if err != nil {
				return err
			}
			s.requests = requests
		case StoreSQLite:
			requests, err := sql_request.New(s.config.Store.DSN)
			if err != nil {
				return err
			}
			s.requests = requests
			s.closers = append(s.closers, requests)
		default:
			s.requests = mem_request.New()
		}
	}
	if s.audit == nil {
		switch s.config.AuditVendor() {
		case StoreFS:
			log, err := afs_audit.New(url.Join(s.config.auditBaseURL(), "audit"), afs_audit.WithFS(s.fs), afs_audit.WithLogger(s.logger))
			if err != nil {
				return err
			}
			s.audit = log
		case StoreSQLite:
			log, err := sql_audit.New(s.config.auditDSN())
			if err != nil {
				return err
			}
			s.audit = log
			s.closers = append(s.closers, log)
		default:
			s.audit = mem_audit.New()
		}
	}
	return nil
}

func (s *Service) ensureEvents() (err error) {
	switch messaging.Vendor(s.config.Events.Vendor) {
	case EventsNone:
		return nil
	case messaging.VendorFS:
		baseURL := s.config.Events.BaseURL
		s.events, err = event.New(messaging.VendorFS,
			event.WithFS(s.fs),
			event.WithLogger(s.logger),
			event.WithNewFsQueueConfig(func(name string) fs.Config {
				config := fs.DefaultConfig()
				config.BaseURL = url.Join(baseURL, name)
				return config
			}))
	default:
		s.events, err = event.New(messaging.VendorMemory,
			event.WithLogger(s.logger),
			event.WithNewMemoryQueueConfig(memoryQueueConfig))
	}
	return err
}

// memoryQueueConfig drops notifications nobody drains; the dispatch queue
// keeps blocking so approved work is never lost.
func memoryQueueConfig(name string) memory.Config {
	config := memory.DefaultConfig()
	config.DropWhenFull = name != dispatchQueue
	return config
}

func (s *Service) ensureExecutor() {
	if s.executor != nil {
		return
	}
	if s.secrets == nil {
		s.secrets = secret.New()
	}
	if s.runner == nil {
		s.runner = shell.New(s.secrets.SSHConfig)
	}
	baseURL := s.config.Workspace.BaseURL
	services := []types.Service{
		workspace.New(baseURL, workspace.WithFS(s.fs)),
		patch.New(baseURL, patch.WithFS(s.fs), patch.WithLogger(s.logger)),
		exec.New(s.runner),
		git.New(s.runner, func(ctx context.Context, reference string) (string, error) {
			return s.secrets.Text(ctx, secret.Reference(reference))
		}),
		vscode.New(s.runner, s.config.Workspace.VSCodeBinary),
	}
	s.registry = executor.New(
		executor.WithLogger(s.logger),
		executor.WithServices(append(services, s.extensionServices...)...),
	)
	s.executor = s.registry
}

func (s *Service) newProcessor() (*processor.Service, error) {
	var queue messaging.Queue[processor.Task]
	if s.events != nil {
		var err error
		if queue, err = event.QueueOf[processor.Task](s.events, dispatchQueue); err != nil {
			return nil, err
		}
	} else {
		queue = memory.NewQueue[processor.Task](memory.DefaultConfig())
	}
	config := processor.DefaultConfig()
	config.WorkerCount = s.config.Execution.Workers
	config.Retry.MaxRetries = s.config.Execution.MaxRetries
	if s.config.Execution.RetryDelay > 0 {
		config.Retry.Delay = s.config.Execution.RetryDelay
	}
	return processor.New(
		processor.WithConfig(config),
		processor.WithMessageQueue(queue),
		processor.WithLogger(s.logger),
		processor.WithHandler(s.dispatch),
	)
}

// dispatch runs a queued execution; storage failures are retried by the pool.
func (s *Service) dispatch(ctx context.Context, requestID string) error {
	_, err := s.engine.Execute(ctx, requestID)
	if err == nil {
		return nil
	}
	if approval.Kind(err) == approval.KindStorageUnavailable {
		return processor.Transient(err)
	}
	return err
}

// Approval returns the approval engine.
func (s *Service) Approval() *approval.Engine {
	return s.engine
}

// Audit returns the audit log.
func (s *Service) Audit() audit.Log {
	return s.audit
}

// Registry returns the executor registry, nil when a custom executor was supplied.
func (s *Service) Registry() *executor.Registry {
	return s.registry
}

// Classifications returns the effective classification table.
func (s *Service) Classifications() permission.Table {
	return s.table
}

// Config returns the effective configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Listen delivers every request notification to handler until Shutdown.
func (s *Service) Listen(handler func(*approval.Event)) error {
	if s.events == nil {
		return fmt.Errorf("events are disabled")
	}
	return event.SetListenerOf[request.OperationRequest](s.events, handler)
}

// Start recovers interrupted requests and starts the dispatch pool.
func (s *Service) Start(ctx context.Context) (*approval.Recovery, error) {
	if s.processor != nil {
		if err := s.processor.Start(ctx); err != nil {
			return nil, err
		}
	}
	return s.engine.Recover(ctx)
}

// Report renders the system.report template.
func (s *Service) Report(ctx context.Context) (string, error) {
	pending, err := s.engine.ListPending(ctx)
	if err != nil {
		return "", err
	}
	return template.Render(template.SystemReport, template.ReportContext(pending, s.engine.Rules(), s.currentTime()))
}

// Analysis renders the request.analysis template for a request.
func (s *Service) Analysis(ctx context.Context, id string) (string, error) {
	req, err := s.engine.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return template.Render(template.RequestAnalysis, template.RequestContext(req))
}

// Summary renders the audit.summary template over records matching filters.
func (s *Service) Summary(ctx context.Context, filters ...audit.Filter) (string, error) {
	records, err := s.audit.List(ctx, filters...)
	if err != nil {
		return "", audit.Unavailable(err)
	}
	return template.Render(template.AuditSummary, template.SummaryContext(audit.Summarize(records)))
}

func (s *Service) currentTime() time.Time {
	if s.now != nil {
		return s.now()
	}
	return clock.System()
}

// Shutdown stops the pool and listeners and closes the stores.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.processor != nil {
		s.processor.Shutdown()
	}
	if s.events != nil {
		s.events.Close()
	}
	var errs []error
	for _, closer := range s.closers {
		errs = append(errs, closer.Close())
	}
	if s.config.Tracing.Enabled {
		errs = append(errs, tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// New creates a service.
func New(ctx context.Context, options ...Option) (*Service, error) {
	ret := &Service{logger: slog.Default()}
	for _, option := range options {
		option(ret)
	}
	if ret.config == nil {
		ret.config = DefaultConfig()
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	ret.meta = meta.New(ret.fs, meta.WithFsOptions(ret.metaFsOptions...))
	if err := ret.init(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}
