package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/tracing"
)

// Retry policy types.
const (
	RetryNone        = "none"
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
)

var (
	// ErrShutdown is returned by Submit once the pool has been shut down.
	ErrShutdown = errors.New("processor is shut down")
	// ErrNoHandler is returned by New without a handler.
	ErrNoHandler = errors.New("handler is required")
)

// Task identifies a request whose execution has been dispatched.
type Task struct {
	RequestID   string    `json:"requestId" yaml:"requestId"`
	Attempts    int       `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	SubmittedAt time.Time `json:"submittedAt" yaml:"submittedAt"`
}

// Handler runs the execution of a single request.
type Handler func(ctx context.Context, requestID string) error

// RetryPolicy controls redelivery of tasks whose handler returned a transient error.
type RetryPolicy struct {
	Type       string        `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	MaxRetries int           `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" mapstructure:"maxRetries"`
	Delay      time.Duration `json:"delay,omitempty" yaml:"delay,omitempty" mapstructure:"delay"`
	Multiplier float64       `json:"multiplier,omitempty" yaml:"multiplier,omitempty" mapstructure:"multiplier"`
	MaxDelay   time.Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty" mapstructure:"maxDelay"`
}

// Config represents dispatch pool configuration
type Config struct {
	// WorkerCount is the number of workers processing tasks
	WorkerCount int `json:"workerCount" yaml:"workerCount" mapstructure:"workerCount"`

	// Retry applies to transient handler errors only.
	Retry RetryPolicy `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 2,
		Retry: RetryPolicy{
			Type:       RetryExponential,
			MaxRetries: 3,
			Delay:      500 * time.Millisecond,
			Multiplier: 2,
			MaxDelay:   10 * time.Second,
		},
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. A handler returning any other error is not retried.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Service dispatches request executions to a pool of workers.
type Service struct {
	config  Config
	queue   messaging.Queue[Task]
	handler Handler
	logger  *slog.Logger

	workers  []*worker
	workerWg sync.WaitGroup
	retryWg  sync.WaitGroup
	mux      sync.Mutex
	closed   bool
	done     chan struct{}
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// shouldRetry returns (retry?, delay)
func (p RetryPolicy) shouldRetry(attempts int) (bool, time.Duration) {
	if strings.ToLower(p.Type) == RetryNone || attempts >= p.MaxRetries {
		return false, 0
	}
	switch strings.ToLower(p.Type) {
	case RetryExponential:
		mult := p.Multiplier
		if mult <= 1 {
			mult = 2
		}
		delay := float64(p.Delay) * math.Pow(mult, float64(attempts))
		if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
			delay = float64(p.MaxDelay)
		}
		return true, time.Duration(delay)
	default:
		return true, p.Delay
	}
}

// New creates a dispatch pool.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.handler == nil {
		return nil, ErrNoHandler
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = 1
	}
	return s, nil
}

// Start launches the workers; they stop when ctx is done or on Shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return ErrShutdown
	}
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// Submit queues the execution of requestID.
func (s *Service) Submit(ctx context.Context, requestID string) error {
	s.mux.Lock()
	closed := s.closed
	s.mux.Unlock()
	if closed {
		return ErrShutdown
	}
	return s.queue.Publish(ctx, &Task{RequestID: requestID, SubmittedAt: time.Now()})
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.service.logger.Warn("dispatch_consume_failed", "worker", w.id, "error", err)
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.process(w.ctx, msg); pErr != nil {
			w.service.logger.Error("dispatch_failed", "worker", w.id, "error", pErr)
		}
	}
}

func (s *Service) process(ctx context.Context, msg messaging.Message[Task]) (err error) {
	task := msg.T()
	ctx, span := tracing.StartSpan(ctx, "processor.dispatch", tracing.KindConsumer)
	span.WithAttributes(map[string]string{"request.id": task.RequestID})
	defer func() { tracing.EndSpan(span, err) }()

	hErr := s.handler(ctx, task.RequestID)
	if hErr == nil {
		return msg.Ack()
	}
	if !IsTransient(hErr) {
		s.logger.Warn("dispatch_handler_failed", "id", task.RequestID, "error", hErr)
		return msg.Ack()
	}
	retry, delay := s.config.Retry.shouldRetry(task.Attempts)
	if !retry {
		_ = msg.Ack()
		return fmt.Errorf("giving up on %s after %d attempts: %w", task.RequestID, task.Attempts+1, hErr)
	}
	next := Task{RequestID: task.RequestID, Attempts: task.Attempts + 1, SubmittedAt: time.Now()}
	s.logger.Info("dispatch_retry_scheduled", "id", task.RequestID, "attempt", next.Attempts, "delay", delay)
	s.retryWg.Add(1)
	go func() {
		defer s.retryWg.Done()
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}
		if pErr := s.queue.Publish(context.Background(), &next); pErr != nil {
			s.logger.Error("dispatch_retry_publish_failed", "id", next.RequestID, "error", pErr)
		}
	}()
	return msg.Ack()
}

// Shutdown stops the workers and pending retries.
func (s *Service) Shutdown() {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	workers := s.workers
	s.mux.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
	s.retryWg.Wait()
}
