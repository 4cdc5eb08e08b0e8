package processor

import (
	"log/slog"

	"github.com/viant/warden/service/messaging"
)

// Option configures the dispatch pool.
type Option func(*Service)

// WithMessageQueue sets the message queue implementation
func WithMessageQueue(queue messaging.Queue[Task]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithHandler sets the function executing a dispatched request
func WithHandler(handler Handler) Option {
	return func(s *Service) {
		s.handler = handler
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithRetry sets the transient error retry policy
func WithRetry(policy RetryPolicy) Option {
	return func(s *Service) {
		s.config.Retry = policy
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
