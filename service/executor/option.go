package executor

import (
	"log/slog"

	"github.com/viant/warden/model/types"
)

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for execution events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithServices registers action services.
func WithServices(services ...types.Service) Option {
	return func(r *Registry) {
		for _, service := range services {
			r.Register(service)
		}
	}
}

// WithListener sets a callback invoked after every action call.
func WithListener(listener Listener) Option {
	return func(r *Registry) {
		r.listener = listener
	}
}

// WithSummaryLimit caps the length of generated summaries.
func WithSummaryLimit(limit int) Option {
	return func(r *Registry) {
		r.summaryLimit = limit
	}
}
