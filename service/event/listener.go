package event

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Listener drains a publisher's queue into a handler until stopped.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger *slog.Logger) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop cancels consumption and waits for the running handler to return.
func (l *Listener[T]) Stop() {
	l.cancel()
	<-l.done
}

func (l *Listener[T]) Start() {
	go func() {
		defer close(l.done)
		for {
			event, err := l.publisher.Consume(l.ctx)
			if l.ctx.Err() != nil {
				return
			}
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					l.logger.Warn("event_consume_failed", "error", err)
				}
				select {
				case <-l.ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			if event != nil {
				l.handler(event)
			}
		}
	}()
}
