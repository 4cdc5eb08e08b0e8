package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/warden/service/messaging"
)

// ErrProcessed is returned when a message is acknowledged twice.
var ErrProcessed = errors.New("message already processed")

// ErrQueueFull is returned by Publish on a full DropWhenFull queue.
var ErrQueueFull = errors.New("queue full")

// Config for memory queue implementation
type Config struct {
	MaxRetries  int           `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`
	RetryDelay  time.Duration `json:"retryDelay" yaml:"retryDelay" mapstructure:"retryDelay"`
	DeadLetter  bool          `json:"deadLetter" yaml:"deadLetter" mapstructure:"deadLetter"`
	QueueBuffer int           `json:"queueBuffer" yaml:"queueBuffer" mapstructure:"queueBuffer"`
	// DropWhenFull makes Publish fail fast instead of waiting for a consumer.
	DropWhenFull bool `json:"dropWhenFull" yaml:"dropWhenFull" mapstructure:"dropWhenFull"`
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Message is an in-memory queue message.
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	retries   int
	processed bool
	createdAt time.Time
	err       error
	mu        sync.Mutex
}

// ID returns the message id.
func (m *Message[T]) ID() string { return m.id }

// Retries returns how many times the message was redelivered.
func (m *Message[T]) Retries() int { return m.retries }

// Err returns the last Nack error.
func (m *Message[T]) Err() error { return m.err }

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	return nil
}

// Nack redelivers the message after RetryDelay, or dead letters it once
// MaxRetries is exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.err = err
	next := &Message[T]{id: m.id, payload: m.payload, queue: m.queue, retries: m.retries + 1, createdAt: time.Now(), err: err}
	if next.retries > m.queue.config.MaxRetries {
		m.queue.deadLetter(next)
		return nil
	}
	time.AfterFunc(m.queue.config.RetryDelay, func() {
		select {
		case m.queue.messages <- next:
		default:
			m.queue.deadLetter(next)
		}
	})
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages chan *Message[T]
	dlq      []*Message[T]
	config   Config
	dlqMu    sync.Mutex
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish adds a new item to the queue; it blocks while the buffer is full
// unless DropWhenFull is set.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{id: uuid.New().String(), payload: *t, queue: q, createdAt: time.Now()}
	if q.config.DropWhenFull {
		select {
		case q.messages <- msg:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue[T]) deadLetter(msg *Message[T]) {
	if !q.config.DeadLetter {
		return
	}
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, msg)
	q.dlqMu.Unlock()
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns payloads of dead lettered messages.
func (q *Queue[T]) DeadLetters() []*T {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	ret := make([]*T, 0, len(q.dlq))
	for _, msg := range q.dlq {
		ret = append(ret, msg.T())
	}
	return ret
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
