package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/warden/service/messaging"
)

// ErrProcessed is returned when a message is acknowledged twice.
var ErrProcessed = errors.New("message already processed")

// MessageState represents the state of a message in the filesystem queue
type MessageState string

const (
	MessageStatePending    MessageState = "pending"
	MessageStateProcessing MessageState = "processing"
	MessageStateCompleted  MessageState = "completed"
	MessageStateFailed     MessageState = "failed"
)

// Message is a queue message persisted as one JSON file.
type Message[T any] struct {
	ID        string       `json:"id"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	queue     *Queue[T]
	name      string
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack acknowledges that the message was processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.settle(context.Background(), m)
}

// Nack returns the message to the failed directory for retry, or to the dead
// letter directory once MaxRetries is exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.State = MessageStateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	return m.queue.settle(context.Background(), m)
}

// Config holds configuration for filesystem queue
type Config struct {
	BaseURL       string        `json:"baseURL" yaml:"baseURL" mapstructure:"baseURL"`
	MaxRetries    int           `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`
	RetryDelay    time.Duration `json:"retryDelay" yaml:"retryDelay" mapstructure:"retryDelay"`
	PollInterval  time.Duration `json:"pollInterval" yaml:"pollInterval" mapstructure:"pollInterval"`
	KeepCompleted bool          `json:"keepCompleted" yaml:"keepCompleted" mapstructure:"keepCompleted"`
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:      "/tmp/warden/queue",
		MaxRetries:   3,
		RetryDelay:   time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// Queue is a filesystem backed messaging.Queue; messages survive restarts.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingURL    string
	processingURL string
	completedURL  string
	failedURL     string
	dlqURL        string
	mu            sync.Mutex
}

// NewQueue creates a queue under config.BaseURL
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	baseURL := url.Normalize(config.BaseURL, file.Scheme)
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingURL:    url.Join(baseURL, "pending"),
		processingURL: url.Join(baseURL, "processing"),
		completedURL:  url.Join(baseURL, "completed"),
		failedURL:     url.Join(baseURL, "failed"),
		dlqURL:        url.Join(baseURL, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingURL, q.processingURL, q.completedURL, q.failedURL, q.dlqURL} {
		if exists, _ := fs.Exists(ctx, dir); exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return q, nil
}

// Publish adds a new message to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{ID: uuid.New().String(), Data: *t, State: MessageStatePending, CreatedAt: now, UpdatedAt: now}
	name := fmt.Sprintf("%020d-%s.json", now.UnixNano(), message.ID)
	return q.write(ctx, url.Join(q.pendingURL, name), message)
}

// Consume polls until a message is available or ctx is done. Failed messages
// become eligible again once RetryDelay has passed.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		message, err := q.next(ctx)
		if err != nil || message != nil {
			return message, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

func (q *Queue[T]) next(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	failed, err := q.list(ctx, q.failedURL)
	if err != nil {
		return nil, err
	}
	for _, object := range failed {
		message, err := q.read(ctx, object.URL())
		if err != nil {
			_ = q.fs.Move(ctx, object.URL(), url.Join(q.dlqURL, "invalid-"+object.Name()))
			continue
		}
		if time.Since(message.UpdatedAt) < q.config.RetryDelay {
			continue
		}
		return q.claim(ctx, object, message)
	}
	pending, err := q.list(ctx, q.pendingURL)
	if err != nil {
		return nil, err
	}
	for _, object := range pending {
		message, err := q.read(ctx, object.URL())
		if err != nil {
			_ = q.fs.Move(ctx, object.URL(), url.Join(q.dlqURL, "invalid-"+object.Name()))
			continue
		}
		return q.claim(ctx, object, message)
	}
	return nil, nil
}

func (q *Queue[T]) claim(ctx context.Context, object storage.Object, message *Message[T]) (*Message[T], error) {
	message.State = MessageStateProcessing
	message.UpdatedAt = time.Now()
	message.queue = q
	message.name = object.Name()
	if err := q.write(ctx, url.Join(q.processingURL, message.name), message); err != nil {
		return nil, fmt.Errorf("failed to move message to processing: %w", err)
	}
	if err := q.fs.Delete(ctx, object.URL()); err != nil {
		return nil, fmt.Errorf("failed to delete claimed message: %w", err)
	}
	return message, nil
}

func (q *Queue[T]) settle(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var dest string
	switch {
	case m.State == MessageStateCompleted && q.config.KeepCompleted:
		dest = q.completedURL
	case m.State == MessageStateFailed && m.Retries > q.config.MaxRetries:
		dest = q.dlqURL
	case m.State == MessageStateFailed:
		dest = q.failedURL
	}
	if dest != "" {
		if err := q.write(ctx, url.Join(dest, m.name), m); err != nil {
			return err
		}
	}
	processing := url.Join(q.processingURL, m.name)
	if exists, _ := q.fs.Exists(ctx, processing); exists {
		if err := q.fs.Delete(ctx, processing); err != nil {
			return fmt.Errorf("failed to delete processed message: %w", err)
		}
	}
	return nil
}

// Recover returns messages left in processing by a crashed consumer to pending.
func (q *Queue[T]) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	objects, err := q.list(ctx, q.processingURL)
	if err != nil {
		return 0, err
	}
	for _, object := range objects {
		if err = q.fs.Move(ctx, object.URL(), url.Join(q.pendingURL, object.Name())); err != nil {
			return 0, err
		}
	}
	return len(objects), nil
}

// Size returns the number of pending messages.
func (q *Queue[T]) Size(ctx context.Context) (int, error) {
	objects, err := q.list(ctx, q.pendingURL)
	return len(objects), err
}

// DLQSize returns the number of dead lettered messages.
func (q *Queue[T]) DLQSize(ctx context.Context) (int, error) {
	objects, err := q.list(ctx, q.dlqURL)
	return len(objects), err
}

// list returns message files ordered by name, which starts with the publish time.
func (q *Queue[T]) list(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var ret []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return path.Base(ret[i].Name()) < path.Base(ret[j].Name()) })
	return ret, nil
}

func (q *Queue[T]) write(ctx context.Context, URL string, message *Message[T]) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data))
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	message := &Message[T]{}
	if err = json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return message, nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
