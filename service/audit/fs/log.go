package fs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/warden/service/audit"
)

const extension = ".jsonl"

// Log stores one JSONL document per request.
type Log struct {
	basePath string
	fs       afs.Service
	logger   *slog.Logger
	mu       sync.RWMutex
}

var _ audit.Log = (*Log)(nil)

// Option customises the fs audit log.
type Option func(l *Log)

// WithFS sets the storage service.
func WithFS(fs afs.Service) Option {
	return func(l *Log) {
		l.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Append links record to the request trail and rewrites the trail document.
func (l *Log) Append(ctx context.Context, record *audit.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	URL := l.trailURL(record.RequestID)
	data, err := l.download(ctx, URL)
	if err != nil {
		return audit.Unavailable(err)
	}
	records, err := decode(data)
	if err != nil {
		return audit.Unavailable(fmt.Errorf("corrupted trail %v: %w", URL, err))
	}
	var last *audit.Record
	if len(records) > 0 {
		last = records[len(records)-1]
	}
	audit.Link(record, last)
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	buffer := bytes.NewBuffer(data)
	buffer.Write(line)
	buffer.WriteByte('\n')
	if err = l.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(buffer.Bytes())); err != nil {
		return audit.Unavailable(fmt.Errorf("failed to write %v: %w", URL, err))
	}
	return nil
}

// Query returns the request trail.
func (l *Log) Query(ctx context.Context, requestID string) ([]*audit.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, err := l.download(ctx, l.trailURL(requestID))
	if err != nil {
		return nil, audit.Unavailable(err)
	}
	ret, err := decode(data)
	if err != nil {
		return nil, audit.Unavailable(err)
	}
	return ret, nil
}

// List scans every trail document.
func (l *Log) List(ctx context.Context, filters ...audit.Filter) ([]*audit.Record, error) {
	query := audit.NewQuery(filters...)
	l.mu.RLock()
	defer l.mu.RUnlock()
	objects, err := l.fs.List(ctx, l.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, audit.Unavailable(fmt.Errorf("failed to list audit trails: %w", err))
	}
	var ret []*audit.Record
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), extension) {
			continue
		}
		if len(query.RequestIDs) > 0 && !containsID(query.RequestIDs, strings.TrimSuffix(object.Name(), extension)) {
			continue
		}
		data, err := l.fs.Download(ctx, object)
		if err != nil {
			return nil, audit.Unavailable(fmt.Errorf("failed to read %v: %w", object.URL(), err))
		}
		records, err := decode(data)
		if err != nil {
			l.logger.Error("audit_trail_corrupted", "url", object.URL(), "error", err)
			return nil, audit.Unavailable(err)
		}
		for _, record := range records {
			if query.Match(record) {
				ret = append(ret, record)
			}
		}
	}
	return query.Apply(ret), nil
}

func (l *Log) download(ctx context.Context, URL string) ([]byte, error) {
	exists, err := l.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check %v: %w", URL, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := l.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", URL, err)
	}
	return data, nil
}

func (l *Log) trailURL(requestID string) string {
	return url.Join(l.basePath, path.Base(requestID)+extension)
}

func decode(data []byte) ([]*audit.Record, error) {
	var ret []*audit.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		record := &audit.Record{}
		if err := json.Unmarshal(line, record); err != nil {
			return nil, fmt.Errorf("invalid audit record: %w", err)
		}
		ret = append(ret, record)
	}
	return ret, scanner.Err()
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// New creates an fs audit log rooted at basePath.
func New(basePath string, options ...Option) (*Log, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	ret := &Log{fs: afs.New(), logger: slog.Default()}
	for _, opt := range options {
		opt(ret)
	}
	ctx := context.Background()
	basePath = url.Normalize(basePath, file.Scheme)
	if exists, _ := ret.fs.Exists(ctx, basePath); !exists {
		if err := ret.fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	ret.basePath = basePath
	return ret, nil
}
