package fs

import (
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
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
)

// Service implements a filesystem request table, one JSON document per request.
type Service struct {
	basePath string
	fs       afs.Service
	logger   *slog.Logger
	mu       sync.RWMutex
}

var _ dao.Service[string, request.OperationRequest] = (*Service)(nil)

// Option customises the fs request table.
type Option func(s *Service)

// WithFS sets the storage service.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithLogger sets the logger used for unreadable documents.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Save persists a request.
func (s *Service) Save(ctx context.Context, req *request.OperationRequest) error {
	if req == nil {
		return dao.ErrNilEntity
	}
	if req.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.requestPath(req.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save request to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a request or dao.ErrNotFound.
func (s *Service) Load(ctx context.Context, id string) (*request.OperationRequest, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	filePath := s.requestPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if request exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	var ret request.OperationRequest
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %v: %w", id, err)
	}
	return &ret, nil
}

// Delete removes a request document.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.requestPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if request exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete request file: %w", err)
	}
	return nil
}

// List returns requests matching parameters (see criteria.Match).
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*request.OperationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list request files: %w", err)
	}
	var ret []*request.OperationRequest
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Warn("request_read_failed", "url", object.URL(), "error", err)
			continue
		}
		var req request.OperationRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn("request_decode_failed", "url", object.URL(), "error", err)
			continue
		}
		if criteria.Match(&req, parameters) {
			ret = append(ret, &req)
		}
	}
	return ret, nil
}

func (s *Service) requestPath(id string) string {
	return url.Join(s.basePath, path.Base(id)+".json")
}

// New creates a filesystem request table rooted at basePath.
func New(basePath string, options ...Option) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	ret := &Service{fs: afs.New(), logger: slog.Default()}
	for _, opt := range options {
		opt(ret)
	}
	ctx := context.Background()
	basePath = url.Normalize(basePath, file.Scheme)
	exists, _ := ret.fs.Exists(ctx, basePath)
	if !exists {
		if err := ret.fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	ret.basePath = basePath
	return ret, nil
}
