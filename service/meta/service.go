// Package meta loads YAML and JSON resources (rules, classification tables)
// through afs, expanding ${env.KEY} references before decoding.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/rule"
	"gopkg.in/yaml.v3"
)

// Service loads resources.
type Service struct {
	fs        afs.Service
	fsOptions []storage.Option
	getenv    func(key string) string
}

// Option customises a Service.
type Option func(s *Service)

// WithEnv sets the environment lookup used for ${env.KEY}.
func WithEnv(getenv func(key string) string) Option {
	return func(s *Service) {
		s.getenv = getenv
	}
}

// WithFsOptions sets storage options, for example an embed.FS.
func WithFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.fsOptions = options
	}
}

// Download returns the content of URL with environment references expanded.
func (s *Service) Download(ctx context.Context, URL string) ([]byte, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL, s.fsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to download %v: %w", URL, err)
	}
	return []byte(expandEnv(string(data), s.getenv)), nil
}

// Load decodes URL into target; .json resources are decoded as JSON, anything else as YAML.
func (s *Service) Load(ctx context.Context, URL string, target interface{}) error {
	data, err := s.Download(ctx, URL)
	if err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(URL), ".json") {
		err = json.Unmarshal(data, target)
	} else {
		err = yaml.Unmarshal(data, target)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %v: %w", URL, err)
	}
	return nil
}

// Rules loads and validates an auto-approval rule set.
func (s *Service) Rules(ctx context.Context, URL string) (*rule.Set, error) {
	data, err := s.Download(ctx, URL)
	if err != nil {
		return nil, err
	}
	ret, err := rule.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", URL, err)
	}
	return ret, nil
}

// Classifications loads a classification table, either a bare list or a
// document with a classifications key.
func (s *Service) Classifications(ctx context.Context, URL string) (permission.Table, error) {
	data, err := s.Download(ctx, URL)
	if err != nil {
		return nil, err
	}
	node := yaml.Node{}
	if err = yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", URL, err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("classification table %v was empty", URL)
	}
	var ret permission.Table
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		err = root.Decode(&ret)
	} else {
		doc := struct {
			Classifications permission.Table `yaml:"classifications"`
		}{}
		err = root.Decode(&doc)
		ret = doc.Classifications
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", URL, err)
	}
	return ret, nil
}

// New creates a meta service; a nil fs defaults to afs.New().
func New(fs afs.Service, options ...Option) *Service {
	if fs == nil {
		fs = afs.New()
	}
	ret := &Service{fs: fs, getenv: os.Getenv}
	for _, option := range options {
		option(ret)
	}
	return ret
}
