package workspace

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// ErrOutsideRoot is returned for paths escaping the workspace root.
var ErrOutsideRoot = errors.New("path outside workspace")

// Root confines relative paths to a base URL.
type Root struct {
	fs       afs.Service
	baseURL  string
	basePath string
}

// FS returns the underlying file service.
func (r *Root) FS() afs.Service {
	return r.fs
}

// URL returns the base URL.
func (r *Root) URL() string {
	return r.baseURL
}

// Resolve maps a workspace path to a URL under the root. Absolute paths are
// accepted when they already point inside the root.
func (r *Root) Resolve(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" || location == "." || location == "/" {
		return r.baseURL, nil
	}
	candidate := path.Clean(location)
	if !path.IsAbs(candidate) {
		candidate = path.Join(r.basePath, candidate)
	}
	if candidate != r.basePath && !strings.HasPrefix(candidate, r.basePath+"/") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, location)
	}
	relative := strings.TrimPrefix(strings.TrimPrefix(candidate, r.basePath), "/")
	if relative == "" {
		return r.baseURL, nil
	}
	return url.Join(r.baseURL, relative), nil
}

// Relative returns URL's path relative to the root.
func (r *Root) Relative(URL string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url.Path(URL), r.basePath), "/")
}

// Exists checks whether a workspace path exists.
func (r *Root) Exists(ctx context.Context, location string) (bool, error) {
	URL, err := r.Resolve(location)
	if err != nil {
		return false, err
	}
	return r.fs.Exists(ctx, URL)
}

// NewRoot creates a root; an empty baseURL defaults to the working directory.
func NewRoot(fs afs.Service, baseURL string) *Root {
	if fs == nil {
		fs = afs.New()
	}
	if baseURL == "" {
		baseURL = "."
	}
	baseURL = strings.TrimRight(url.Normalize(baseURL, file.Scheme), "/")
	basePath := strings.TrimRight(path.Clean(url.Path(baseURL)), "/")
	return &Root{fs: fs, baseURL: baseURL, basePath: basePath}
}
