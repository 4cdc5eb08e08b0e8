package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/afs/file"
	"github.com/viant/warden/service/action/workspace"
)

// ErrCommitted is returned when a committed session is used.
var ErrCommitted = errors.New("session already committed")

type change struct {
	URL     string
	backup  []byte
	existed bool
}

// Session applies file changes under a workspace root and can undo them.
type Session struct {
	root      *workspace.Root
	changes   []*change
	committed bool
	mux       sync.Mutex
}

// NewSession creates a session over root.
func NewSession(root *workspace.Root) *Session {
	return &Session{root: root}
}

func (s *Session) snapshot(ctx context.Context, URL string) (*change, error) {
	fs := s.root.FS()
	exists, err := fs.Exists(ctx, URL)
	if err != nil {
		return nil, err
	}
	ret := &change{URL: URL, existed: exists}
	if exists {
		if ret.backup, err = fs.DownloadWithURL(ctx, URL); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Read returns the current content of a workspace path.
func (s *Session) Read(ctx context.Context, location string) ([]byte, error) {
	URL, err := s.root.Resolve(location)
	if err != nil {
		return nil, err
	}
	return s.root.FS().DownloadWithURL(ctx, URL)
}

// Add creates a new file; it fails when the file exists.
func (s *Session) Add(ctx context.Context, location string, data []byte) error {
	return s.write(ctx, location, data, false)
}

// Update replaces an existing file.
func (s *Session) Update(ctx context.Context, location string, data []byte) error {
	return s.write(ctx, location, data, true)
}

func (s *Session) write(ctx context.Context, location string, data []byte, mustExist bool) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.committed {
		return ErrCommitted
	}
	URL, err := s.root.Resolve(location)
	if err != nil {
		return err
	}
	snapshot, err := s.snapshot(ctx, URL)
	if err != nil {
		return err
	}
	if mustExist && !snapshot.existed {
		return fmt.Errorf("update: %s does not exist", location)
	}
	if !mustExist && snapshot.existed {
		return fmt.Errorf("add: %s already exists", location)
	}
	if err = s.root.FS().Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return err
	}
	s.changes = append(s.changes, snapshot)
	return nil
}

// Delete removes a file.
func (s *Session) Delete(ctx context.Context, location string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.committed {
		return ErrCommitted
	}
	URL, err := s.root.Resolve(location)
	if err != nil {
		return err
	}
	snapshot, err := s.snapshot(ctx, URL)
	if err != nil {
		return err
	}
	if !snapshot.existed {
		return fmt.Errorf("delete: %s does not exist", location)
	}
	if err = s.root.FS().Delete(ctx, URL); err != nil {
		return err
	}
	s.changes = append(s.changes, snapshot)
	return nil
}

// Move renames a file, writing data to the destination.
func (s *Session) Move(ctx context.Context, source, dest string, data []byte) error {
	if err := s.Add(ctx, dest, data); err != nil {
		return err
	}
	return s.Delete(ctx, source)
}

// Files returns workspace relative paths touched by the session.
func (s *Session) Files() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	var ret []string
	seen := map[string]bool{}
	for _, change := range s.changes {
		relative := s.root.Relative(change.URL)
		if !seen[relative] {
			seen[relative] = true
			ret = append(ret, relative)
		}
	}
	return ret
}

// Rollback restores every touched file in reverse order.
func (s *Session) Rollback(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.committed {
		return ErrCommitted
	}
	fs := s.root.FS()
	var errs []error
	for i := len(s.changes) - 1; i >= 0; i-- {
		change := s.changes[i]
		if change.existed {
			if err := fs.Upload(ctx, change.URL, file.DefaultFileOsMode, bytes.NewReader(change.backup)); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if ok, _ := fs.Exists(ctx, change.URL); ok {
			if err := fs.Delete(ctx, change.URL); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.changes = nil
	return errors.Join(errs...)
}

// Commit makes the changes final; the session cannot be used afterwards.
func (s *Session) Commit() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.committed = true
	for _, change := range s.changes {
		change.backup = nil
	}
}
