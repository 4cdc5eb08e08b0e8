package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs/file"
)

// ErrExists is returned when write_file would replace a file without overwrite.
var ErrExists = errors.New("file already exists")

type ReadInput struct {
	Path string `json:"path" required:"true" description:"workspace relative file path"`
}

type ReadOutput struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Size        int    `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

func (o *ReadOutput) Summary() string {
	return fmt.Sprintf("read %s (%d bytes)", o.Path, o.Size)
}

type WriteInput struct {
	Path      string `json:"path" required:"true" description:"workspace relative file path"`
	Content   string `json:"content" description:"file content"`
	Overwrite bool   `json:"overwrite,omitempty" description:"replace an existing file"`
}

type WriteOutput struct {
	Path    string    `json:"path"`
	Created bool      `json:"created"`
	Size    int       `json:"size"`
	Diff    string    `json:"diff,omitempty"`
	Stats   DiffStats `json:"stats"`
}

func (o *WriteOutput) Summary() string {
	if o.Created {
		return fmt.Sprintf("created %s (%d bytes)", o.Path, o.Size)
	}
	return fmt.Sprintf("updated %s: %s", o.Path, o.Stats)
}

type DeleteInput struct {
	Path string `json:"path" required:"true" description:"workspace relative file path"`
}

type DeleteOutput struct {
	Path string `json:"path"`
}

func (o *DeleteOutput) Summary() string {
	return "deleted " + o.Path
}

// Read reads a workspace file.
func (s *Service) Read(ctx context.Context, input *ReadInput, output *ReadOutput) error {
	URL, err := s.root.Resolve(input.Path)
	if err != nil {
		return err
	}
	data, err := s.root.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input.Path, err)
	}
	output.Path = s.root.Relative(URL)
	output.Content = string(data)
	output.Size = len(data)
	output.ContentType = ContentType(URL)
	return nil
}

// Write writes a workspace file and reports the change as a unified diff.
func (s *Service) Write(ctx context.Context, input *WriteInput, output *WriteOutput) error {
	URL, err := s.root.Resolve(input.Path)
	if err != nil {
		return err
	}
	output.Path = s.root.Relative(URL)
	output.Size = len(input.Content)
	exists, err := s.root.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", input.Path, err)
	}
	var previous []byte
	if exists {
		if !input.Overwrite {
			return fmt.Errorf("%w: %s", ErrExists, input.Path)
		}
		if previous, err = s.root.fs.DownloadWithURL(ctx, URL); err != nil {
			return fmt.Errorf("failed to read %s: %w", input.Path, err)
		}
	}
	content := []byte(input.Content)
	output.Created = !exists
	diff, err := GenerateDiff(previous, content, output.Path, s.contextLines)
	if err == nil {
		output.Diff = diff.Patch
		output.Stats = diff.Stats
	} else if !errors.Is(err, ErrNoChange) {
		return err
	} else if exists {
		return nil
	}
	if err = s.root.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", input.Path, err)
	}
	return nil
}

// Delete removes a workspace file.
func (s *Service) Delete(ctx context.Context, input *DeleteInput, output *DeleteOutput) error {
	URL, err := s.root.Resolve(input.Path)
	if err != nil {
		return err
	}
	if URL == s.root.URL() {
		return fmt.Errorf("%w: cannot delete workspace root", ErrOutsideRoot)
	}
	object, err := s.root.fs.Object(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", input.Path, err)
	}
	if object.IsDir() {
		return fmt.Errorf("%s is a directory", input.Path)
	}
	if err = s.root.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete %s: %w", input.Path, err)
	}
	output.Path = s.root.Relative(URL)
	return nil
}
