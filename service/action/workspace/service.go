package workspace

import (
	"context"
	"reflect"

	"github.com/viant/afs"
	"github.com/viant/warden/model/types"
)

// Name of the workspace action service.
const Name = "workspace"

// Service exposes file operations confined to a workspace root.
type Service struct {
	root         *Root
	contextLines int
}

// Option customises the service.
type Option func(*Service)

// WithFS sets the file service.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.root = NewRoot(fs, s.root.URL())
	}
}

// WithContextLines sets the number of diff context lines.
func WithContextLines(lines int) Option {
	return func(s *Service) {
		s.contextLines = lines
	}
}

// New creates a workspace service rooted at baseURL.
func New(baseURL string, options ...Option) *Service {
	ret := &Service{root: NewRoot(nil, baseURL), contextLines: 3}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Root returns the workspace root.
func (s *Service) Root() *Root {
	return s.root
}

func (s *Service) Name() string { return Name }

func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "read_file",
			Description: "Reads a workspace file.",
			Input:       reflect.TypeOf(&ReadInput{}),
			Output:      reflect.TypeOf(&ReadOutput{}),
		},
		{
			Name:        "write_file",
			Description: "Writes a workspace file; replacing an existing file requires overwrite.",
			Input:       reflect.TypeOf(&WriteInput{}),
			Output:      reflect.TypeOf(&WriteOutput{}),
		},
		{
			Name:        "delete_file",
			Description: "Deletes a workspace file.",
			Input:       reflect.TypeOf(&DeleteInput{}),
			Output:      reflect.TypeOf(&DeleteOutput{}),
		},
		{
			Name:        "list_directory",
			Description: "Lists a workspace directory.",
			Input:       reflect.TypeOf(&ListInput{}),
			Output:      reflect.TypeOf(&ListOutput{}),
		},
	}
}

func (s *Service) Method(name string) (types.Executable, error) {
	switch name {
	case "read_file":
		return s.read, nil
	case "write_file":
		return s.write, nil
	case "delete_file":
		return s.delete, nil
	case "list_directory":
		return s.list, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) read(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*ReadInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*ReadOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Read(ctx, input, output)
}

func (s *Service) write(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*WriteInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*WriteOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Write(ctx, input, output)
}

func (s *Service) delete(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*DeleteInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*DeleteOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Delete(ctx, input, output)
}

func (s *Service) list(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*ListInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*ListOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.List(ctx, input, output)
}
