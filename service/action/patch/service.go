package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/warden/model/types"
	"github.com/viant/warden/service/action/workspace"
)

// Name of the patch action service.
const Name = "patch"

// ErrUnsupportedFormat is returned for text that is neither a unified diff nor an envelope.
var ErrUnsupportedFormat = errors.New("unsupported patch format")

// Service applies patches to a workspace. Every call runs in its own Session
// and is rolled back entirely when any file fails.
type Service struct {
	root   *workspace.Root
	logger *slog.Logger
}

// Option customises the service.
type Option func(*Service)

// WithFS sets the file service.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.root = workspace.NewRoot(fs, s.root.URL())
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a patch service rooted at baseURL.
func New(baseURL string, options ...Option) *Service {
	ret := &Service{root: workspace.NewRoot(nil, baseURL), logger: slog.Default()}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ApplyInput is the apply_patch payload.
type ApplyInput struct {
	Patch string `json:"patch" required:"true" description:"unified diff or '*** Begin Patch' envelope"`
}

// ApplyOutput reports the applied change.
type ApplyOutput struct {
	Format string              `json:"format"`
	Files  []string            `json:"files"`
	Stats  workspace.DiffStats `json:"stats"`
}

func (o *ApplyOutput) Summary() string {
	return fmt.Sprintf("applied %s patch to %s: %s", o.Format, strings.Join(o.Files, ", "), o.Stats)
}

func (s *Service) Name() string { return Name }

func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "apply_patch",
			Description: "Applies a unified diff or a '*** Begin Patch' envelope to the workspace, atomically.",
			Input:       reflect.TypeOf(&ApplyInput{}),
			Output:      reflect.TypeOf(&ApplyOutput{}),
		},
	}
}

func (s *Service) Method(name string) (types.Executable, error) {
	switch name {
	case "apply_patch":
		return s.apply, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) apply(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*ApplyInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*ApplyOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Apply(ctx, input, output)
}

// Apply applies input.Patch; on failure every touched file is restored.
func (s *Service) Apply(ctx context.Context, input *ApplyInput, output *ApplyOutput) error {
	session := NewSession(s.root)
	var err error
	switch {
	case IsEnvelope(input.Patch):
		output.Format = "envelope"
		err = ApplyEnvelope(ctx, session, input.Patch)
	case IsUnified(input.Patch):
		output.Format = "unified"
		err = ApplyUnified(ctx, session, input.Patch)
	default:
		return ErrUnsupportedFormat
	}
	if err != nil {
		if rollbackErr := session.Rollback(ctx); rollbackErr != nil {
			s.logger.Error("patch_rollback_failed", "error", rollbackErr)
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	output.Files = session.Files()
	output.Stats = s.stats(output.Format, input.Patch, len(output.Files))
	session.Commit()
	return nil
}

func (s *Service) stats(format, text string, files int) workspace.DiffStats {
	if format == "unified" {
		return workspace.Stats(text)
	}
	ret := workspace.DiffStats{FilesChanged: files}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "***"):
		case strings.HasPrefix(line, "@@"):
			ret.Hunks++
		case strings.HasPrefix(line, "+"):
			ret.Insertions++
		case strings.HasPrefix(line, "-"):
			ret.Deletions++
		}
	}
	return ret
}
