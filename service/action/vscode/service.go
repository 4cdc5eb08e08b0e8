// Package vscode opens projects in Visual Studio Code through its command
// line launcher.
package vscode

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/warden/model/types"
	"github.com/viant/warden/service/action/shell"
)

// Name of the vscode action service.
const Name = "vscode"

// DefaultBinary is the launcher used when none is configured.
const DefaultBinary = "code"

// ErrLaunch is returned when the launcher exits with a non zero status.
var ErrLaunch = errors.New("vscode launch failed")

// Service launches the editor.
type Service struct {
	runner shell.Runner
	binary string
}

// New creates the service; an empty binary defaults to "code".
func New(runner shell.Runner, binary string) *Service {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Service{runner: runner, binary: binary}
}

type OpenInput struct {
	Path      string `json:"path" required:"true" description:"project directory or file"`
	NewWindow bool   `json:"newWindow,omitempty" description:"force a new window"`
	Goto      string `json:"goto,omitempty" description:"file:line:column to reveal"`
}

type OpenOutput struct {
	Path    string `json:"path"`
	Command string `json:"command"`
}

func (o *OpenOutput) Summary() string {
	return "opened " + o.Path
}

func (s *Service) Name() string { return Name }

func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{Name: "open_project", Description: "Opens a project in VS Code.", Input: reflect.TypeOf(&OpenInput{}), Output: reflect.TypeOf(&OpenOutput{})},
	}
}

func (s *Service) Method(name string) (types.Executable, error) {
	if name != "open_project" {
		return nil, types.NewMethodNotFoundError(name)
	}
	return func(ctx context.Context, in, out interface{}) error {
		input, ok := in.(*OpenInput)
		if !ok {
			return types.NewInvalidInputError(in)
		}
		output, ok := out.(*OpenOutput)
		if !ok {
			return types.NewInvalidOutputError(out)
		}
		return s.Open(ctx, input, output)
	}, nil
}

// Open runs the launcher for input.Path.
func (s *Service) Open(ctx context.Context, input *OpenInput, output *OpenOutput) error {
	if strings.TrimSpace(input.Path) == "" {
		return fmt.Errorf("path is required")
	}
	args := []string{s.binary}
	if input.NewWindow {
		args = append(args, "--new-window")
	}
	args = append(args, shell.Quote(input.Path))
	if input.Goto != "" {
		args = append(args, "--goto", shell.Quote(input.Goto))
	}
	command := strings.Join(args, " ")
	result, err := s.runner.Run(ctx, &shell.Request{Command: command})
	if err != nil {
		return err
	}
	if result.Status != 0 {
		return fmt.Errorf("%w: %s", ErrLaunch, result.Stderr)
	}
	output.Path = input.Path
	output.Command = command
	return nil
}
