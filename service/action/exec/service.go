package exec

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/viant/warden/model/types"
	"github.com/viant/warden/service/action/shell"
)

// Name of the exec action service.
const Name = "exec"

// ErrNoCommand is returned when the input carries no command.
var ErrNoCommand = errors.New("no command to execute")

// ErrCommandFailed is returned when a command exits with a non zero status.
var ErrCommandFailed = errors.New("command failed")

// Service executes shell commands locally or over ssh.
type Service struct {
	runner shell.Runner
}

// New creates the service
func New(runner shell.Runner) *Service {
	return &Service{runner: runner}
}

func (s *Service) Name() string { return Name }

func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name: "remote_exec",
			Description: `Executes one or more shell commands on a host.
Each entry in commands runs as an independent invocation in workdir;
remote hosts authenticate with scy credentials named by "credentials".`,
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		},
	}
}

func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "remote_exec":
		return s.execute, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) execute(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.Execute(ctx, input, output)
}

// Execute runs input commands; a failing command makes the operation fail.
func (s *Service) Execute(ctx context.Context, input *Input, output *Output) error {
	commands := input.All()
	if len(commands) == 0 {
		return ErrNoCommand
	}
	host := input.Target()
	output.Host = host.URL
	timeout := time.Duration(input.TimeoutMs) * time.Millisecond
	var stdout, stderr []string
	var failed *shell.Command
	for _, command := range commands {
		result, err := s.runner.Run(ctx, &shell.Request{Host: host, Workdir: input.Workdir, Env: input.Env, Command: command, Timeout: timeout})
		if err != nil {
			return err
		}
		output.Commands = append(output.Commands, result)
		output.Status = result.Status
		if result.Output != "" {
			stdout = append(stdout, result.Output)
		}
		if result.Stderr != "" {
			stderr = append(stderr, result.Stderr)
		}
		if result.Status != 0 && failed == nil {
			failed = result
			if input.abortOnError() {
				break
			}
		}
	}
	output.Stdout = strings.Join(stdout, "\n")
	output.Stderr = strings.Join(stderr, "\n")
	if failed != nil && input.abortOnError() {
		return fmt.Errorf("%w: %q exited with %d: %s", ErrCommandFailed, failed.Input, failed.Status, failed.Stderr)
	}
	return nil
}
