// Package git drives the git command line to manage branches of a local
// repository.
package git

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/viant/warden/model/types"
	"github.com/viant/warden/service/action/shell"
)

// Name of the git action service.
const Name = "git"

const authEnv = "WARDEN_GIT_AUTH"

var (
	// ErrInvalidBranch is returned for branch names git would reject.
	ErrInvalidBranch = errors.New("invalid branch name")
	// ErrGit is returned when git exits with a non zero status.
	ErrGit = errors.New("git failed")
)

var branchPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// TokenFunc resolves a token reference into the token.
type TokenFunc func(ctx context.Context, reference string) (string, error)

// Service manages git branches.
type Service struct {
	runner shell.Runner
	token  TokenFunc
}

// New creates the service; token may be nil when pushes are unauthenticated.
func New(runner shell.Runner, token TokenFunc) *Service {
	return &Service{runner: runner, token: token}
}

type BranchInput struct {
	Repository string `json:"repository" required:"true" description:"local repository directory"`
	Branch     string `json:"branch" required:"true" description:"branch name"`
	From       string `json:"from,omitempty" description:"start point for create_branch"`
	Force      bool   `json:"force,omitempty" description:"force delete_branch of unmerged branch"`
}

type PushInput struct {
	Repository string `json:"repository" required:"true" description:"local repository directory"`
	Branch     string `json:"branch" required:"true" description:"branch to push"`
	Remote     string `json:"remote,omitempty" description:"remote name, origin by default"`
	Token      string `json:"token,omitempty" description:"scy reference of the access token, never the token itself"`
}

type Output struct {
	Action     string `json:"action"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Output     string `json:"output,omitempty"`
}

func (o *Output) Summary() string {
	return fmt.Sprintf("%s %s in %s", o.Action, o.Branch, o.Repository)
}

func (s *Service) Name() string { return Name }

func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{Name: "create_branch", Description: "Creates a branch.", Input: reflect.TypeOf(&BranchInput{}), Output: reflect.TypeOf(&Output{})},
		{Name: "delete_branch", Description: "Deletes a local branch.", Input: reflect.TypeOf(&BranchInput{}), Output: reflect.TypeOf(&Output{})},
		{Name: "push_branch", Description: "Pushes a branch to a remote.", Input: reflect.TypeOf(&PushInput{}), Output: reflect.TypeOf(&Output{})},
	}
}

func (s *Service) Method(name string) (types.Executable, error) {
	switch name {
	case "create_branch":
		return s.branchMethod(s.CreateBranch), nil
	case "delete_branch":
		return s.branchMethod(s.DeleteBranch), nil
	case "push_branch":
		return s.push, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) branchMethod(fn func(ctx context.Context, input *BranchInput, output *Output) error) types.Executable {
	return func(ctx context.Context, in, out interface{}) error {
		input, ok := in.(*BranchInput)
		if !ok {
			return types.NewInvalidInputError(in)
		}
		output, ok := out.(*Output)
		if !ok {
			return types.NewInvalidOutputError(out)
		}
		return fn(ctx, input, output)
	}
}

func (s *Service) push(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*PushInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	return s.PushBranch(ctx, input, output)
}

// CreateBranch runs git branch.
func (s *Service) CreateBranch(ctx context.Context, input *BranchInput, output *Output) error {
	if err := validate(input.Repository, input.Branch); err != nil {
		return err
	}
	command := "git branch " + shell.Quote(input.Branch)
	if input.From != "" {
		if err := validateBranch(input.From); err != nil {
			return err
		}
		command += " " + shell.Quote(input.From)
	}
	return s.run(ctx, "created", input.Repository, input.Branch, command, nil, output)
}

// DeleteBranch runs git branch -d (or -D when forced).
func (s *Service) DeleteBranch(ctx context.Context, input *BranchInput, output *Output) error {
	if err := validate(input.Repository, input.Branch); err != nil {
		return err
	}
	flag := "-d"
	if input.Force {
		flag = "-D"
	}
	return s.run(ctx, "deleted", input.Repository, input.Branch, "git branch "+flag+" "+shell.Quote(input.Branch), nil, output)
}

// PushBranch runs git push; the token travels in the session environment only.
func (s *Service) PushBranch(ctx context.Context, input *PushInput, output *Output) error {
	if err := validate(input.Repository, input.Branch); err != nil {
		return err
	}
	remote := input.Remote
	if remote == "" {
		remote = "origin"
	}
	if err := validateBranch(remote); err != nil {
		return err
	}
	command := "git push " + shell.Quote(remote) + " " + shell.Quote(input.Branch)
	var env map[string]string
	if input.Token != "" {
		if s.token == nil {
			return fmt.Errorf("token resolver not configured")
		}
		token, err := s.token(ctx, input.Token)
		if err != nil {
			return err
		}
		env = map[string]string{authEnv: base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))}
		command = `git -c http.extraHeader="Authorization: Basic $` + authEnv + `" push ` + shell.Quote(remote) + " " + shell.Quote(input.Branch)
	}
	return s.run(ctx, "pushed", input.Repository, input.Branch, command, env, output)
}

func (s *Service) run(ctx context.Context, action, repository, branch, command string, env map[string]string, output *Output) error {
	result, err := s.runner.Run(ctx, &shell.Request{Workdir: repository, Env: env, Command: command})
	if err != nil {
		return err
	}
	if result.Status != 0 {
		return fmt.Errorf("%w: %s", ErrGit, strings.TrimSpace(result.Stderr))
	}
	output.Action = action
	output.Repository = repository
	output.Branch = branch
	output.Output = result.Output
	return nil
}

func validate(repository, branch string) error {
	if strings.TrimSpace(repository) == "" {
		return fmt.Errorf("repository is required")
	}
	return validateBranch(branch)
}

func validateBranch(name string) error {
	if !branchPattern.MatchString(name) || strings.HasPrefix(name, "-") || strings.Contains(name, "..") || strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	return nil
}
