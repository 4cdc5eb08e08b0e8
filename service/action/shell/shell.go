// Package shell runs commands locally or over ssh with gosh, keeping one
// session per host and environment.
package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs/url"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds a single command.
const DefaultTimeout = time.Minute

// LocalURL addresses the local host.
const LocalURL = "bash://localhost/"

// Host is a command target; Credentials names scy ssh credentials.
type Host struct {
	URL         string `json:"url,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

// IsLocal reports whether the host is the local machine.
func (h *Host) IsLocal() bool {
	if h == nil || h.URL == "" {
		return true
	}
	host := url.Host(h.URL)
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host == "" || host == "localhost" || host == "127.0.0.1"
}

// Command is the outcome of a single command.
type Command struct {
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Status int    `json:"status"`
}

// Request describes a command to run.
type Request struct {
	Host    *Host
	Workdir string
	Env     map[string]string
	Command string
	Timeout time.Duration
}

// Runner runs commands.
type Runner interface {
	Run(ctx context.Context, request *Request) (*Command, error)
}

// SSHConfigFunc resolves credentials into an ssh client config.
type SSHConfigFunc func(ctx context.Context, credentials string) (*ssh.ClientConfig, error)

// Sessions is a gosh backed Runner.
type Sessions struct {
	sessions  map[string]*gosh.Service
	sshConfig SSHConfigFunc
	mux       sync.Mutex
}

// New creates a runner; sshConfig is required for remote hosts only.
func New(sshConfig SSHConfigFunc) *Sessions {
	return &Sessions{sessions: map[string]*gosh.Service{}, sshConfig: sshConfig}
}

// Run runs request.Command, in request.Workdir when set.
func (s *Sessions) Run(ctx context.Context, request *Request) (*Command, error) {
	session, err := s.session(ctx, request.Host, request.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	command := request.Command
	if request.Workdir != "" {
		command = "cd " + Quote(request.Workdir) + " && " + command
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	started := time.Now()
	stdout, status, err := session.Run(ctx, command, runner.WithTimeout(int(timeout.Milliseconds())))
	if elapsed := time.Since(started); elapsed > timeout && err == nil {
		err = fmt.Errorf("command timed out after %s", elapsed)
	}
	ret := &Command{Input: request.Command, Status: status}
	if status == 0 && err == nil {
		ret.Output = strings.TrimSpace(stdout)
		return ret, nil
	}
	ret.Stderr = strings.TrimSpace(stdout)
	if ret.Stderr == "" && err != nil {
		ret.Stderr = err.Error()
	}
	if ret.Status == 0 {
		ret.Status = -1
	}
	return ret, nil
}

func (s *Sessions) session(ctx context.Context, host *Host, env map[string]string) (*gosh.Service, error) {
	if host == nil {
		host = &Host{URL: LocalURL}
	}
	key := sessionKey(host, env)
	s.mux.Lock()
	defer s.mux.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, nil
	}
	var options []runner.Option
	if len(env) > 0 {
		options = append(options, runner.WithEnvironment(env))
	}
	var session *gosh.Service
	var err error
	if host.IsLocal() {
		session, err = gosh.New(ctx, local.New(options...))
	} else {
		if s.sshConfig == nil {
			return nil, fmt.Errorf("ssh credentials resolver not configured for %s", host.URL)
		}
		var config *ssh.ClientConfig
		if config, err = s.sshConfig(ctx, host.Credentials); err != nil {
			return nil, fmt.Errorf("failed to get SSH config: %w", err)
		}
		address := url.Host(host.URL)
		if !strings.Contains(address, ":") {
			address += ":22"
		}
		session, err = gosh.New(ctx, rssh.New(address, config, options...))
	}
	if err != nil {
		return nil, err
	}
	s.sessions[key] = session
	return session, nil
}

// Close releases all sessions.
func (s *Sessions) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	var errs []string
	for key, session := range s.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", strings.SplitN(key, "|", 2)[0], err))
		}
	}
	s.sessions = map[string]*gosh.Service{}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sessions: %s", strings.Join(errs, "; "))
	}
	return nil
}

func sessionKey(host *Host, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var builder strings.Builder
	builder.WriteString(host.URL)
	for _, k := range keys {
		builder.WriteString("|" + k + "=" + env[k])
	}
	return builder.String()
}

// Quote single-quotes text for a POSIX shell.
func Quote(text string) string {
	return "'" + strings.ReplaceAll(text, "'", `'\''`) + "'"
}
