package exec

import (
	"strings"

	"github.com/viant/warden/service/action/shell"
)

// Input describes commands to run on a host.
type Input struct {
	Host         string            `json:"host,omitempty" description:"host name or URL, localhost by default"`
	Credentials  string            `json:"credentials,omitempty" description:"scy ssh credentials name for remote hosts"`
	Workdir      string            `json:"workdir,omitempty" description:"directory the commands start in"`
	Env          map[string]string `json:"env,omitempty" description:"environment variables"`
	Command      string            `json:"command,omitempty" description:"single command to execute"`
	Commands     []string          `json:"commands,omitempty" description:"commands to execute in order"`
	TimeoutMs    int               `json:"timeoutMs,omitempty" description:"per command timeout"`
	AbortOnError *bool             `json:"abortOnError,omitempty" description:"stop at the first non zero status, true by default"`
}

// Target returns the shell host.
func (i *Input) Target() *shell.Host {
	host := strings.TrimSpace(i.Host)
	switch {
	case host == "" || host == "localhost":
		host = shell.LocalURL
	case !strings.Contains(host, "://"):
		host = "ssh://" + host + "/"
	}
	return &shell.Host{URL: host, Credentials: i.Credentials}
}

// All returns Command followed by Commands.
func (i *Input) All() []string {
	var ret []string
	if strings.TrimSpace(i.Command) != "" {
		ret = append(ret, i.Command)
	}
	for _, command := range i.Commands {
		if strings.TrimSpace(command) != "" {
			ret = append(ret, command)
		}
	}
	return ret
}

func (i *Input) abortOnError() bool {
	return i.AbortOnError == nil || *i.AbortOnError
}
