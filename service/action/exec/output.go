package exec

import (
	"fmt"

	"github.com/viant/warden/service/action/shell"
)

// Output collects command results.
type Output struct {
	Host     string           `json:"host"`
	Commands []*shell.Command `json:"commands,omitempty"`
	Stdout   string           `json:"stdout,omitempty"`
	Stderr   string           `json:"stderr,omitempty"`
	Status   int              `json:"status"`
}

func (o *Output) Summary() string {
	return fmt.Sprintf("ran %d command(s) on %s, status %d", len(o.Commands), o.Host, o.Status)
}
