package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/service/action/shell"
)

func TestInput_Target(t *testing.T) {
	testCases := []struct {
		host   string
		expect string
	}{
		{host: "", expect: shell.LocalURL},
		{host: "localhost", expect: shell.LocalURL},
		{host: "build01", expect: "ssh://build01/"},
		{host: "ssh://build02:2222/", expect: "ssh://build02:2222/"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.host, func(t *testing.T) {
			input := &Input{Host: testCase.host}
			assert.Equal(t, testCase.expect, input.Target().URL)
		})
	}
}

func TestService_Execute(t *testing.T) {
	no := false
	testCases := []struct {
		description string
		input       *Input
		script      map[string]*shell.Command
		expectRun   []string
		expectErr   error
		status      int
	}{
		{
			description: "runs all",
			input:       &Input{Command: "uname", Commands: []string{"uptime"}, Workdir: "/srv"},
			expectRun:   []string{"uname", "uptime"},
		},
		{
			description: "aborts on failure",
			input:       &Input{Commands: []string{"false", "echo after"}},
			script:      map[string]*shell.Command{"false": {Status: 1, Stderr: "nope"}},
			expectRun:   []string{"false"},
			expectErr:   ErrCommandFailed,
			status:      1,
		},
		{
			description: "continues when asked",
			input:       &Input{Commands: []string{"false", "echo after"}, AbortOnError: &no},
			script:      map[string]*shell.Command{"false": {Status: 1}},
			expectRun:   []string{"false", "echo after"},
		},
		{
			description: "no command",
			input:       &Input{},
			expectErr:   ErrNoCommand,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			recorder := shell.NewRecorder()
			for k, v := range testCase.script {
				recorder.Script[k] = v
			}
			output := &Output{}
			err := New(recorder).Execute(context.Background(), testCase.input, output)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, testCase.expectRun, recorder.Commands())
			assert.Equal(t, testCase.status, output.Status)
			for _, request := range recorder.Requests {
				assert.Equal(t, testCase.input.Workdir, request.Workdir)
			}
		})
	}
}
