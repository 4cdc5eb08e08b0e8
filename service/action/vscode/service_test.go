package vscode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/service/action/shell"
)

func TestService_Open(t *testing.T) {
	testCases := []struct {
		description string
		input       *OpenInput
		expect      string
	}{
		{description: "plain", input: &OpenInput{Path: "/src/app"}, expect: "code '/src/app'"},
		{description: "new window", input: &OpenInput{Path: "/src/app", NewWindow: true}, expect: "code --new-window '/src/app'"},
		{description: "goto", input: &OpenInput{Path: "/src/app", Goto: "main.go:10"}, expect: "code '/src/app' --goto 'main.go:10'"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			recorder := shell.NewRecorder()
			output := &OpenOutput{}
			require.NoError(t, New(recorder, "").Open(context.Background(), testCase.input, output))
			assert.Equal(t, []string{testCase.expect}, recorder.Commands())
			assert.Equal(t, "opened /src/app", output.Summary())
		})
	}
}

func TestService_OpenFailure(t *testing.T) {
	recorder := shell.NewRecorder()
	recorder.Script["code '/x'"] = &shell.Command{Status: 127, Stderr: "code: not found"}
	err := New(recorder, "").Open(context.Background(), &OpenInput{Path: "/x"}, &OpenOutput{})
	assert.ErrorIs(t, err, ErrLaunch)
	assert.Error(t, New(recorder, "").Open(context.Background(), &OpenInput{}, &OpenOutput{}))
}
