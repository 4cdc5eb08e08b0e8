package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/model/request"
)

func TestParseParameters(t *testing.T) {
	testCases := []struct {
		description string
		args        []string
		expect      map[string]interface{}
		expectErr   bool
	}{
		{
			description: "scalars",
			args:        []string{"path=a.txt", "overwrite=true", "count=3", "ratio=0.5"},
			expect:      map[string]interface{}{"path": "a.txt", "overwrite": true, "count": 3, "ratio": 0.5},
		},
		{
			description: "value with equals sign",
			args:        []string{"command=a=b"},
			expect:      map[string]interface{}{"command": "a=b"},
		},
		{
			description: "structured value kept as text",
			args:        []string{"content=[1, 2]"},
			expect:      map[string]interface{}{"content": "[1, 2]"},
		},
		{
			description: "missing separator",
			args:        []string{"path"},
			expectErr:   true,
		},
		{
			description: "empty name",
			args:        []string{"=x"},
			expectErr:   true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actual, err := parseParameters(testCase.args)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expect, actual.Map())
		})
	}
}

func run(t *testing.T, args ...string) (string, error) {
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	configFile := filepath.Join(dir, "config.yaml")
	config := strings.Join([]string{
		"store:",
		"  vendor: fs",
		"  baseURL: " + filepath.Join(dir, "state"),
		"workspace:",
		"  baseURL: " + workspace,
		"approval:",
		"  approvers:",
		"    Alice: admin",
	}, "\n")
	require.NoError(t, os.WriteFile(configFile, []byte(config), 0o644))

	out, err := run(t, "-c", configFile, "submit", "write_file", "path=notes.txt", "content=hello", "--requester", "agent")
	require.NoError(t, err)
	submitted := &request.OperationRequest{}
	require.NoError(t, json.Unmarshal([]byte(out), submitted))
	assert.Equal(t, request.StatusPending, submitted.Status)

	out, err = run(t, "-c", configFile, "pending", "--kind", "write_file")
	require.NoError(t, err)
	assert.Contains(t, out, submitted.ID)

	_, err = run(t, "-c", configFile, "decide", submitted.ID, "approve", "--by", "mallory")
	assert.Error(t, err)

	out, err = run(t, "-c", configFile, "decide", submitted.ID, "approve", "--by", "Alice", "--reason", "ok")
	require.NoError(t, err)
	decided := &request.OperationRequest{}
	require.NoError(t, json.Unmarshal([]byte(out), decided))
	assert.Equal(t, request.StatusExecuted, decided.Status)
	data, err := os.ReadFile(filepath.Join(workspace, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err = run(t, "-c", configFile, "verify", submitted.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "replayed status executed")

	out, err = run(t, "-c", configFile, "export", "--format", "csv", "--request-id", submitted.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "awaiting_decision")

	out, err = run(t, "-c", configFile, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "write_file")
}
