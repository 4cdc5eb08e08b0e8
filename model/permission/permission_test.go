package permission

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/model/constraint"
	"gopkg.in/yaml.v3"
)

type values map[string]interface{}

func (v values) Lookup(name string) (interface{}, bool) {
	ret, ok := v[name]
	return ret, ok
}

func TestSatisfies(t *testing.T) {
	var testCases = []struct {
		granted  Level
		required Level
		expect   bool
	}{
		{Read, Read, true},
		{Write, Read, true},
		{Root, Admin, true},
		{Execute, Admin, false},
		{Read, Root, false},
		{Level(0), Read, false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.granted.String()+">="+testCase.required.String(), func(t *testing.T) {
			assert.Equal(t, testCase.expect, Satisfies(testCase.granted, testCase.required))
		})
	}
}

func TestLevelAndRisk_Text(t *testing.T) {
	type holder struct {
		Level Level `json:"level" yaml:"level"`
		Risk  Risk  `json:"risk" yaml:"risk"`
	}
	data, err := json.Marshal(holder{Level: Admin, Risk: Critical})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"admin","risk":"critical"}`, string(data))

	var h holder
	require.NoError(t, yaml.Unmarshal([]byte("level: Execute\nrisk: low\n"), &h))
	assert.Equal(t, holder{Level: Execute, Risk: Low}, h)

	assert.Error(t, yaml.Unmarshal([]byte("risk: extreme\n"), &h))
	assert.True(t, Low.AtMost(Medium))
	assert.False(t, Critical.AtMost(High))
}

func TestClassifier_Classify(t *testing.T) {
	classifier, err := NewClassifier(DefaultTable())
	require.NoError(t, err)

	var testCases = []struct {
		description string
		kind        string
		params      values
		permission  Level
		risk        Risk
	}{
		{description: "low risk kind", kind: "open_project", params: values{"path": "/src/app"}, permission: Execute, risk: Low},
		{description: "base risk", kind: "write_file", params: values{"path": "/tmp/a.txt"}, permission: Write, risk: Medium},
		{description: "escalated by flag", kind: "write_file", params: values{"path": "/tmp/a.txt", "overwrite": "true"}, permission: Write, risk: High},
		{description: "highest escalation wins", kind: "write_file", params: values{"path": "/etc/hosts", "overwrite": true}, permission: Write, risk: Critical},
		{description: "nested system path", kind: "write_file", params: values{"path": "/etc/ssh/sshd_config"}, permission: Write, risk: Critical},
		{description: "remote host", kind: "remote_exec", params: values{"host": "ssh://build:22"}, permission: Execute, risk: Critical},
		{description: "remote url with path", kind: "remote_exec", params: values{"host": "ssh://prod.example.com:22/"}, permission: Execute, risk: Critical},
		{description: "bare host name", kind: "remote_exec", params: values{"host": "prod.example.com"}, permission: Execute, risk: Critical},
		{description: "ip address", kind: "remote_exec", params: values{"host": "10.0.0.5"}, permission: Execute, risk: Critical},
		{description: "explicit localhost", kind: "remote_exec", params: values{"host": "localhost"}, permission: Execute, risk: High},
		{description: "empty host", kind: "remote_exec", params: values{"host": ""}, permission: Execute, risk: High},
		{description: "local host", kind: "remote_exec", params: values{}, permission: Execute, risk: High},
		{description: "unknown defaults to medium", kind: "launch_rocket", params: values{}, permission: Execute, risk: Medium},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			permission, risk, err := classifier.Classify(testCase.kind, testCase.params)
			require.NoError(t, err)
			assert.Equal(t, testCase.permission, permission)
			assert.Equal(t, testCase.risk, risk)
		})
	}
}

func TestClassifier_Strict(t *testing.T) {
	classifier, err := NewClassifier(DefaultTable(), WithStrict(true))
	require.NoError(t, err)
	_, _, err = classifier.Classify("launch_rocket", values{})
	assert.True(t, errors.Is(err, ErrUnknownOperation))

	lenient, err := NewClassifier(nil, WithDefaults(Admin, Low))
	require.NoError(t, err)
	permission, risk, err := lenient.Classify("anything", values{})
	require.NoError(t, err)
	assert.Equal(t, Admin, permission)
	assert.Equal(t, Medium, risk, "defaults never fall below medium")
}

func TestTable_Validate(t *testing.T) {
	assert.NoError(t, DefaultTable().Validate())
	assert.Error(t, Table{{Kind: "a", Permission: Read, Risk: Low}, {Kind: "a", Permission: Read, Risk: Low}}.Validate())
	assert.Error(t, Table{{Kind: "a", Permission: Read}}.Validate())
	assert.Error(t, Table{{Kind: "a", Permission: Read, Risk: Low, Escalations: []*Escalation{{When: &constraint.Constraint{Param: "x"}, Risk: High}}}}.Validate())

	var table Table
	require.NoError(t, yaml.Unmarshal([]byte(`
- kind: deploy
  permission: admin
  risk: high
  escalations:
    - when: env == prod
      risk: critical
`), &table))
	require.NoError(t, table.Validate())
	classifier, err := NewClassifier(table)
	require.NoError(t, err)
	_, risk, err := classifier.Classify("deploy", values{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, Critical, risk)
}

func TestTTL(t *testing.T) {
	ttl := DefaultTTL()
	assert.NoError(t, ttl.Validate())
	assert.Equal(t, 24*time.Hour, ttl.For(Low))
	assert.Equal(t, time.Hour, ttl.For(Critical))
	assert.Equal(t, time.Hour, TTL{}.For(Medium))
	assert.Error(t, TTL{Low: time.Hour, High: 2 * time.Hour}.Validate())
	assert.Error(t, TTL{Low: -time.Hour}.Validate())
}
