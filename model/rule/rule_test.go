package rule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/warden/model/constraint"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
)

func enabled(v bool) *bool { return &v }

func TestEvaluate(t *testing.T) {
	monday := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rules := []*Rule{
		{ID: "late", Priority: 5, Kind: "*", MaxRisk: permission.Critical},
		{ID: "ide", Kind: "open_project", MaxRisk: permission.Low},
		{ID: "tmp-writes", Kind: "write_*", MaxRisk: permission.Medium,
			Constraints: []*constraint.Constraint{constraint.Glob("path", "/tmp/*")}},
		{ID: "off", Kind: "*", MaxRisk: permission.Critical, Enabled: enabled(false)},
		{ID: "night", Kind: "delete_file", MaxRisk: permission.High,
			Window: &Window{StartHour: 22, EndHour: 6}},
	}
	var testCases = []struct {
		description string
		req         *request.OperationRequest
		rules       []*Rule
		at          time.Time
		expect      string
	}{
		{
			description: "exact kind within risk",
			req:         &request.OperationRequest{Kind: "open_project", RiskLevel: permission.Low},
			rules:       rules[1:2],
			at:          monday,
			expect:      "ide",
		},
		{
			description: "risk above ceiling",
			req:         &request.OperationRequest{Kind: "open_project", RiskLevel: permission.Medium},
			rules:       rules[1:2],
			at:          monday,
		},
		{
			description: "priority wins over declaration order",
			req:         &request.OperationRequest{Kind: "open_project", RiskLevel: permission.Low},
			rules:       rules,
			at:          monday,
			expect:      "ide",
		},
		{
			description: "glob kind with constraint",
			req: &request.OperationRequest{Kind: "write_file", RiskLevel: permission.Medium,
				Parameters: request.NewParameters("path", "/tmp/a.txt")},
			rules:  rules[2:3],
			at:     monday,
			expect: "tmp-writes",
		},
		{
			description: "constraint not satisfied",
			req: &request.OperationRequest{Kind: "write_file", RiskLevel: permission.Medium,
				Parameters: request.NewParameters("path", "/etc/hosts")},
			rules: rules[2:3],
			at:    monday,
		},
		{
			description: "missing parameter never matches",
			req:         &request.OperationRequest{Kind: "write_file", RiskLevel: permission.Medium},
			rules:       rules[2:3],
			at:          monday,
		},
		{
			description: "disabled rule skipped",
			req:         &request.OperationRequest{Kind: "anything", RiskLevel: permission.Low},
			rules:       rules[3:4],
			at:          monday,
		},
		{
			description: "outside window",
			req:         &request.OperationRequest{Kind: "delete_file", RiskLevel: permission.High},
			rules:       rules[4:5],
			at:          monday,
		},
		{
			description: "inside overnight window",
			req:         &request.OperationRequest{Kind: "delete_file", RiskLevel: permission.High},
			rules:       rules[4:5],
			at:          monday.Add(13 * time.Hour),
			expect:      "night",
		},
		{
			description: "fallback to lower priority rule",
			req:         &request.OperationRequest{Kind: "push_branch", RiskLevel: permission.Critical},
			rules:       rules,
			at:          monday,
			expect:      "late",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			match := Evaluate(testCase.req, testCase.rules, testCase.at)
			if testCase.expect == "" {
				assert.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			assert.Equal(t, testCase.expect, match.Rule.ID)
			assert.Equal(t, request.AutoRulePrefix+testCase.expect, match.DecidedBy())
			assert.NotEmpty(t, match.Reason)
		})
	}
}

func TestOrdered_Stable(t *testing.T) {
	rules := []*Rule{{ID: "a", Priority: 1}, {ID: "b"}, {ID: "c", Priority: 1}, {ID: "d"}}
	var ids []string
	for _, r := range Ordered(rules) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Equal(t, "a", rules[0].ID)
}

func TestWindow_Contains(t *testing.T) {
	saturday := time.Date(2024, 1, 6, 9, 30, 0, 0, time.UTC)
	var testCases = []struct {
		description string
		window      *Window
		at          time.Time
		expect      bool
	}{
		{description: "nil window", window: nil, at: saturday, expect: true},
		{description: "business hours", window: &Window{StartHour: 9, EndHour: 17}, at: saturday, expect: true},
		{description: "end exclusive", window: &Window{StartHour: 9, EndHour: 17}, at: saturday.Add(8 * time.Hour), expect: false},
		{description: "weekday only", window: &Window{StartHour: 0, EndHour: 0, Days: []string{"mon", "Tuesday"}}, at: saturday, expect: false},
		{description: "weekend", window: &Window{Days: []string{"sat", "sun"}}, at: saturday, expect: true},
		{description: "overnight early", window: &Window{StartHour: 22, EndHour: 6}, at: saturday.Add(-5 * time.Hour), expect: true},
		{description: "overnight day", window: &Window{StartHour: 22, EndHour: 6}, at: saturday, expect: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			assert.Equal(t, testCase.expect, testCase.window.Contains(testCase.at))
		})
	}
}

func TestParse(t *testing.T) {
	var testCases = []struct {
		description string
		yaml        string
		expectIDs   []string
		expectErr   bool
	}{
		{
			description: "set with expressions",
			yaml: `rules:
  - id: ide
    kind: open_project
    maxRisk: low
  - id: tmp
    kind: write_file
    maxRisk: medium
    priority: 2
    constraints:
      - path ~ /tmp/*
      - size in 0..1024
    window:
      startHour: 8
      endHour: 18
      days: [mon, tue, wed, thu, fri]
`,
			expectIDs: []string{"ide", "tmp"},
		},
		{
			description: "bare list",
			yaml:        "- id: a\n  kind: '*'\n  maxRisk: high\n",
			expectIDs:   []string{"a"},
		},
		{description: "empty", yaml: "", expectIDs: nil},
		{description: "missing id", yaml: "- kind: x\n  maxRisk: low\n", expectErr: true},
		{description: "duplicate id", yaml: "- {id: a, maxRisk: low}\n- {id: a, maxRisk: low}\n", expectErr: true},
		{description: "bad risk", yaml: "- {id: a, maxRisk: extreme}\n", expectErr: true},
		{description: "missing risk", yaml: "- {id: a, kind: x}\n", expectErr: true},
		{description: "bad constraint", yaml: "- {id: a, maxRisk: low, constraints: ['path ==']}\n", expectErr: true},
		{description: "bad day", yaml: "- {id: a, maxRisk: low, window: {days: [funday]}}\n", expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			set, err := Parse([]byte(testCase.yaml))
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var ids []string
			for _, r := range set.Rules {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, testCase.expectIDs, ids)
		})
	}
}

func TestLoad(t *testing.T) {
	location := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(location, []byte("- {id: ide, kind: open_project, maxRisk: low}\n"), 0o644))
	set, err := Load(context.Background(), afs.New(), location)
	require.NoError(t, err)
	require.Len(t, set.Rules, 1)
	assert.True(t, set.Rules[0].IsEnabled())

	_, err = Load(context.Background(), afs.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
