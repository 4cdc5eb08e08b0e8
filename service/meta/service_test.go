package meta

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/warden/model/permission"
)

func TestService_Load(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	env := map[string]string{"RISK": "low", "KIND": "open_project"}
	srv := New(fs, WithEnv(func(key string) string { return env[key] }))

	resources := map[string]string{
		"mem://localhost/meta/rules.yaml": "- {id: ide, kind: ${env.KIND}, maxRisk: ${env.RISK}}\n",
		"mem://localhost/meta/bad.yaml":   "- {id: ide, kind: x, maxRisk: extreme}\n",
		"mem://localhost/meta/table.yaml": `classifications:
  - kind: deploy
    permission: admin
    risk: high
    escalations:
      - when: env == prod
        risk: critical
`,
		"mem://localhost/meta/list.yaml":    "- {kind: ping, permission: read, risk: low}\n",
		"mem://localhost/meta/dup.yaml":     "- {kind: ping, permission: read, risk: low}\n- {kind: ping, permission: read, risk: low}\n",
		"mem://localhost/meta/config.json":  `{"name": "${env.KIND}"}`,
		"mem://localhost/meta/config.yaml":  "name: ${env.KIND}\n",
	}
	for URL, content := range resources {
		require.NoError(t, fs.Upload(ctx, URL, 0o644, strings.NewReader(content)))
	}

	t.Run("rules", func(t *testing.T) {
		set, err := srv.Rules(ctx, "mem://localhost/meta/rules.yaml")
		require.NoError(t, err)
		require.Len(t, set.Rules, 1)
		assert.Equal(t, "open_project", set.Rules[0].Kind)
		assert.Equal(t, permission.Low, set.Rules[0].MaxRisk)

		_, err = srv.Rules(ctx, "mem://localhost/meta/bad.yaml")
		assert.Error(t, err)
		_, err = srv.Rules(ctx, "mem://localhost/meta/missing.yaml")
		assert.Error(t, err)
	})

	t.Run("classifications", func(t *testing.T) {
		var testCases = []struct {
			description string
			URL         string
			expectKind  string
			expectErr   bool
		}{
			{description: "document", URL: "mem://localhost/meta/table.yaml", expectKind: "deploy"},
			{description: "bare list", URL: "mem://localhost/meta/list.yaml", expectKind: "ping"},
			{description: "duplicate kind", URL: "mem://localhost/meta/dup.yaml", expectErr: true},
		}
		for _, testCase := range testCases {
			t.Run(testCase.description, func(t *testing.T) {
				table, err := srv.Classifications(ctx, testCase.URL)
				if testCase.expectErr {
					assert.Error(t, err)
					return
				}
				require.NoError(t, err)
				require.Len(t, table, 1)
				assert.Equal(t, testCase.expectKind, table[0].Kind)
			})
		}
	})

	t.Run("generic", func(t *testing.T) {
		for _, URL := range []string{"mem://localhost/meta/config.json", "mem://localhost/meta/config.yaml"} {
			target := struct {
				Name string `json:"name" yaml:"name"`
			}{}
			require.NoError(t, srv.Load(ctx, URL, &target))
			assert.Equal(t, "open_project", target.Name)
		}
	})
}
