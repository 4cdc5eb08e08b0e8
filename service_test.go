package warden_test

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "github.com/viant/afs/embed"
	"github.com/viant/warden"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/action/shell"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
)

//go:embed testdata/*
var embedFS embed.FS

func newConfig(t *testing.T) *warden.Config {
	config := warden.DefaultConfig()
	config.Rules.File = "embed:///testdata/rules.yaml"
	config.Classification.File = "embed:///testdata/classification.yaml"
	config.Workspace.BaseURL = t.TempDir()
	return config
}

func newService(t *testing.T, config *warden.Config, options ...warden.Option) *warden.Service {
	options = append([]warden.Option{
		warden.WithConfig(config),
		warden.WithMetaFsOptions(&embedFS),
	}, options...)
	srv, err := warden.New(context.Background(), options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func TestService_Submit(t *testing.T) {
	testCases := []struct {
		description  string
		kind         string
		params       request.Parameters
		expectStatus request.Status
		expectRule   string
		expectCmds   []string
	}{
		{
			description:  "open project auto approved",
			kind:         "open_project",
			params:       request.NewParameters("path", "/src/app"),
			expectStatus: request.StatusExecuted,
			expectRule:   "ide",
			expectCmds:   []string{"code '/src/app'"},
		},
		{
			description:  "docs read auto approved",
			kind:         "read_file",
			params:       request.NewParameters("path", "docs/readme.md"),
			expectStatus: request.StatusExecuted,
			expectRule:   "docs",
		},
		{
			description:  "read outside docs awaits decision",
			kind:         "read_file",
			params:       request.NewParameters("path", "src/main.go"),
			expectStatus: request.StatusPending,
		},
		{
			description:  "write awaits decision",
			kind:         "write_file",
			params:       request.NewParameters("path", "notes.txt", "content", "hi"),
			expectStatus: request.StatusPending,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config := newConfig(t)
			require.NoError(t, os.MkdirAll(filepath.Join(config.Workspace.BaseURL, "docs"), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(config.Workspace.BaseURL, "docs", "readme.md"), []byte("# docs"), 0o644))
			recorder := shell.NewRecorder()
			srv := newService(t, config, warden.WithRunner(recorder))

			actual, err := srv.Approval().Submit(context.Background(), testCase.kind, testCase.params, "agent")
			require.NoError(t, err)
			assert.Equal(t, testCase.expectStatus, actual.Status)
			assert.Equal(t, testCase.expectCmds, recorder.Commands())
			if testCase.expectRule == "" {
				assert.Nil(t, actual.Decision)
				return
			}
			require.NotNil(t, actual.Decision)
			assert.Equal(t, request.AutoRulePrefix+testCase.expectRule, actual.Decision.DecidedBy)
		})
	}
}

func TestService_Strict(t *testing.T) {
	config := newConfig(t)
	config.Approval.Strict = true
	srv := newService(t, config)

	_, err := srv.Approval().Submit(context.Background(), "delete_branch", request.NewParameters("branch", "main"), "agent")
	assert.ErrorIs(t, err, approval.ErrUnknownOperation)
	assert.Equal(t, approval.KindUnknownOperation, approval.Kind(err))
}

func TestService_Dispatch(t *testing.T) {
	ctx := context.Background()
	config := newConfig(t)
	config.Execution.Workers = 2
	srv := newService(t, config)
	_, err := srv.Start(ctx)
	require.NoError(t, err)

	engine := srv.Approval()
	req, err := engine.Submit(ctx, "write_file", request.NewParameters("path", "notes.txt", "content", "hello"), "agent")
	require.NoError(t, err)
	decided, err := engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "fine")
	require.NoError(t, err)
	assert.Equal(t, request.StatusApproved, decided.Status)

	actual, err := approval.WaitForOutcome(ctx, engine, req.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, request.StatusExecuted, actual.Status)
	data, err := os.ReadFile(filepath.Join(config.Workspace.BaseURL, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestService_Restart(t *testing.T) {
	testCases := []struct {
		description string
		configure   func(config *warden.Config, dir string)
	}{
		{
			description: "fs",
			configure: func(config *warden.Config, dir string) {
				config.Store = warden.StoreConfig{Vendor: warden.StoreFS, BaseURL: dir}
			},
		},
		{
			description: "sqlite",
			configure: func(config *warden.Config, dir string) {
				config.Store = warden.StoreConfig{Vendor: warden.StoreSQLite, DSN: filepath.Join(dir, "warden.db")}
			},
		},
		{
			description: "sqlite requests with fs audit",
			configure: func(config *warden.Config, dir string) {
				config.Store = warden.StoreConfig{Vendor: warden.StoreSQLite, DSN: filepath.Join(dir, "warden.db")}
				config.Audit.Vendor = warden.StoreFS
				config.Audit.BaseURL = dir
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			config := newConfig(t)
			testCase.configure(config, t.TempDir())

			first, err := warden.New(ctx, warden.WithConfig(config), warden.WithMetaFsOptions(&embedFS))
			require.NoError(t, err)
			req, err := first.Approval().Submit(ctx, "write_file", request.NewParameters("path", "a.txt", "content", "a"), "agent")
			require.NoError(t, err)
			require.NoError(t, first.Shutdown(ctx))

			second := newService(t, config)
			recovery, err := second.Start(ctx)
			require.NoError(t, err)
			assert.Empty(t, recovery.Failed)

			actual, err := second.Approval().Get(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, request.StatusPending, actual.Status)

			actual, err = second.Approval().Decide(ctx, req.ID, request.VerdictApprove, "alice", "")
			require.NoError(t, err)
			assert.Equal(t, request.StatusExecuted, actual.Status)

			trail, err := second.Approval().AuditTrail(ctx, req.ID)
			require.NoError(t, err)
			assert.NoError(t, audit.Verify(trail))
			status, err := audit.Replay(trail)
			require.NoError(t, err)
			assert.Equal(t, request.StatusExecuted, status)
		})
	}
}

func TestService_Listen(t *testing.T) {
	ctx := context.Background()
	srv := newService(t, newConfig(t))
	var mux sync.Mutex
	var topics []string
	require.NoError(t, srv.Listen(func(evt *approval.Event) {
		mux.Lock()
		defer mux.Unlock()
		topics = append(topics, evt.Topic())
	}))

	req, err := srv.Approval().Submit(ctx, "write_file", request.NewParameters("path", "a.txt"), "agent")
	require.NoError(t, err)
	_, err = srv.Approval().Decide(ctx, req.ID, request.VerdictDeny, "alice", "no")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(topics) == 2
	}, 2*time.Second, 10*time.Millisecond)
	mux.Lock()
	defer mux.Unlock()
	assert.Equal(t, []string{approval.TopicRequestCreated, approval.TopicDecisionCreated}, topics)
}

func TestService_Reports(t *testing.T) {
	ctx := context.Background()
	srv := newService(t, newConfig(t))
	req, err := srv.Approval().Submit(ctx, "write_file", request.NewParameters("path", "a.txt"), "agent", approval.WithDescription("update notes"))
	require.NoError(t, err)

	report, err := srv.Report(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "Pending Approval Requests: 1")
	assert.Contains(t, report, "ide | kind: open_project")

	analysis, err := srv.Analysis(ctx, req.ID)
	require.NoError(t, err)
	assert.Contains(t, analysis, "Description: update notes")
	assert.Contains(t, analysis, "Recommendation: REVIEW")

	summary, err := srv.Summary(ctx, audit.WithRequestID(req.ID))
	require.NoError(t, err)
	assert.Contains(t, summary, "Records: 2")

	_, err = srv.Analysis(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestService_Submit_NoListener(t *testing.T) {
	ctx := context.Background()
	srv := newService(t, newConfig(t))
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 150; i++ {
			if _, err := srv.Approval().Submit(ctx, "write_file", request.NewParameters("path", "a.txt"), "agent"); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("submit blocked without a notification listener")
	}
	pending, err := srv.Approval().ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 150)
}
