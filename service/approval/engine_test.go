package approval_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/rule"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	auditmem "github.com/viant/warden/service/audit/memory"
	reqmem "github.com/viant/warden/service/dao/request/memory"
	"github.com/viant/warden/service/event"
	"github.com/viant/warden/service/executor"
	"github.com/viant/warden/service/messaging/memory"
)

var base = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type countingExecutor struct {
	calls atomic.Int32
	err   error
}

func (c *countingExecutor) Execute(_ context.Context, kind string, params request.Parameters) (*executor.Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &executor.Result{Summary: "done " + kind}, nil
}

type recordingDispatcher struct {
	mux sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Submit(_ context.Context, id string) error {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.ids = append(d.ids, id)
	return nil
}

type flakyLog struct {
	audit.Log
	mux      sync.Mutex
	failures map[audit.Event]int
	failAll  bool
}

func (f *flakyLog) Append(ctx context.Context, record *audit.Record) error {
	f.mux.Lock()
	if f.failAll || f.failures[record.Event] > 0 {
		if !f.failAll {
			f.failures[record.Event]--
		}
		f.mux.Unlock()
		return errors.New("disk full")
	}
	f.mux.Unlock()
	return f.Log.Append(ctx, record)
}

type fixture struct {
	engine   *approval.Engine
	clock    *clock.Manual
	executor *countingExecutor
	requests *reqmem.Service
	audit    audit.Log
}

func sequence() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("req-%d", n.Add(1)) }
}

func newFixture(t *testing.T, options ...approval.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clock.NewManual(base),
		executor: &countingExecutor{},
		requests: reqmem.New(),
		audit:    auditmem.New(),
	}
	defaults := []approval.Option{
		approval.WithRequestDAO(f.requests),
		approval.WithAuditLog(f.audit),
		approval.WithExecutor(f.executor),
		approval.WithClock(f.clock.Now),
		approval.WithIDGenerator(sequence()),
		approval.WithAuditRetries(2, time.Millisecond),
	}
	var err error
	f.engine, err = approval.New(append(defaults, options...)...)
	require.NoError(t, err)
	return f
}

func (f *fixture) events(t *testing.T, id string) []audit.Event {
	t.Helper()
	records, err := f.engine.AuditTrail(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, audit.Verify(records))
	var ret []audit.Event
	for _, record := range records {
		ret = append(ret, record.Event)
	}
	return ret
}

func (f *fixture) replay(t *testing.T, id string) request.Status {
	t.Helper()
	records, err := f.engine.AuditTrail(context.Background(), id)
	require.NoError(t, err)
	status, err := audit.Replay(records)
	require.NoError(t, err)
	return status
}

func ideRule() *rule.Rule {
	return &rule.Rule{ID: "ide", Kind: "open_project", MaxRisk: permission.Low}
}

func TestEngine_Submit(t *testing.T) {
	var testCases = []struct {
		description string
		kind        string
		params      request.Parameters
		rules       []*rule.Rule
		expectState request.Status
		expectRisk  permission.Risk
		expectLevel permission.Level
		expectTrail []audit.Event
		expectCalls int32
	}{
		{
			description: "rule auto-approves and executes",
			kind:        "open_project",
			params:      request.NewParameters("path", "/src/app"),
			rules:       []*rule.Rule{ideRule()},
			expectState: request.StatusExecuted,
			expectRisk:  permission.Low,
			expectLevel: permission.Execute,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAutoApproved, audit.EventExecutionStarted, audit.EventExecuted},
			expectCalls: 1,
		},
		{
			description: "no rule leaves request pending",
			kind:        "write_file",
			params:      request.NewParameters("path", "/tmp/a.txt", "content", "x"),
			rules:       []*rule.Rule{ideRule()},
			expectState: request.StatusPending,
			expectRisk:  permission.Medium,
			expectLevel: permission.Write,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision},
		},
		{
			description: "rule risk ceiling below escalated risk",
			kind:        "write_file",
			params:      request.NewParameters("path", "/tmp/a.txt", "overwrite", true),
			rules:       []*rule.Rule{{ID: "writes", Kind: "write_file", MaxRisk: permission.Medium}},
			expectState: request.StatusPending,
			expectRisk:  permission.High,
			expectLevel: permission.Write,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision},
		},
		{
			description: "unknown kind defaults to medium risk",
			kind:        "reboot",
			expectState: request.StatusPending,
			expectRisk:  permission.Medium,
			expectLevel: permission.Execute,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t, approval.WithRules(testCase.rules...))
			req, err := f.engine.Submit(context.Background(), testCase.kind, testCase.params, "agent")
			require.NoError(t, err)
			assert.Equal(t, testCase.expectState, req.Status)
			assert.Equal(t, testCase.expectRisk, req.RiskLevel)
			assert.Equal(t, testCase.expectLevel, req.RequiredPermission)
			assert.Equal(t, base.Add(permission.DefaultTTL().For(testCase.expectRisk)), req.ExpiresAt)
			assert.Equal(t, testCase.expectTrail, f.events(t, req.ID))
			assert.Equal(t, testCase.expectState, f.replay(t, req.ID))
			assert.Equal(t, testCase.expectCalls, f.executor.calls.Load())
			if testCase.expectState == request.StatusExecuted {
				require.NotNil(t, req.Decision)
				assert.Equal(t, "auto-rule:ide", req.Decision.DecidedBy)
				assert.Equal(t, "done open_project", req.Result)
			}
		})
	}
}

func TestEngine_Submit_Invalid(t *testing.T) {
	classifier, err := permission.NewClassifier(permission.DefaultTable(), permission.WithStrict(true))
	require.NoError(t, err)
	f := newFixture(t, approval.WithClassifier(classifier))

	_, err = f.engine.Submit(context.Background(), "reboot", nil, "agent")
	assert.ErrorIs(t, err, approval.ErrUnknownOperation)
	assert.Equal(t, approval.KindUnknownOperation, approval.Kind(err))

	_, err = f.engine.Submit(context.Background(), "", nil, "agent")
	assert.Equal(t, approval.KindInvalidArgument, approval.Kind(err))
	_, err = f.engine.Submit(context.Background(), "read_file", nil, " ")
	assert.Equal(t, approval.KindInvalidArgument, approval.Kind(err))

	_, err = approval.New(approval.WithAuditLog(auditmem.New()))
	assert.Error(t, err)
}

func TestEngine_Decide(t *testing.T) {
	var testCases = []struct {
		description string
		verdict     request.Verdict
		conditions  []string
		execErr     error
		expectState request.Status
		expectTrail []audit.Event
		expectCalls int32
		expectErr   error
	}{
		{
			description: "approve executes",
			verdict:     request.VerdictApprove,
			expectState: request.StatusExecuted,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventApproved, audit.EventExecutionStarted, audit.EventExecuted},
			expectCalls: 1,
		},
		{
			description: "deny never executes",
			verdict:     request.VerdictDeny,
			expectState: request.StatusDenied,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventDenied},
		},
		{
			description: "executor failure",
			verdict:     request.VerdictApprove,
			execErr:     errors.New("permission denied: /tmp/a.txt"),
			expectState: request.StatusFailed,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventApproved, audit.EventExecutionStarted, audit.EventFailed},
			expectCalls: 1,
		},
		{
			description: "violated param condition",
			verdict:     request.VerdictApprove,
			conditions:  []string{"param path ~ /src/*"},
			expectState: request.StatusFailed,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventApproved, audit.EventFailed},
		},
		{
			description: "satisfied conditions",
			verdict:     request.VerdictApprove,
			conditions:  []string{"param path ~ /tmp/*", "valid for 5m"},
			expectState: request.StatusExecuted,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventApproved, audit.EventExecutionStarted, audit.EventExecuted},
			expectCalls: 1,
		},
		{
			description: "unknown condition",
			verdict:     request.VerdictApprove,
			conditions:  []string{"twice"},
			expectState: request.StatusPending,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision},
			expectErr:   approval.ErrInvalidArgument,
		},
		{
			description: "invalid verdict",
			verdict:     request.Verdict("maybe"),
			expectState: request.StatusPending,
			expectTrail: []audit.Event{audit.EventCreated, audit.EventAwaitingDecision},
			expectErr:   approval.ErrInvalidArgument,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t)
			f.executor.err = testCase.execErr
			ctx := context.Background()
			req, err := f.engine.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a.txt"), "agent")
			require.NoError(t, err)

			decided, err := f.engine.Decide(ctx, req.ID, testCase.verdict, "alice", "looks fine", testCase.conditions...)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, testCase.expectState, decided.Status)
				require.NotNil(t, decided.Decision)
				assert.Equal(t, "alice", decided.Decision.DecidedBy)
			}
			actual, err := f.engine.Get(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectState, actual.Status)
			assert.Equal(t, testCase.expectTrail, f.events(t, req.ID))
			assert.Equal(t, testCase.expectState, f.replay(t, req.ID))
			assert.Equal(t, testCase.expectCalls, f.executor.calls.Load())
			if testCase.execErr != nil {
				assert.Equal(t, testCase.execErr.Error(), actual.Error)
				records, _ := f.engine.AuditTrail(ctx, req.ID)
				assert.Equal(t, testCase.execErr.Error(), records[len(records)-1].Detail.Error)
			}
		})
	}
}

func TestEngine_Decide_InvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "create_branch", request.NewParameters("branch", "feature"), "agent")
	require.NoError(t, err)

	_, err = f.engine.Decide(ctx, req.ID, request.VerdictDeny, "alice", "no")
	require.NoError(t, err)
	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "changed my mind")
	assert.ErrorIs(t, err, approval.ErrInvalidState)
	assert.Equal(t, approval.KindInvalidState, approval.Kind(err))

	_, err = f.engine.Decide(ctx, "missing", request.VerdictApprove, "alice", "")
	assert.ErrorIs(t, err, approval.ErrNotFound)
	_, err = f.engine.Execute(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
	_, err = f.engine.AuditTrail(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestEngine_Decide_ReservedActor(t *testing.T) {
	var testCases = []struct {
		description string
		decidedBy   string
	}{
		{description: "rule prefix", decidedBy: "auto-rule:x"},
		{description: "engine actor", decidedBy: approval.SystemActor},
		{description: "engine actor in upper case", decidedBy: " SYSTEM "},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			req, err := f.engine.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a"), "agent")
			require.NoError(t, err)

			_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, testCase.decidedBy, "")
			assert.ErrorIs(t, err, approval.ErrInvalidArgument)
			actual, err := f.engine.Get(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, request.StatusPending, actual.Status)
			assert.Equal(t, []audit.Event{audit.EventCreated, audit.EventAwaitingDecision}, f.events(t, req.ID))
		})
	}
}

func TestEngine_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "security_config", request.NewParameters("setting", "firewall"), "agent")
	require.NoError(t, err)
	assert.Equal(t, permission.Critical, req.RiskLevel)
	assert.Equal(t, base.Add(time.Hour), req.ExpiresAt)

	f.clock.Advance(61 * time.Minute)
	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "root", "ok")
	assert.ErrorIs(t, err, approval.ErrExpired)
	assert.Equal(t, approval.KindExpired, approval.Kind(err))

	actual, err := f.engine.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusExpired, actual.Status)
	assert.Equal(t, []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventExpired}, f.events(t, req.ID))
	assert.EqualValues(t, 0, f.executor.calls.Load())

	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "root", "ok")
	assert.ErrorIs(t, err, approval.ErrInvalidState)
}

func TestEngine_Expiry_Boundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "security_config", nil, "agent")
	require.NoError(t, err)

	f.clock.Advance(time.Hour - time.Second)
	decided, err := f.engine.Decide(ctx, req.ID, request.VerdictDeny, "root", "not now")
	require.NoError(t, err)
	assert.Equal(t, request.StatusDenied, decided.Status)

	other, err := f.engine.Submit(ctx, "security_config", nil, "agent")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.engine.Decide(ctx, other.ID, request.VerdictApprove, "root", "")
	assert.ErrorIs(t, err, approval.ErrExpired)
}

func TestEngine_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	critical, err := f.engine.Submit(ctx, "security_config", nil, "agent")
	require.NoError(t, err)
	medium, err := f.engine.Submit(ctx, "apply_patch", request.NewParameters("patch", "x"), "agent")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	count, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending, err := f.engine.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, medium.ID, pending[0].ID)

	actual, err := f.engine.Get(ctx, critical.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusExpired, actual.Status)

	count, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	f.clock.Advance(7 * time.Hour)
	pending, err = f.engine.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_ConcurrentDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "delete_file", request.NewParameters("path", "/tmp/x"), "agent")
	require.NoError(t, err)

	verdicts := []request.Verdict{request.VerdictApprove, request.VerdictDeny}
	errs := make([]error, len(verdicts))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, verdict := range verdicts {
		wg.Add(1)
		go func(i int, verdict request.Verdict) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.Decide(ctx, req.ID, verdict, fmt.Sprintf("approver-%d", i), "")
		}(i, verdict)
	}
	close(start)
	wg.Wait()

	var succeeded, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, approval.ErrInvalidState):
			invalid++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, invalid)

	decisions := 0
	for _, ev := range f.events(t, req.ID) {
		if ev == audit.EventApproved || ev == audit.EventDenied {
			decisions++
		}
	}
	assert.Equal(t, 1, decisions)
	assert.LessOrEqual(t, f.executor.calls.Load(), int32(1))
}

func TestEngine_ConcurrentSubmit(t *testing.T) {
	f := newFixture(t, approval.WithRules(ideRule()))
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := f.engine.Submit(ctx, "open_project", request.NewParameters("path", fmt.Sprintf("/src/%d", i)), "ide")
			if assert.NoError(t, err) {
				ids[i] = req.ID
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, len(ids), f.executor.calls.Load())
	for _, id := range ids {
		assert.Equal(t, request.StatusExecuted, f.replay(t, id))
	}
}

func TestEngine_Execute_Idempotent(t *testing.T) {
	f := newFixture(t, approval.WithRules(ideRule()))
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "open_project", request.NewParameters("path", "/src/app"), "ide")
	require.NoError(t, err)
	require.Equal(t, request.StatusExecuted, req.Status)

	again, err := f.engine.Execute(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusExecuted, again.Status)
	assert.EqualValues(t, 1, f.executor.calls.Load())

	pending, err := f.engine.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a"), "agent")
	require.NoError(t, err)
	_, err = f.engine.Execute(ctx, pending.ID)
	assert.ErrorIs(t, err, approval.ErrInvalidState)
}

func TestEngine_Dispatcher(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, approval.WithDispatcher(dispatcher))
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a"), "agent")
	require.NoError(t, err)

	decided, err := f.engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "", "valid for 10m")
	require.NoError(t, err)
	assert.Equal(t, request.StatusApproved, decided.Status)
	assert.Equal(t, []string{req.ID}, dispatcher.ids)
	assert.EqualValues(t, 0, f.executor.calls.Load())

	f.clock.Advance(11 * time.Minute)
	failed, err := f.engine.Execute(ctx, req.ID)
	assert.ErrorIs(t, err, approval.ErrConditionFailed)
	assert.Equal(t, approval.KindConditionFailed, approval.Kind(err))
	assert.Equal(t, request.StatusFailed, failed.Status)
	assert.EqualValues(t, 0, f.executor.calls.Load())
}

func TestEngine_Approvers(t *testing.T) {
	f := newFixture(t, approval.WithApprovers(map[string]permission.Level{
		"bob":   permission.Write,
		"carol": permission.Admin,
	}))
	ctx := context.Background()
	branch, err := f.engine.Submit(ctx, "delete_branch", request.NewParameters("branch", "old"), "agent")
	require.NoError(t, err)

	_, err = f.engine.Decide(ctx, branch.ID, request.VerdictApprove, "bob", "")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)
	_, err = f.engine.Decide(ctx, branch.ID, request.VerdictApprove, "mallory", "")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)
	assert.Equal(t, approval.KindPermissionDenied, approval.Kind(err))

	decided, err := f.engine.Decide(ctx, branch.ID, request.VerdictApprove, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, request.StatusExecuted, decided.Status)
}

func TestEngine_Approvers_CaseInsensitive(t *testing.T) {
	var testCases = []struct {
		description string
		decidedBy   string
	}{
		{description: "configured spelling", decidedBy: "Alice"},
		{description: "lower case", decidedBy: "alice"},
		{description: "upper case with spaces", decidedBy: " ALICE "},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t, approval.WithApprovers(map[string]permission.Level{"Alice": permission.Admin}))
			ctx := context.Background()
			req, err := f.engine.Submit(ctx, "delete_branch", request.NewParameters("branch", "old"), "agent")
			require.NoError(t, err)

			decided, err := f.engine.Decide(ctx, req.ID, request.VerdictApprove, testCase.decidedBy, "")
			require.NoError(t, err)
			assert.Equal(t, request.StatusExecuted, decided.Status)
		})
	}
}

func TestEngine_Grants(t *testing.T) {
	expiresAt := base.Add(30 * time.Minute)
	f := newFixture(t, approval.WithGrants(
		&permission.Grant{Approver: "carol", Level: permission.Admin},
		&permission.Grant{Approver: "dave", Level: permission.Admin, ExpiresAt: &expiresAt},
	))
	ctx := context.Background()
	submit := func() *request.OperationRequest {
		req, err := f.engine.Submit(ctx, "delete_branch", request.NewParameters("branch", "old"), "agent")
		require.NoError(t, err)
		return req
	}

	early := submit()
	decided, err := f.engine.Decide(ctx, early.ID, request.VerdictApprove, "dave", "")
	require.NoError(t, err)
	assert.Equal(t, request.StatusExecuted, decided.Status)

	f.clock.Advance(31 * time.Minute)
	late := submit()
	_, err = f.engine.Decide(ctx, late.ID, request.VerdictApprove, "dave", "")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)

	_, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	grants := f.engine.Grants()
	require.Len(t, grants, 1)
	assert.Equal(t, "carol", grants[0].Approver)

	assert.True(t, f.engine.Revoke("Carol"))
	assert.False(t, f.engine.Revoke("carol"))
	_, err = f.engine.Decide(ctx, late.ID, request.VerdictApprove, "carol", "")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)

	require.NoError(t, f.engine.Grant(&permission.Grant{Approver: "erin", Level: permission.Root}))
	decided, err = f.engine.Decide(ctx, late.ID, request.VerdictApprove, "erin", "")
	require.NoError(t, err)
	assert.Equal(t, request.StatusExecuted, decided.Status)

	assert.ErrorIs(t, f.engine.Grant(&permission.Grant{Approver: " ", Level: permission.Read}), approval.ErrInvalidArgument)
}

func TestEngine_Grants_Unrestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "delete_branch", request.NewParameters("branch", "old"), "agent")
	require.NoError(t, err)
	assert.Empty(t, f.engine.Grants())

	require.NoError(t, f.engine.Grant(&permission.Grant{Approver: "carol", Level: permission.Admin}))
	assert.True(t, f.engine.Revoke("carol"))
	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "mallory", "")
	assert.ErrorIs(t, err, approval.ErrPermissionDenied)
}

func TestEngine_AuditFailure(t *testing.T) {
	var testCases = []struct {
		description  string
		failures     map[audit.Event]int
		failAll      bool
		expectTrail  []audit.Event
		expectEscal  bool
		expectStored bool
	}{
		{
			description:  "failure record written on retry",
			failures:     map[audit.Event]int{audit.EventAwaitingDecision: 1},
			expectTrail:  []audit.Event{audit.EventCreated, audit.EventFailed},
			expectStored: true,
		},
		{
			description:  "created record retried before failure",
			failures:     map[audit.Event]int{audit.EventCreated: 1},
			expectTrail:  []audit.Event{audit.EventCreated, audit.EventFailed},
			expectStored: true,
		},
		{
			description:  "log stays unavailable",
			failAll:      true,
			expectEscal:  true,
			expectStored: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			log := &flakyLog{Log: auditmem.New(), failures: testCase.failures, failAll: testCase.failAll}
			queue := memory.NewQueue[event.Event[request.OperationRequest]](memory.DefaultConfig())
			f := newFixture(t, approval.WithAuditLog(log), approval.WithPublisher(event.NewPublisher[request.OperationRequest](queue)))
			ctx := context.Background()

			_, err := f.engine.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a"), "agent")
			require.Error(t, err)
			assert.ErrorIs(t, err, approval.ErrStorageUnavailable)
			assert.Equal(t, approval.KindStorageUnavailable, approval.Kind(err))

			stored, err := f.requests.Load(ctx, "req-1")
			require.NoError(t, err)
			assert.Equal(t, request.StatusFailed, stored.Status)
			assert.Contains(t, stored.Error, "audit log unavailable")

			records, err := log.Log.Query(ctx, "req-1")
			require.NoError(t, err)
			var trail []audit.Event
			for _, record := range records {
				trail = append(trail, record.Event)
			}
			assert.Equal(t, testCase.expectTrail, trail)
			assert.EqualValues(t, 0, f.executor.calls.Load())

			var topics []string
			for queue.Size() > 0 {
				evt, err := event.NewPublisher[request.OperationRequest](queue).Consume(ctx)
				require.NoError(t, err)
				topics = append(topics, evt.Topic())
			}
			assert.Equal(t, testCase.expectEscal, contains(topics, approval.TopicAuditUnavailable))
			assert.True(t, contains(topics, approval.TopicRequestFailed))
		})
	}
}

func TestEngine_Events(t *testing.T) {
	queue := memory.NewQueue[event.Event[request.OperationRequest]](memory.DefaultConfig())
	publisher := event.NewPublisher[request.OperationRequest](queue)
	f := newFixture(t, approval.WithPublisher(publisher))
	ctx := context.Background()

	req, err := f.engine.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a"), "agent")
	require.NoError(t, err)
	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "")
	require.NoError(t, err)

	var topics []string
	for queue.Size() > 0 {
		evt, err := publisher.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, req.ID, evt.Context.RequestID)
		assert.Equal(t, req.ID, evt.Data.ID)
		topics = append(topics, evt.Topic())
	}
	assert.Equal(t, []string{approval.TopicRequestCreated, approval.TopicDecisionCreated, approval.TopicRequestExecuted}, topics)
}

func TestEngine_SecurityAlerts(t *testing.T) {
	var testCases = []struct {
		description string
		kind        string
		execErr     error
		expect      []string
	}{
		{
			description: "sensitive kind",
			kind:        "security_config",
			expect:      []string{approval.TopicSecurityAlert, approval.TopicRequestCreated, approval.TopicDecisionCreated, approval.TopicRequestExecuted},
		},
		{
			description: "failed execution",
			kind:        "write_file",
			execErr:     errors.New("read-only file system"),
			expect:      []string{approval.TopicRequestCreated, approval.TopicDecisionCreated, approval.TopicRequestFailed, approval.TopicSecurityAlert},
		},
		{
			description: "ordinary kind",
			kind:        "write_file",
			expect:      []string{approval.TopicRequestCreated, approval.TopicDecisionCreated, approval.TopicRequestExecuted},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			queue := memory.NewQueue[event.Event[request.OperationRequest]](memory.DefaultConfig())
			publisher := event.NewPublisher[request.OperationRequest](queue)
			f := newFixture(t, approval.WithPublisher(publisher), approval.WithSensitiveKinds("Security", "credential"))
			f.executor.err = testCase.execErr
			ctx := context.Background()

			req, err := f.engine.Submit(ctx, testCase.kind, request.NewParameters("path", "/tmp/a"), "agent")
			require.NoError(t, err)
			_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "")
			require.NoError(t, err)

			var topics []string
			for queue.Size() > 0 {
				evt, err := publisher.Consume(ctx)
				require.NoError(t, err)
				if evt.Topic() == approval.TopicSecurityAlert {
					assert.NotEmpty(t, evt.Metadata["reason"])
				}
				topics = append(topics, evt.Topic())
			}
			assert.Equal(t, testCase.expect, topics)
		})
	}
}

func TestEngine_Publish_NoConsumer(t *testing.T) {
	queue := memory.NewQueue[event.Event[request.OperationRequest]](memory.Config{QueueBuffer: 1})
	f := newFixture(t,
		approval.WithPublisher(event.NewPublisher[request.OperationRequest](queue)),
		approval.WithPublishTimeout(5*time.Millisecond))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		var ids []string
		for i := 0; i < 3; i++ {
			req, err := f.engine.Submit(ctx, "security_config", nil, "agent")
			if err != nil {
				done <- err
				return
			}
			ids = append(ids, req.ID)
		}
		f.clock.Advance(2 * time.Hour)
		for _, id := range ids {
			if _, err := f.engine.Get(ctx, id); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submit blocked on a full notification queue")
	}
	assert.Equal(t, 1, queue.Size())
	assert.Equal(t, request.StatusExpired, f.replay(t, "req-3"))
}

func TestEngine_Dispatcher_ApprovalLapsed(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, approval.WithDispatcher(dispatcher))
	ctx := context.Background()
	req, err := f.engine.Submit(ctx, "delete_file", request.NewParameters("path", "/tmp/a"), "agent")
	require.NoError(t, err)
	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "", "valid for 10m", "single use")
	require.NoError(t, err)

	f.clock.Advance(10*time.Minute + time.Second)
	for _, id := range dispatcher.ids {
		_, err = f.engine.Execute(ctx, id)
		assert.ErrorIs(t, err, approval.ErrConditionFailed)
	}
	actual, err := f.engine.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, actual.Status)
	assert.Contains(t, actual.Error, "lapsed")
	assert.EqualValues(t, 0, f.executor.calls.Load())
	assert.Equal(t, []audit.Event{audit.EventCreated, audit.EventAwaitingDecision, audit.EventApproved, audit.EventFailed}, f.events(t, req.ID))

	_, err = f.engine.Execute(ctx, req.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.executor.calls.Load())
}

func TestEngine_Recover_SingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, approval.WithDispatcher(&recordingDispatcher{}))
	req, err := f.engine.Submit(ctx, "delete_file", request.NewParameters("path", "/tmp/a"), "agent")
	require.NoError(t, err)
	_, err = f.engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "", "single use")
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	restarted, err := approval.New(
		approval.WithRequestDAO(f.requests),
		approval.WithAuditLog(f.audit),
		approval.WithExecutor(f.executor),
		approval.WithDispatcher(dispatcher),
		approval.WithClock(f.clock.Now),
	)
	require.NoError(t, err)
	report, err := restarted.Recover(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{req.ID}, report.Failed)
	assert.Empty(t, report.Redispatched)
	assert.Empty(t, dispatcher.ids)
	assert.EqualValues(t, 0, f.executor.calls.Load())
	assert.Equal(t, request.StatusFailed, f.replay(t, req.ID))
}

func TestEngine_Recover(t *testing.T) {
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, approval.WithDispatcher(dispatcher))

	submit := func(kind string) *request.OperationRequest {
		req, err := f.engine.Submit(ctx, kind, request.NewParameters("path", "/tmp/"+kind), "agent")
		require.NoError(t, err)
		return req
	}
	approved := submit("write_file")
	_, err := f.engine.Decide(ctx, approved.ID, request.VerdictApprove, "alice", "")
	require.NoError(t, err)

	singleUse := submit("delete_file")
	_, err = f.engine.Decide(ctx, singleUse.ID, request.VerdictApprove, "alice", "", "single use")
	require.NoError(t, err)

	interrupted := submit("apply_patch")
	_, err = f.engine.Decide(ctx, interrupted.ID, request.VerdictApprove, "alice", "")
	require.NoError(t, err)
	markExecuting(t, f, interrupted.ID)

	executed := submit("read_file")
	_, err = f.engine.Decide(ctx, executed.ID, request.VerdictApprove, "alice", "")
	require.NoError(t, err)
	_, err = f.engine.Execute(ctx, executed.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.executor.calls.Load())

	behind := submit("create_branch")
	appendRecord(t, f, behind.ID, audit.EventApproved, request.StatusPending, request.StatusApproved, "bob")

	overdue := submit("security_config")
	f.clock.Advance(2 * time.Hour)

	restarted, err := approval.New(
		approval.WithRequestDAO(f.requests),
		approval.WithAuditLog(f.audit),
		approval.WithExecutor(f.executor),
		approval.WithClock(f.clock.Now),
	)
	require.NoError(t, err)
	report, err := restarted.Recover(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{behind.ID}, report.Reconciled)
	assert.ElementsMatch(t, []string{approved.ID, behind.ID}, report.Redispatched)
	assert.ElementsMatch(t, []string{singleUse.ID, interrupted.ID}, report.Failed)
	assert.ElementsMatch(t, []string{overdue.ID}, report.Expired)
	assert.EqualValues(t, 3, f.executor.calls.Load())

	expect := map[string]request.Status{
		approved.ID:    request.StatusExecuted,
		singleUse.ID:   request.StatusFailed,
		interrupted.ID: request.StatusFailed,
		executed.ID:    request.StatusExecuted,
		behind.ID:      request.StatusExecuted,
		overdue.ID:     request.StatusExpired,
	}
	for id, status := range expect {
		actual, err := restarted.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, actual.Status, id)
		assert.Equal(t, status, f.replay(t, id), id)
	}
	behindReq, _ := restarted.Get(ctx, behind.ID)
	require.NotNil(t, behindReq.Decision)
	assert.Equal(t, "bob", behindReq.Decision.DecidedBy)

	again, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Redispatched)
	assert.Empty(t, again.Failed)
	assert.EqualValues(t, 3, f.executor.calls.Load())
}

// markExecuting leaves a request as a crash would after the executing marker was persisted.
func markExecuting(t *testing.T, f *fixture, id string) {
	t.Helper()
	appendRecord(t, f, id, audit.EventExecutionStarted, request.StatusApproved, request.StatusExecuting, approval.SystemActor)
	req, err := f.requests.Load(context.Background(), id)
	require.NoError(t, err)
	req.Status = request.StatusExecuting
	require.NoError(t, f.requests.Save(context.Background(), req))
}

func appendRecord(t *testing.T, f *fixture, id string, ev audit.Event, from, to request.Status, actor string) {
	t.Helper()
	err := f.audit.Append(context.Background(), &audit.Record{
		RequestID: id, Event: ev, From: from, To: to, Actor: actor,
		Message: string(ev), Detail: &audit.Detail{Verdict: string(request.VerdictApprove)}, Time: f.clock.Now(),
	})
	require.NoError(t, err)
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
