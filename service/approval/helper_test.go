package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/approval/memory"
)

// TestWaitForOutcome verifies that WaitForOutcome blocks until an automatic
// decider settles the request.
func TestWaitForOutcome(t *testing.T) {
	type testCase struct {
		name        string
		approve     bool
		expectState request.Status
		expectError bool
		timeout     time.Duration
		noDecider   bool
	}

	tests := []testCase{{
		name:        "approved before timeout",
		approve:     true,
		expectState: request.StatusExecuted,
		timeout:     2 * time.Second,
	}, {
		name:        "rejected before timeout",
		approve:     false,
		expectState: request.StatusDenied,
		timeout:     2 * time.Second,
	}, {
		name:        "timeout waiting for decision",
		expectError: true,
		timeout:     50 * time.Millisecond,
		noDecider:   true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			svc, err := memory.New(approval.WithExecutor(&countingExecutor{}))
			require.NoError(t, err)

			req, err := svc.Submit(ctx, "write_file", request.NewParameters("path", "/tmp/a"), "agent")
			require.NoError(t, err)

			if !tc.noDecider {
				var stop func()
				if tc.approve {
					stop = approval.AutoApprove(ctx, svc, "bot", 5*time.Millisecond)
				} else {
					stop = approval.AutoReject(ctx, svc, "bot", "not today", 5*time.Millisecond)
				}
				defer stop()
			}

			actual, err := approval.WaitForOutcome(ctx, svc, req.ID, tc.timeout)
			if tc.expectError {
				assert.ErrorIs(t, err, context.DeadlineExceeded)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectState, actual.Status)
			require.NotNil(t, actual.Decision)
			assert.Equal(t, "bot", actual.Decision.DecidedBy)
		})
	}
}

// TestListPending verifies that ListPending helper applies filters correctly.
func TestListPending(t *testing.T) {
	ctx := context.Background()
	svc, err := memory.New(approval.WithIDGenerator(sequence()))
	require.NoError(t, err)

	submissions := []struct {
		kind      string
		requester string
	}{
		{"write_file", "agent"},
		{"delete_branch", "agent"},
		{"write_file", "ide"},
	}
	for _, s := range submissions {
		_, err := svc.Submit(ctx, s.kind, request.NewParameters("path", "/tmp/x"), s.requester)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		filters  []approval.PendingFilter
		expected []string
	}{
		{name: "filter by kind", filters: []approval.PendingFilter{approval.WithKind("write_file")}, expected: []string{"req-1", "req-3"}},
		{name: "filter by requester", filters: []approval.PendingFilter{approval.WithRequester("agent")}, expected: []string{"req-1", "req-2"}},
		{name: "filter by kind and requester", filters: []approval.PendingFilter{approval.WithKind("write_file"), approval.WithRequester("agent")}, expected: []string{"req-1"}},
		{name: "filter by risk", filters: []approval.PendingFilter{approval.WithMaxRisk(permission.Medium)}, expected: []string{"req-1", "req-3"}},
		{name: "no filters", expected: []string{"req-1", "req-2", "req-3"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := approval.ListPending(ctx, svc, tc.filters...)
			require.NoError(t, err)
			var ids []string
			for _, r := range actual {
				ids = append(ids, r.ID)
			}
			assert.ElementsMatch(t, tc.expected, ids)
		})
	}

	t.Run("auto_expire", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
		svc, err := memory.New(approval.WithClock(clk.Now))
		require.NoError(t, err)
		req, err := svc.Submit(ctx, "security_config", request.NewParameters("key", "tls"), "agent")
		require.NoError(t, err)

		stop := approval.AutoExpire(ctx, svc, 5*time.Millisecond)
		defer stop()
		clk.Advance(2 * time.Hour)

		assert.Eventually(t, func() bool {
			records, err := svc.AuditTrail(ctx, req.ID)
			return err == nil && records[len(records)-1].To == request.StatusExpired
		}, time.Second, 5*time.Millisecond)
	})
}
