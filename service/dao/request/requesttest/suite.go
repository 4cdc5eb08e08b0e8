// Package requesttest provides a conformance suite for request table implementations.
package requesttest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
)

// Run exercises Save, Load, List and Delete against service.
func Run(t *testing.T, service dao.Service[string, request.OperationRequest]) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	requests := []*request.OperationRequest{
		{
			ID: "r1", Kind: "write_file", Parameters: request.NewParameters("path", "/tmp/a", "overwrite", true),
			RequiredPermission: permission.Write, RiskLevel: permission.High, Requester: "agent",
			CreatedAt: base, ExpiresAt: base.Add(4 * time.Hour), UpdatedAt: base, Status: request.StatusPending,
		},
		{
			ID: "r2", Kind: "open_project", Parameters: request.NewParameters("path", "/src/app"),
			RequiredPermission: permission.Execute, RiskLevel: permission.Low, Requester: "ide",
			CreatedAt: base.Add(time.Minute), ExpiresAt: base.Add(24 * time.Hour), UpdatedAt: base.Add(time.Minute),
			Status: request.StatusExecuted, Result: "opened",
			Decision: &request.Decision{DecidedBy: "auto-rule:ide", Verdict: request.VerdictApprove, DecidedAt: base.Add(time.Minute)},
		},
		{
			ID: "r3", Kind: "delete_branch", Parameters: request.NewParameters("branch", "old"),
			RequiredPermission: permission.Admin, RiskLevel: permission.High, Requester: "agent",
			CreatedAt: base.Add(2 * time.Minute), ExpiresAt: base.Add(4 * time.Hour), UpdatedAt: base.Add(2 * time.Minute),
			Status: request.StatusDenied,
			Decision: &request.Decision{DecidedBy: "alice", Verdict: request.VerdictDeny, Reason: "no",
				Conditions: []string{"single use"}, DecidedAt: base.Add(3 * time.Minute)},
		},
	}

	t.Run("save and load", func(t *testing.T) {
		for _, req := range requests {
			require.NoError(t, service.Save(ctx, req))
		}
		for _, expect := range requests {
			actual, err := service.Load(ctx, expect.ID)
			require.NoError(t, err)
			assertRequest(t, expect, actual)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		assert.ErrorIs(t, service.Save(ctx, nil), dao.ErrNilEntity)
		assert.ErrorIs(t, service.Save(ctx, &request.OperationRequest{}), dao.ErrInvalidID)
		_, err := service.Load(ctx, "missing")
		assert.ErrorIs(t, err, dao.ErrNotFound)
		_, err = service.Load(ctx, "")
		assert.ErrorIs(t, err, dao.ErrInvalidID)
	})

	t.Run("update", func(t *testing.T) {
		updated := requests[0].Clone()
		updated.Status = request.StatusApproved
		updated.Decision = &request.Decision{DecidedBy: "bob", Verdict: request.VerdictApprove, DecidedAt: base.Add(time.Hour)}
		updated.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, service.Save(ctx, updated))
		actual, err := service.Load(ctx, updated.ID)
		require.NoError(t, err)
		assertRequest(t, updated, actual)
	})

	t.Run("list", func(t *testing.T) {
		var testCases = []struct {
			description string
			parameters  []*dao.Parameter
			expect      []string
		}{
			{description: "all", expect: []string{"r1", "r2", "r3"}},
			{description: "by status", parameters: []*dao.Parameter{criteria.WithStatus(request.StatusApproved, request.StatusDenied)}, expect: []string{"r1", "r3"}},
			{description: "by kind", parameters: []*dao.Parameter{dao.NewParameter(criteria.Kind, "open_project")}, expect: []string{"r2"}},
			{description: "by requester and status", parameters: []*dao.Parameter{
				dao.NewParameter(criteria.Requester, "agent"), dao.NewParameter(criteria.Status, "denied")}, expect: []string{"r3"}},
			{description: "no match", parameters: []*dao.Parameter{dao.NewParameter(criteria.Status, "pending")}},
		}
		for _, testCase := range testCases {
			t.Run(testCase.description, func(t *testing.T) {
				actual, err := service.List(ctx, testCase.parameters...)
				require.NoError(t, err)
				var ids []string
				for _, req := range actual {
					ids = append(ids, req.ID)
				}
				sort.Strings(ids)
				assert.Equal(t, testCase.expect, ids)
			})
		}
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, service.Delete(ctx, "r2"))
		_, err := service.Load(ctx, "r2")
		assert.ErrorIs(t, err, dao.ErrNotFound)
		assert.ErrorIs(t, service.Delete(ctx, "r2"), dao.ErrNotFound)
	})
}

func assertRequest(t *testing.T, expect, actual *request.OperationRequest) {
	t.Helper()
	require.NotNil(t, actual)
	assert.Equal(t, expect.ID, actual.ID)
	assert.Equal(t, expect.Kind, actual.Kind)
	assert.Equal(t, expect.Parameters.Names(), actual.Parameters.Names())
	assert.EqualValues(t, expect.Parameters.Map(), actual.Parameters.Map())
	assert.Equal(t, expect.RequiredPermission, actual.RequiredPermission)
	assert.Equal(t, expect.RiskLevel, actual.RiskLevel)
	assert.Equal(t, expect.Requester, actual.Requester)
	assert.Equal(t, expect.Status, actual.Status)
	assert.Equal(t, expect.Result, actual.Result)
	assert.True(t, expect.CreatedAt.Equal(actual.CreatedAt))
	assert.True(t, expect.ExpiresAt.Equal(actual.ExpiresAt))
	assert.True(t, expect.UpdatedAt.Equal(actual.UpdatedAt))
	if expect.Decision == nil {
		assert.Nil(t, actual.Decision)
		return
	}
	require.NotNil(t, actual.Decision)
	assert.Equal(t, expect.Decision.DecidedBy, actual.Decision.DecidedBy)
	assert.Equal(t, expect.Decision.Verdict, actual.Decision.Verdict)
	assert.Equal(t, expect.Decision.Reason, actual.Decision.Reason)
	assert.Equal(t, expect.Decision.Conditions, actual.Decision.Conditions)
	assert.True(t, expect.Decision.DecidedAt.Equal(actual.Decision.DecidedAt))
}
