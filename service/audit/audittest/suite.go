// Package audittest provides a conformance suite for audit.Log implementations.
package audittest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/audit"
)

// Run exercises Append, Query and List against log.
func Run(t *testing.T, log audit.Log) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	lifecycle := []struct {
		id    string
		event audit.Event
		from  request.Status
		to    request.Status
		at    time.Duration
	}{
		{"a", audit.EventCreated, "", request.StatusPending, 0},
		{"b", audit.EventCreated, "", request.StatusPending, time.Second},
		{"a", audit.EventAwaitingDecision, request.StatusPending, request.StatusPending, 2 * time.Second},
		{"b", audit.EventAutoApproved, request.StatusPending, request.StatusAutoApproved, 3 * time.Second},
		{"a", audit.EventDenied, request.StatusPending, request.StatusDenied, 4 * time.Second},
		{"b", audit.EventExecutionStarted, request.StatusAutoApproved, request.StatusExecuting, 5 * time.Second},
		{"b", audit.EventExecuted, request.StatusExecuting, request.StatusExecuted, 6 * time.Second},
	}

	t.Run("append", func(t *testing.T) {
		for _, item := range lifecycle {
			record := &audit.Record{RequestID: item.id, Event: item.event, From: item.from, To: item.to,
				Actor: "tester", Message: string(item.event), Time: base.Add(item.at),
				Detail: &audit.Detail{Kind: "open_project", Result: "ok"}}
			require.NoError(t, log.Append(ctx, record))
			assert.NotEmpty(t, record.Hash)
		}
	})

	t.Run("query", func(t *testing.T) {
		records, err := log.Query(ctx, "b")
		require.NoError(t, err)
		require.Len(t, records, 4)
		for i, record := range records {
			assert.Equal(t, i+1, record.Seq)
		}
		assert.NoError(t, audit.Verify(records))
		status, err := audit.Replay(records)
		require.NoError(t, err)
		assert.Equal(t, request.StatusExecuted, status)

		records, err = log.Query(ctx, "a")
		require.NoError(t, err)
		status, err = audit.Replay(records)
		require.NoError(t, err)
		assert.Equal(t, request.StatusDenied, status)

		records, err = log.Query(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("list", func(t *testing.T) {
		var testCases = []struct {
			description string
			filters     []audit.Filter
			expect      []string
		}{
			{description: "all ordered by time", expect: []string{"a/1", "b/1", "a/2", "b/2", "a/3", "b/3", "b/4"}},
			{description: "by status", filters: []audit.Filter{audit.WithStatus(request.StatusDenied, request.StatusExecuted)}, expect: []string{"a/3", "b/4"}},
			{description: "by event", filters: []audit.Filter{audit.WithEvent(audit.EventCreated)}, expect: []string{"a/1", "b/1"}},
			{description: "by request", filters: []audit.Filter{audit.WithRequestID("a")}, expect: []string{"a/1", "a/2", "a/3"}},
			{description: "time range", filters: []audit.Filter{audit.WithSince(base.Add(2 * time.Second)), audit.WithUntil(base.Add(4 * time.Second))}, expect: []string{"a/2", "b/2"}},
			{description: "limit", filters: []audit.Filter{audit.WithLimit(2)}, expect: []string{"a/1", "b/1"}},
		}
		for _, testCase := range testCases {
			t.Run(testCase.description, func(t *testing.T) {
				records, err := log.List(ctx, testCase.filters...)
				require.NoError(t, err)
				var keys []string
				for _, record := range records {
					keys = append(keys, fmt.Sprintf("%v/%d", record.RequestID, record.Seq))
				}
				assert.Equal(t, testCase.expect, keys)
			})
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		const writers, perWriter = 4, 10
		wg := sync.WaitGroup{}
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				id := fmt.Sprintf("c%d", w%2)
				for i := 0; i < perWriter; i++ {
					record := &audit.Record{RequestID: id, Event: audit.EventAwaitingDecision,
						From: request.StatusPending, To: request.StatusPending, Message: "tick", Time: base}
					assert.NoError(t, log.Append(ctx, record))
				}
			}(w)
		}
		wg.Wait()
		for _, id := range []string{"c0", "c1"} {
			records, err := log.Query(ctx, id)
			require.NoError(t, err)
			assert.Len(t, records, writers/2*perWriter)
			assert.NoError(t, audit.Verify(records))
		}
	})
}
