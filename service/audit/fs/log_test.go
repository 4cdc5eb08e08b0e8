package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/audit/audittest"
)

func TestLog(t *testing.T) {
	log, err := New(t.TempDir())
	require.NoError(t, err)
	audittest.Run(t, log)
}

func TestLog_Durable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	record := &audit.Record{RequestID: "r1", Event: audit.EventCreated, To: request.StatusPending, Message: "created", Time: time.Now()}
	require.NoError(t, log.Append(ctx, record))

	reopened, err := New(dir)
	require.NoError(t, err)
	next := &audit.Record{RequestID: "r1", Event: audit.EventAwaitingDecision, From: request.StatusPending, To: request.StatusPending, Message: "waiting", Time: time.Now()}
	require.NoError(t, reopened.Append(ctx, next))
	assert.Equal(t, 2, next.Seq)
	assert.Equal(t, record.Hash, next.PrevHash)

	records, err := reopened.Query(ctx, "r1")
	require.NoError(t, err)
	assert.NoError(t, audit.Verify(records))
}

func TestLog_Corrupted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte("{not json\n"), 0o644))
	log, err := New(dir)
	require.NoError(t, err)
	_, err = log.Query(context.Background(), "bad")
	assert.ErrorIs(t, err, audit.ErrStorageUnavailable)
	err = log.Append(context.Background(), &audit.Record{RequestID: "bad", Event: audit.EventCreated, To: request.StatusPending})
	assert.ErrorIs(t, err, audit.ErrStorageUnavailable)
}
