package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "spans.json")
	require.NoError(t, Init("warden", "0.0.1", fname))

	ctx, parent := StartSpan(context.Background(), "request.submit", KindServer)
	parent.WithAttributes(map[string]string{"kind": "file_write"})
	_, child := StartSpan(ctx, "audit.append", KindInternal)
	EndSpan(child, errors.New("disk full"))
	EndSpan(parent, nil)

	got, ok := SpanFromContext(ctx)
	assert.True(t, ok)
	assert.NotNil(t, got)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), "audit.append")
	assert.Contains(t, string(data), "parent.span_id")
}

func TestNilSpan(t *testing.T) {
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"a": "b"}))
	span.SetStatus(nil)
	EndSpan(nil, nil)
}
