package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_Resolve(t *testing.T) {
	root := NewRoot(nil, "/tmp/ws")
	testCases := []struct {
		description string
		location    string
		expect      string
		expectErr   bool
	}{
		{description: "relative", location: "a/b.txt", expect: "a/b.txt"},
		{description: "dot segments inside", location: "a/../b.txt", expect: "b.txt"},
		{description: "absolute inside", location: "/tmp/ws/c.txt", expect: "c.txt"},
		{description: "root", location: "", expect: ""},
		{description: "escape", location: "../etc/passwd", expectErr: true},
		{description: "absolute outside", location: "/etc/passwd", expectErr: true},
		{description: "sibling prefix", location: "/tmp/wsx/a", expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			URL, err := root.Resolve(testCase.location)
			if testCase.expectErr {
				assert.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expect, root.Relative(URL))
		})
	}
}

func TestGenerateDiff(t *testing.T) {
	_, err := GenerateDiff([]byte("a\n"), []byte("a\n"), "x", 0)
	assert.ErrorIs(t, err, ErrNoChange)

	diff, err := GenerateDiff([]byte("a\nb\n"), []byte("a\nc\nd\n"), "x.txt", 0)
	require.NoError(t, err)
	assert.Contains(t, diff.Patch, "--- a/x.txt")
	assert.Contains(t, diff.Patch, "+++ b/x.txt")
	assert.Equal(t, DiffStats{FilesChanged: 1, Insertions: 2, Deletions: 1, Hunks: 1}, diff.Stats)
}

func TestService_Files(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	service := New(baseDir)

	write := &WriteOutput{}
	require.NoError(t, service.Write(ctx, &WriteInput{Path: "docs/a.txt", Content: "one\n"}, write))
	assert.True(t, write.Created)
	assert.Equal(t, "docs/a.txt", write.Path)
	assert.Equal(t, "created docs/a.txt (4 bytes)", write.Summary())

	err := service.Write(ctx, &WriteInput{Path: "docs/a.txt", Content: "two\n"}, &WriteOutput{})
	assert.ErrorIs(t, err, ErrExists)

	update := &WriteOutput{}
	require.NoError(t, service.Write(ctx, &WriteInput{Path: "docs/a.txt", Content: "two\n", Overwrite: true}, update))
	assert.False(t, update.Created)
	assert.Equal(t, 1, update.Stats.Insertions)
	assert.Equal(t, 1, update.Stats.Deletions)
	assert.True(t, strings.HasPrefix(update.Summary(), "updated docs/a.txt"))

	data, err := os.ReadFile(filepath.Join(baseDir, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))

	read := &ReadOutput{}
	require.NoError(t, service.Read(ctx, &ReadInput{Path: "docs/a.txt"}, read))
	assert.Equal(t, "two\n", read.Content)
	assert.Equal(t, "text/plain", read.ContentType)

	list := &ListOutput{}
	require.NoError(t, service.List(ctx, &ListInput{Path: "docs"}, list))
	require.Len(t, list.Assets, 1)
	assert.Equal(t, "a.txt", list.Assets[0].Name)
	assert.Equal(t, "docs/a.txt", list.Assets[0].Path)

	assert.ErrorIs(t, service.Read(ctx, &ReadInput{Path: "../secret"}, &ReadOutput{}), ErrOutsideRoot)

	deleted := &DeleteOutput{}
	require.NoError(t, service.Delete(ctx, &DeleteInput{Path: "docs/a.txt"}, deleted))
	assert.Equal(t, "deleted docs/a.txt", deleted.Summary())
	_, err = os.Stat(filepath.Join(baseDir, "docs", "a.txt"))
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, service.Delete(ctx, &DeleteInput{Path: ""}, &DeleteOutput{}))
}

func TestService_Methods(t *testing.T) {
	service := New(t.TempDir())
	for _, signature := range service.Methods() {
		method, err := service.Method(signature.Name)
		require.NoError(t, err, signature.Name)
		assert.NotNil(t, method)
	}
	_, err := service.Method("format_disk")
	assert.Error(t, err)
}
