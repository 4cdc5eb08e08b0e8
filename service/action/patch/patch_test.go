package patch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		location := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(location), 0o755))
		require.NoError(t, os.WriteFile(location, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestParse(t *testing.T) {
	text := `*** Begin Patch
*** Add File: new.txt
+hello
+world
*** Delete File: old.txt
*** Update File: main.go
*** Move to: cmd/main.go
@@ func main() {
-	println("a")
+	println("b")
 }
*** End Patch`
	operations, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, operations, 3)
	assert.Equal(t, AddFile{Path: "new.txt", Contents: "hello\nworld\n"}, operations[0])
	assert.Equal(t, DeleteFile{Path: "old.txt"}, operations[1])
	update := operations[2].(UpdateFile)
	assert.Equal(t, "main.go", update.Path)
	assert.Equal(t, "cmd/main.go", update.MovePath)
	require.Len(t, update.Chunks, 1)
	assert.Equal(t, "func main() {", update.Chunks[0].Context)
	assert.Equal(t, []string{"\tprintln(\"a\")", "}"}, update.Chunks[0].OldLines)
	assert.Equal(t, []string{"\tprintln(\"b\")", "}"}, update.Chunks[0].NewLines)

	for _, invalid := range []string{
		"*** Add File: a.txt\n+x\n*** End Patch",
		"*** Begin Patch\n*** Add File: a.txt\n+x\n",
		"*** Begin Patch\n*** End Patch\nextra",
	} {
		_, err = Parse(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestApplyChunks(t *testing.T) {
	testCases := []struct {
		description string
		previous    string
		chunks      []Chunk
		expect      string
		expectErr   bool
	}{
		{
			description: "replace line",
			previous:    "a\nb\nc\n",
			chunks:      []Chunk{{OldLines: []string{"b"}, NewLines: []string{"B"}}},
			expect:      "a\nB\nc\n",
		},
		{
			description: "whitespace insensitive",
			previous:    "if x {\n    y()\n}\n",
			chunks:      []Chunk{{OldLines: []string{"\ty()"}, NewLines: []string{"\tz()"}}},
			expect:      "if x {\n\tz()\n}\n",
		},
		{
			description: "context anchor",
			previous:    "f1\nret\nf2\nret\n",
			chunks:      []Chunk{{Context: "f2", OldLines: []string{"ret"}, NewLines: []string{"return"}}},
			expect:      "f1\nret\nf2\nreturn\n",
		},
		{
			description: "missing lines",
			previous:    "a\n",
			chunks:      []Chunk{{OldLines: []string{"zzz"}, NewLines: []string{"y"}}},
			expectErr:   true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actual, err := applyChunks([]byte(testCase.previous), testCase.chunks)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expect, string(actual))
		})
	}
}

func TestService_ApplyUnified(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "one\ntwo\nthree\n"})
	service := New(dir)

	output := &ApplyOutput{}
	err := service.Apply(ctx, &ApplyInput{Patch: `diff --git a/a.txt b/a.txt
--- a/a.txt
+++ b/a.txt
@@ -1,3 +1,3 @@
 one
-two
+TWO
 three
diff --git a/b.txt b/b.txt
new file mode 100644
--- /dev/null
+++ b/b.txt
@@ -0,0 +1,1 @@
+fresh
`}, output)
	require.NoError(t, err)
	assert.Equal(t, "unified", output.Format)
	assert.Equal(t, []string{"a.txt", "b.txt"}, output.Files)
	assert.Equal(t, 2, output.Stats.FilesChanged)
	assert.Equal(t, "one\nTWO\nthree\n", readFile(t, dir, "a.txt"))
	assert.Equal(t, "fresh\n", readFile(t, dir, "b.txt"))
}

func TestService_ApplyEnvelope(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"main.go": "package main\n\nfunc main() {\n\tprintln(\"a\")\n}\n", "old.txt": "x\n"})
	service := New(dir)

	output := &ApplyOutput{}
	err := service.Apply(ctx, &ApplyInput{Patch: `*** Begin Patch
*** Update File: main.go
@@ func main() {
-	println("a")
+	println("b")
*** Delete File: old.txt
*** End Patch`}, output)
	require.NoError(t, err)
	assert.Equal(t, "envelope", output.Format)
	assert.Equal(t, "package main\n\nfunc main() {\n\tprintln(\"b\")\n}\n", readFile(t, dir, "main.go"))
	_, err = os.Stat(filepath.Join(dir, "old.txt"))
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, output.Summary(), "applied envelope patch")
}

func TestService_RollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "one\n", "b.txt": "two\n"})
	service := New(dir)

	err := service.Apply(ctx, &ApplyInput{Patch: `*** Begin Patch
*** Update File: a.txt
-one
+ONE
*** Add File: c.txt
+new
*** Update File: b.txt
-missing
+x
*** End Patch`}, &ApplyOutput{})
	require.Error(t, err)
	assert.Equal(t, "one\n", readFile(t, dir, "a.txt"))
	assert.Equal(t, "two\n", readFile(t, dir, "b.txt"))
	_, statErr := os.Stat(filepath.Join(dir, "c.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestService_Rejects(t *testing.T) {
	ctx := context.Background()
	service := New(t.TempDir())
	assert.ErrorIs(t, service.Apply(ctx, &ApplyInput{Patch: "rm -rf /"}, &ApplyOutput{}), ErrUnsupportedFormat)
	err := service.Apply(ctx, &ApplyInput{Patch: "*** Begin Patch\n*** Add File: ../escape.txt\n+x\n*** End Patch"}, &ApplyOutput{})
	assert.Error(t, err)
}
