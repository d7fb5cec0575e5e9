package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddFile(t *testing.T) {
	text := `*** Begin Patch
*** Add File: greeting.txt
+hello
+world
*** End Patch`

	p, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	op := p.Operations[0]
	assert.Equal(t, OpAdd, op.Type)
	assert.Equal(t, "greeting.txt", op.Path)
	assert.Equal(t, []string{"hello", "world"}, op.ContentLines)
}

func TestParseMissingBeginPatchErrors(t *testing.T) {
	_, err := Parse("*** Add File: x.txt\n+y")
	assert.Error(t, err)
}

func TestParseUpdateFileWithHunk(t *testing.T) {
	text := `*** Begin Patch
*** Update File: main.go
@@ func main()
 line one
-old line
+new line
 line three
*** End Patch`

	p, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	op := p.Operations[0]
	assert.Equal(t, OpUpdate, op.Type)
	require.Len(t, op.Hunks, 1)
	assert.Equal(t, []string{"func main()"}, op.Hunks[0].Anchors)
	require.Len(t, op.Hunks[0].Lines, 4)
}

func TestApplyAddCreatesFile(t *testing.T) {
	dir := t.TempDir()
	changes, err := ApplyText(`*** Begin Patch
*** Add File: sub/hello.txt
+hi there
*** End Patch`, dir)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	data, err := os.ReadFile(filepath.Join(dir, "sub", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there\n", string(data))
}

func TestApplyUpdateReplacesMatchedLines(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\n\nfunc main() {\n\tprintln(\"old\")\n}\n"), 0644))

	changes, err := ApplyText(`*** Begin Patch
*** Update File: main.go
@@ func main()
 func main() {
-	println("old")
+	println("new")
 }
*** End Patch`, dir)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].Deletions)
	assert.Equal(t, 1, changes[0].Additions)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `println("new")`)
	assert.NotContains(t, string(data), `println("old")`)
}

func TestApplyUpdateMissingMatchReturnsError(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\n"), 0644))

	_, err := ApplyText(`*** Begin Patch
*** Update File: main.go
@@ func nowhere()
-does not exist
+replacement
*** End Patch`, dir)
	assert.Error(t, err)
}

func TestApplyDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("bye\n"), 0644))

	_, err := ApplyText(`*** Begin Patch
*** Delete File: gone.txt
*** End Patch`, dir)
	require.NoError(t, err)

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestResolvePathRejectsAbsolutePaths(t *testing.T) {
	a := NewApplier(t.TempDir())
	_, err := a.resolvePath("/etc/passwd")
	assert.Error(t, err)
}

func TestSummaryFormatsEachChangeType(t *testing.T) {
	out := Summary([]Change{
		{Type: "add", Path: "a.txt", LinesAdded: 2},
		{Type: "delete", Path: "b.txt"},
		{Type: "update", Path: "c.txt", Additions: 1, Deletions: 3},
	})
	assert.Contains(t, out, "A a.txt (+2)")
	assert.Contains(t, out, "D b.txt")
	assert.Contains(t, out, "M c.txt (+1/-3)")
}
