package opfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_Match(t *testing.T) {
	il := NewIgnoreList("node_modules/", "*.log", "dist/")

	assert.True(t, il.Match("node_modules", true))
	assert.False(t, il.Match("node_modules", false), "dir-only pattern skips files")
	assert.True(t, il.Match("debug.log", false))
	assert.True(t, il.Match("dist", true))
	assert.False(t, il.Match("src", true))
}

func TestIgnoreList_NilSafe(t *testing.T) {
	var il *IgnoreList
	assert.False(t, il.Match("anything", true))
}

func TestLoadIgnoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".boltignore")
	require.NoError(t, os.WriteFile(path, []byte("# deps\nnode_modules/\n\n*.tmp\n"), 0644))

	il := LoadIgnoreFile(path)
	assert.True(t, il.Match("node_modules", true))
	assert.True(t, il.Match("scratch.tmp", false))
	assert.False(t, il.Match("# deps", false), "comments are not patterns")
}

func TestLoadIgnoreFile_Missing(t *testing.T) {
	il := LoadIgnoreFile(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, il.Match("node_modules", true))
}

func TestDefaultIgnore(t *testing.T) {
	il := DefaultIgnore()
	assert.True(t, il.Match(".git", true))
	assert.True(t, il.Match("node_modules", true))
	assert.False(t, il.Match("main.go", false))
}
