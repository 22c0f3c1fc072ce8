package sandboxfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuki-matsu783/electron-bolt/vfs"
)

func TestWriteRead(t *testing.T) {
	d := NewDisk()
	ctx := context.Background()

	require.NoError(t, d.WriteFile(ctx, "src/index.ts", []byte("export {}")))

	content, err := d.ReadFile(ctx, "src/index.ts")
	require.NoError(t, err)
	assert.Equal(t, "export {}", string(content))

	assert.True(t, d.Exists(ctx, "src"))
	assert.True(t, d.Exists(ctx, "src/index.ts"))
}

func TestReadFile_NotFound(t *testing.T) {
	d := NewDisk()
	_, err := d.ReadFile(context.Background(), "missing.txt")
	assert.Equal(t, vfs.CodeNotFound, vfs.CodeOf(err))
}

func TestInvalidPath(t *testing.T) {
	d := NewDisk()
	ctx := context.Background()

	err := d.WriteFile(ctx, "../out", []byte("x"))
	assert.Equal(t, vfs.CodeInvalidPath, vfs.CodeOf(err))
	assert.False(t, d.Exists(ctx, "../out"))
}

func TestRemove_MissingPathTolerated(t *testing.T) {
	d := NewDisk()
	ctx := context.Background()

	require.NoError(t, d.Remove(ctx, "never/existed"))

	require.NoError(t, d.WriteFile(ctx, "dir/a.txt", []byte("x")))
	require.NoError(t, d.Remove(ctx, "dir"))
	assert.False(t, d.Exists(ctx, "dir/a.txt"))
	assert.False(t, d.Exists(ctx, "dir"))
}

func TestStat(t *testing.T) {
	d := NewDisk()
	ctx := context.Background()

	require.NoError(t, d.WriteFile(ctx, "a/f.bin", []byte{1, 2, 3}))

	info, err := d.Stat(ctx, "a/f.bin")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindFile, info.Kind)
	assert.Equal(t, int64(3), info.Size)

	info, err = d.Stat(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDirectory, info.Kind)
}

func TestReset_DropsEverything(t *testing.T) {
	d := NewDisk()
	ctx := context.Background()

	require.NoError(t, d.WriteFile(ctx, "keep/me.txt", []byte("x")))
	d.Reset()

	assert.False(t, d.Exists(ctx, "keep/me.txt"))
	require.NoError(t, d.WriteFile(ctx, "fresh.txt", []byte("y")))
	assert.True(t, d.Exists(ctx, "fresh.txt"))
}

func TestWatch_NoopCancel(t *testing.T) {
	d := NewDisk()
	cancel := d.Watch("", func([]vfs.Event) {})
	require.NotNil(t, cancel)
	cancel()
}
