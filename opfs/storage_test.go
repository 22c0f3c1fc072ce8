package opfs

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuki-matsu783/electron-bolt/vfs"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s := NewMemory(Options{})
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Cleanup() }) //nolint:errcheck
	return s
}

func TestInitialize_Reentrant(t *testing.T) {
	s := NewMemory(Options{})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))
}

func TestInitialize_EnvironmentError(t *testing.T) {
	s := New("", Options{})
	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, vfs.CodeEnvironment, vfs.CodeOf(err))
}

func TestOps_RequireInitialize(t *testing.T) {
	s := NewMemory(Options{})
	ctx := context.Background()

	err := s.WriteFile(ctx, "a.txt", []byte("x"))
	assert.Equal(t, vfs.CodeNotInitialized, vfs.CodeOf(err))

	_, err = s.ReadFile(ctx, "a.txt", false)
	assert.Equal(t, vfs.CodeNotInitialized, vfs.CodeOf(err))

	assert.False(t, s.Exists(ctx, "a.txt"))
}

func TestWriteRead_CreatesParents(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "src/deep/nested/main.go", []byte("package main")))

	content, err := s.ReadFile(ctx, "src/deep/nested/main.go", false)
	require.NoError(t, err)
	assert.Equal(t, "package main", string(content))

	info, err := s.GetFileInfo(ctx, "src/deep")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDirectory, info.Kind)
}

func TestWriteRead_EquivalentPathSpellings(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "/a//b/", []byte("hi")))
	content, err := s.ReadFile(ctx, "a/b", false)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))
}

func TestReadFile_InvalidUTF8(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	raw := []byte{0xff, 0xfe, 0x00, 0x41}

	require.NoError(t, s.WriteFile(ctx, "blob.bin", raw))

	_, err := s.ReadFile(ctx, "blob.bin", false)
	require.Error(t, err)
	assert.Equal(t, vfs.CodeFilesystem, vfs.CodeOf(err))

	got, err := s.ReadFile(ctx, "blob.bin", true)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestReadFile_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.ReadFile(context.Background(), "missing.txt", false)
	assert.Equal(t, vfs.CodeNotFound, vfs.CodeOf(err))
}

func TestInvalidPath_Rejected(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.WriteFile(ctx, "../escape.txt", []byte("x"))
	assert.Equal(t, vfs.CodeInvalidPath, vfs.CodeOf(err))

	_, err = s.ReadFile(ctx, "a/../../b", false)
	assert.Equal(t, vfs.CodeInvalidPath, vfs.CodeOf(err))

	assert.False(t, s.Exists(ctx, "../escape.txt"))
}

func TestDeleteFile(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "a/b.txt", []byte("x")))
	require.NoError(t, s.DeleteFile(ctx, "a/b.txt"))
	assert.False(t, s.Exists(ctx, "a/b.txt"))

	err := s.DeleteFile(ctx, "a/b.txt")
	assert.Equal(t, vfs.CodeNotFound, vfs.CodeOf(err))

	// Directories are not files.
	err = s.DeleteFile(ctx, "a")
	assert.Equal(t, vfs.CodeNotFound, vfs.CodeOf(err))
	assert.True(t, s.Exists(ctx, "a"))
}

func TestDeleteDirectory_NonEmptyNeedsRecursive(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "dir/child.txt", []byte("x")))

	err := s.DeleteDirectory(ctx, "dir", false)
	assert.Equal(t, vfs.CodeDirectoryNotEmpty, vfs.CodeOf(err))
	assert.True(t, s.Exists(ctx, "dir/child.txt"), "no child may be removed")

	require.NoError(t, s.DeleteDirectory(ctx, "dir", true))
	assert.False(t, s.Exists(ctx, "dir"))
}

func TestDeleteDirectory_RootAlwaysRejected(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, recursive := range []bool{false, true} {
		err := s.DeleteDirectory(ctx, "", recursive)
		require.Error(t, err, "recursive=%v", recursive)
		err = s.DeleteDirectory(ctx, "/", recursive)
		require.Error(t, err, "recursive=%v", recursive)
	}
}

func TestCreateDirectory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDirectory(ctx, "a/b/c", true))
	info, err := s.GetFileInfo(ctx, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDirectory, info.Kind)

	// Re-creating an existing directory reports ALREADY_EXISTS in both
	// modes; MkdirAll alone would silently succeed.
	err = s.CreateDirectory(ctx, "a/b/c", true)
	assert.Equal(t, vfs.CodeAlreadyExists, vfs.CodeOf(err))
	err = s.CreateDirectory(ctx, "a/b/c", false)
	assert.Equal(t, vfs.CodeAlreadyExists, vfs.CodeOf(err))
}

func TestReadDirectory_RecursiveAndPattern(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "src/app.ts", []byte("a")))
	require.NoError(t, s.WriteFile(ctx, "src/lib/util.ts", []byte("b")))
	require.NoError(t, s.WriteFile(ctx, "readme.md", []byte("c")))

	entries, err := s.ReadDirectory(ctx, "", vfs.ReadDirectoryOptions{Recursive: true})
	require.NoError(t, err)
	paths := map[string]vfs.Kind{}
	for _, e := range entries {
		paths[e.Path] = e.Kind
	}
	assert.Equal(t, vfs.KindDirectory, paths["src"])
	assert.Equal(t, vfs.KindDirectory, paths["src/lib"])
	assert.Equal(t, vfs.KindFile, paths["src/app.ts"])
	assert.Equal(t, vfs.KindFile, paths["src/lib/util.ts"])
	assert.Equal(t, vfs.KindFile, paths["readme.md"])

	filtered, err := s.ReadDirectory(ctx, "src", vfs.ReadDirectoryOptions{Pattern: "*.ts"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "src/app.ts", filtered[0].Path)
}

func TestGetFileInfo(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "f.txt", []byte("hello")))

	info, err := s.GetFileInfo(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindFile, info.Kind)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "f.txt", info.Name)

	_, err = s.GetFileInfo(ctx, "nope")
	assert.Equal(t, vfs.CodeNotFound, vfs.CodeOf(err))
}

func TestCopy_FileAndDirectory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "proj/a.txt", []byte("one")))
	require.NoError(t, s.WriteFile(ctx, "proj/sub/b.txt", []byte("two")))

	require.NoError(t, s.Copy(ctx, "proj/a.txt", "backup/a.txt"))
	content, err := s.ReadFile(ctx, "backup/a.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "one", string(content))

	require.NoError(t, s.Copy(ctx, "proj", "proj2"))
	content, err = s.ReadFile(ctx, "proj2/sub/b.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))
	assert.True(t, s.Exists(ctx, "proj/sub/b.txt"), "copy keeps the source")
}

func TestMove(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.WriteFile(ctx, "old/f.txt", []byte("data")))
	require.NoError(t, s.Move(ctx, "old/f.txt", "new/f.txt"))

	assert.False(t, s.Exists(ctx, "old/f.txt"))
	content, err := s.ReadFile(ctx, "new/f.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	require.NoError(t, s.Move(ctx, "old", "archived"))
	assert.False(t, s.Exists(ctx, "old"))
	assert.True(t, s.Exists(ctx, "archived"))
}

func TestStreams_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	w, err := s.CreateWriteStream(ctx, "big/payload.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.CreateReadStream(ctx, "big/payload.bin")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "streamed content", string(got))
}

func TestReadOnlyGrant(t *testing.T) {
	s := NewMemory(Options{ReadOnly: true})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	err := s.WriteFile(ctx, "a.txt", []byte("x"))
	assert.Equal(t, vfs.CodePermissionDenied, vfs.CodeOf(err))

	err = s.CreateDirectory(ctx, "d", true)
	assert.Equal(t, vfs.CodePermissionDenied, vfs.CodeOf(err))

	err = s.DeleteFile(ctx, "a.txt")
	assert.Equal(t, vfs.CodePermissionDenied, vfs.CodeOf(err))

	caps := s.Capabilities()
	assert.False(t, caps.CanCreateFiles)
	assert.False(t, caps.CanDelete)
	assert.True(t, caps.CanCopy)
}

func TestCapabilities_MemoryNotPersistent(t *testing.T) {
	s := newTestStorage(t)
	caps := s.Capabilities()
	assert.False(t, caps.PersistenceSupported)
	assert.True(t, caps.BinarySupported)
	assert.True(t, caps.StreamingSupported)
}

func TestScenario_CreateListDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateFile(ctx, "src/index.js", []byte("console.log(1)")))

	entries, err := s.ReadDirectory(ctx, "", vfs.ReadDirectoryOptions{Recursive: true})
	require.NoError(t, err)
	var files []vfs.DirectoryEntry
	for _, e := range entries {
		if e.Kind == vfs.KindFile {
			files = append(files, e)
		}
	}
	require.Len(t, files, 1)
	assert.Equal(t, "src/index.js", files[0].Path)
	assert.Equal(t, int64(len("console.log(1)")), files[0].Size)

	require.NoError(t, s.DeleteFile(ctx, "src/index.js"))

	entries, err = s.ReadDirectory(ctx, "src", vfs.ReadDirectoryOptions{Recursive: true})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatch_PollingReportsChanges(t *testing.T) {
	s := NewMemory(Options{PollInterval: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	batches := make(chan []vfs.Event, 16)
	cancel, err := s.Watch("", func(events []vfs.Event) { batches <- events })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.WriteFile(ctx, "src/app.js", []byte("v1")))

	seen := collectEvents(t, batches, 2*time.Second, func(got map[string]vfs.EventKind) bool {
		return got["src"] == vfs.EventAddDir && got["src/app.js"] == vfs.EventAddFile
	})
	assert.Equal(t, vfs.EventAddFile, seen["src/app.js"])

	require.NoError(t, s.DeleteFile(ctx, "src/app.js"))
	seen = collectEvents(t, batches, 2*time.Second, func(got map[string]vfs.EventKind) bool {
		return got["src/app.js"] == vfs.EventRemoveFile
	})
	assert.Equal(t, vfs.EventRemoveFile, seen["src/app.js"])
}

// collectEvents folds incoming batches until done reports satisfaction.
func collectEvents(t *testing.T, batches <-chan []vfs.Event, timeout time.Duration, done func(map[string]vfs.EventKind) bool) map[string]vfs.EventKind {
	t.Helper()
	got := map[string]vfs.EventKind{}
	deadline := time.After(timeout)
	for {
		select {
		case batch := <-batches:
			for _, ev := range batch {
				got[ev.Path] = ev.Kind
			}
			if done(got) {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", got)
			return got
		}
	}
}

func TestFromSetting(t *testing.T) {
	s, err := FromSetting(BackendMemory, "", Options{})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	s, err = FromSetting(BackendPersistent, t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.Capabilities().PersistenceSupported)

	_, err = FromSetting("gopher-drive", "", Options{})
	require.Error(t, err)
}
