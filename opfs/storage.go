// Package opfs implements the storage capability contract against the
// origin-private project store: a hierarchical tree rooted at a single
// directory, held behind an afero filesystem. The same adapter serves the
// durable on-disk store and the in-memory variant used for scratch projects;
// only watch behavior differs (native notification vs polling).
package opfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jellydator/ttlcache/v3"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/afero"

	"github.com/yuki-matsu783/electron-bolt/logging"
	"github.com/yuki-matsu783/electron-bolt/vfs"
	"github.com/yuki-matsu783/electron-bolt/vfspath"
)

func sub(component string) *slog.Logger { return logging.Sub(component) }

func logEnabled(level slog.Level) bool { return logging.Enabled(level) }

const (
	filePerm     = 0644
	dirPerm      = 0755
	infoCacheTTL = 2 * time.Second
)

// Options tunes a Storage instance.
type Options struct {
	// ReadOnly marks the grant as read-only. Every mutating call fails
	// with PERMISSION_DENIED instead of being silently downgraded.
	ReadOnly bool

	// PollInterval is the snapshot-diff interval used by Watch when the
	// store has no native change notification. Defaults to 2s.
	PollInterval time.Duration

	// Ignore filters entries out of watch batches. Nil ignores nothing
	// beyond hidden entries.
	Ignore *IgnoreList
}

// Storage is the persistent backend adapter.
type Storage struct {
	fs     afero.Fs
	osRoot string // non-empty when backed by a real directory
	opts   Options

	mu          sync.Mutex
	initialized bool
	cancels     []vfs.CancelFunc

	infoCache *ttlcache.Cache[string, vfs.DirectoryEntry]
}

// New returns a Storage rooted at the given directory. The directory is
// created on Initialize.
func New(root string, opts Options) *Storage {
	s := &Storage{osRoot: root, opts: opts}
	if root != "" {
		s.fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}
	s.infoCache = ttlcache.New[string, vfs.DirectoryEntry](
		ttlcache.WithTTL[string, vfs.DirectoryEntry](infoCacheTTL),
	)
	return s
}

// NewMemory returns a Storage over an in-memory tree. Content does not
// survive the process; Capabilities reports PersistenceSupported=false.
func NewMemory(opts Options) *Storage {
	s := New("", opts)
	s.fs = afero.NewMemMapFs()
	return s
}

// Initialize acquires root access. Re-entrant: subsequent calls are no-ops.
func (s *Storage) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if s.fs == nil {
		return vfs.NewError(vfs.CodeEnvironment, "persistent store requires a root directory", "", nil)
	}
	if s.osRoot != "" {
		if err := os.MkdirAll(s.osRoot, dirPerm); err != nil {
			return vfs.WrapNative(err, "")
		}
	}
	s.initialized = true
	sub("opfs").Info("store initialized", "root", s.osRoot, "readOnly", s.opts.ReadOnly)
	return nil
}

// Capabilities returns the descriptor. Callers must not assume the sandbox
// side offers the same surface.
func (s *Storage) Capabilities() vfs.Capabilities {
	caps := vfs.Capabilities{
		CanCreateFiles:       !s.opts.ReadOnly,
		CanCreateDirectories: !s.opts.ReadOnly,
		CanDelete:            !s.opts.ReadOnly,
		CanMove:              !s.opts.ReadOnly,
		CanCopy:              true,
		PersistenceSupported: s.osRoot != "",
		StreamingSupported:   true,
		BinarySupported:      true,
	}
	if s.osRoot != "" {
		if usage, err := disk.Usage(s.osRoot); err == nil {
			caps.AvailableSpace = int64(usage.Free)
		}
	}
	return caps
}

// resolve validates and normalizes a caller path.
func (s *Storage) resolve(path string) (string, error) {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return "", vfs.ErrNotInitialized()
	}
	if !vfspath.IsValid(path) {
		return "", vfs.ErrInvalidPath(path)
	}
	return vfspath.Normalize(path), nil
}

func (s *Storage) writable(path string) error {
	if s.opts.ReadOnly {
		return vfs.ErrPermissionDenied(path)
	}
	return nil
}

// fsPath maps a normalized path onto the afero tree.
func fsPath(p string) string {
	return "/" + p
}

// CreateFile writes a new file, creating parents implicitly. Equivalent to
// WriteFile; used when no prior entry is expected.
func (s *Storage) CreateFile(ctx context.Context, path string, content []byte) error {
	return s.WriteFile(ctx, path, content)
}

// WriteFile overwrites (or creates) a file, creating parents as needed.
func (s *Storage) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return vfs.WrapNative(err, path)
	}
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if vfspath.IsRoot(p) {
		return vfs.ErrInvalidPath(path)
	}
	if err := s.writable(p); err != nil {
		return err
	}
	if parent := vfspath.Dirname(p); parent != "" {
		if err := s.fs.MkdirAll(fsPath(parent), dirPerm); err != nil {
			return vfs.WrapNative(err, parent)
		}
	}
	if err := afero.WriteFile(s.fs, fsPath(p), content, filePerm); err != nil {
		return vfs.WrapNative(err, p)
	}
	s.invalidateInfo(p)
	return nil
}

// ReadFile returns the file content. Text mode rejects invalid UTF-8 rather
// than silently replacing it.
func (s *Storage) ReadFile(ctx context.Context, path string, binary bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, vfs.WrapNative(err, path)
	}
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(s.fs, fsPath(p))
	if err != nil {
		return nil, vfs.WrapNative(err, p)
	}
	if !binary && !utf8.Valid(content) {
		return nil, vfs.NewError(vfs.CodeFilesystem, "file is not valid UTF-8", p, nil)
	}
	return content, nil
}

// DeleteFile removes a single file. Directories are reported as NOT_FOUND,
// matching file-handle resolution semantics.
func (s *Storage) DeleteFile(ctx context.Context, path string) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := s.writable(p); err != nil {
		return err
	}
	info, err := s.fs.Stat(fsPath(p))
	if err != nil {
		return vfs.WrapNative(err, p)
	}
	if info.IsDir() {
		return vfs.ErrNotFound(p)
	}
	if err := s.fs.Remove(fsPath(p)); err != nil {
		return vfs.WrapNative(err, p)
	}
	s.invalidateInfo(p)
	return nil
}

// DeleteDirectory removes a directory. Without recursive, a non-empty
// directory fails with DIRECTORY_NOT_EMPTY and no child is removed. Root
// deletion is always rejected.
func (s *Storage) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if vfspath.IsRoot(p) {
		return vfs.NewError(vfs.CodeInvalidPath, "cannot delete the store root", p, nil)
	}
	if err := s.writable(p); err != nil {
		return err
	}
	info, err := s.fs.Stat(fsPath(p))
	if err != nil {
		return vfs.WrapNative(err, p)
	}
	if !info.IsDir() {
		return vfs.ErrNotFound(p)
	}
	if recursive {
		if err := s.fs.RemoveAll(fsPath(p)); err != nil {
			return vfs.WrapNative(err, p)
		}
		s.invalidateInfo(p)
		return nil
	}
	children, err := afero.ReadDir(s.fs, fsPath(p))
	if err != nil {
		return vfs.WrapNative(err, p)
	}
	if len(children) > 0 {
		return vfs.ErrDirectoryNotEmpty(p)
	}
	if err := s.fs.Remove(fsPath(p)); err != nil {
		return vfs.WrapNative(err, p)
	}
	s.invalidateInfo(p)
	return nil
}

// Exists never fails: any resolution failure reports false.
func (s *Storage) Exists(ctx context.Context, path string) bool {
	p, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, err = s.fs.Stat(fsPath(p))
	return err == nil
}

// CreateDirectory creates a directory, with parents when recursive.
func (s *Storage) CreateDirectory(ctx context.Context, path string, recursive bool) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := s.writable(p); err != nil {
		return err
	}
	if vfspath.IsRoot(p) {
		return nil
	}
	// MkdirAll succeeds on an existing directory, so the duplicate check
	// has to happen up front to report ALREADY_EXISTS in both modes.
	if _, err := s.fs.Stat(fsPath(p)); err == nil {
		return vfs.ErrAlreadyExists(p)
	}
	mk := s.fs.Mkdir
	if recursive {
		mk = func(name string, perm os.FileMode) error { return s.fs.MkdirAll(name, perm) }
	}
	if err := mk(fsPath(p), dirPerm); err != nil {
		if s.Exists(ctx, p) {
			return vfs.ErrAlreadyExists(p)
		}
		return vfs.WrapNative(err, p)
	}
	s.invalidateInfo(p)
	return nil
}

// ReadDirectory lists entries in no guaranteed order. Recursive walks
// depth-first; Pattern filters by name before recursion continues into
// matched directories.
func (s *Storage) ReadDirectory(ctx context.Context, path string, opts vfs.ReadDirectoryOptions) ([]vfs.DirectoryEntry, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return s.listDir(p, opts)
}

func (s *Storage) listDir(p string, opts vfs.ReadDirectoryOptions) ([]vfs.DirectoryEntry, error) {
	infos, err := afero.ReadDir(s.fs, fsPath(p))
	if err != nil {
		return nil, vfs.WrapNative(err, p)
	}
	var entries []vfs.DirectoryEntry
	for _, info := range infos {
		if opts.Pattern != "" {
			matched, matchErr := matchName(opts.Pattern, info.Name())
			if matchErr != nil {
				return nil, vfs.NewError(vfs.CodeInvalidPath, "bad listing pattern", opts.Pattern, matchErr)
			}
			if !matched {
				continue
			}
		}
		child := vfspath.Join(p, info.Name())
		entries = append(entries, entryFromInfo(child, info))
		if opts.Recursive && info.IsDir() {
			nested, err := s.listDir(child, opts)
			if err != nil {
				return nil, err
			}
			entries = append(entries, nested...)
		}
	}
	return entries, nil
}

// GetFileInfo resolves metadata, probing file resolution before directory.
// Results are cached briefly; mutations invalidate the cache.
func (s *Storage) GetFileInfo(ctx context.Context, path string) (*vfs.DirectoryEntry, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if item := s.infoCache.Get(p); item != nil {
		entry := item.Value()
		return &entry, nil
	}
	info, err := s.fs.Stat(fsPath(p))
	if err != nil {
		return nil, vfs.WrapNative(err, p)
	}
	entry := entryFromInfo(p, info)
	s.infoCache.Set(p, entry, ttlcache.DefaultTTL)
	return &entry, nil
}

// Copy duplicates a file or a directory tree on top of the read/write
// primitives. Cost is linear in transferred bytes.
func (s *Storage) Copy(ctx context.Context, source, destination string) error {
	src, err := s.resolve(source)
	if err != nil {
		return err
	}
	dst, err := s.resolve(destination)
	if err != nil {
		return err
	}
	if err := s.writable(dst); err != nil {
		return err
	}
	return s.copyEntry(ctx, src, dst)
}

func (s *Storage) copyEntry(ctx context.Context, src, dst string) error {
	info, err := s.fs.Stat(fsPath(src))
	if err != nil {
		return vfs.WrapNative(err, src)
	}
	if !info.IsDir() {
		content, err := s.ReadFile(ctx, src, true)
		if err != nil {
			return err
		}
		return s.WriteFile(ctx, dst, content)
	}
	if err := s.CreateDirectory(ctx, dst, true); err != nil && vfs.CodeOf(err) != vfs.CodeAlreadyExists {
		return err
	}
	children, err := s.listDir(src, vfs.ReadDirectoryOptions{})
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.copyEntry(ctx, child.Path, vfspath.Join(dst, child.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Move is copy followed by best-effort deletion of the source: file deletion
// is attempted first, directory deletion as the fallback. Not atomic: a
// failure mid-copy can leave both the source and a partial destination.
func (s *Storage) Move(ctx context.Context, source, destination string) error {
	if err := s.Copy(ctx, source, destination); err != nil {
		return err
	}
	if err := s.DeleteFile(ctx, source); err != nil {
		return s.DeleteDirectory(ctx, source, true)
	}
	return nil
}

// CreateReadStream opens the file for streaming reads.
func (s *Storage) CreateReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(fsPath(p))
	if err != nil {
		return nil, vfs.WrapNative(err, p)
	}
	return f, nil
}

// CreateWriteStream opens the file for streaming writes, creating parents.
func (s *Storage) CreateWriteStream(ctx context.Context, path string) (io.WriteCloser, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := s.writable(p); err != nil {
		return nil, err
	}
	if parent := vfspath.Dirname(p); parent != "" {
		if err := s.fs.MkdirAll(fsPath(parent), dirPerm); err != nil {
			return nil, vfs.WrapNative(err, parent)
		}
	}
	f, err := s.fs.OpenFile(fsPath(p), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, vfs.WrapNative(err, p)
	}
	s.invalidateInfo(p)
	return f, nil
}

// Cleanup releases cached handles and stops outstanding watches. Safe to
// call multiple times.
func (s *Storage) Cleanup() error {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	s.infoCache.DeleteAll()
	return nil
}

func (s *Storage) invalidateInfo(p string) {
	s.infoCache.Delete(p)
	s.infoCache.Delete(vfspath.Dirname(p))
}

func entryFromInfo(path string, info os.FileInfo) vfs.DirectoryEntry {
	kind := vfs.KindFile
	size := info.Size()
	if info.IsDir() {
		kind = vfs.KindDirectory
		size = 0
	}
	return vfs.DirectoryEntry{
		Name:       info.Name(),
		Path:       path,
		Kind:       kind,
		Size:       size,
		ModifiedAt: info.ModTime(),
		CreatedAt:  info.ModTime(),
	}
}

func matchName(pattern, name string) (bool, error) {
	matched, err := filepath.Match(pattern, name)
	if err != nil {
		return false, fmt.Errorf("match %q: %w", pattern, err)
	}
	return matched, nil
}
