// Package sandboxfs adapts the execution sandbox's virtual disk. The
// surface is deliberately narrower than the persistent contract: the sandbox
// only ever receives pushed content from the synchronizer and serves it to
// build tools, so write/read/mkdir/remove/watch is the whole story.
package sandboxfs

import (
	"context"

	"github.com/spf13/afero"

	"github.com/yuki-matsu783/electron-bolt/logging"
	"github.com/yuki-matsu783/electron-bolt/vfs"
	"github.com/yuki-matsu783/electron-bolt/vfspath"
)

// Disk is the sandbox's virtual filesystem. It is ephemeral: content lives
// only for the sandbox session and is rebuilt by the synchronizer after a
// restart.
type Disk struct {
	fs afero.Fs
}

// NewDisk returns an empty sandbox disk.
func NewDisk() *Disk {
	return &Disk{fs: afero.NewMemMapFs()}
}

func diskPath(p string) string {
	return "/" + vfspath.Normalize(p)
}

// WriteFile stores content at path, creating parent directories.
func (d *Disk) WriteFile(ctx context.Context, path string, content []byte) error {
	if !vfspath.IsValid(path) {
		return vfs.ErrInvalidPath(path)
	}
	p := vfspath.Normalize(path)
	if parent := vfspath.Dirname(p); parent != "" {
		if err := d.fs.MkdirAll(diskPath(parent), 0755); err != nil {
			return vfs.WrapNative(err, parent)
		}
	}
	if err := afero.WriteFile(d.fs, diskPath(p), content, 0644); err != nil {
		return vfs.WrapNative(err, p)
	}
	return nil
}

// ReadFile returns the raw content at path.
func (d *Disk) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if !vfspath.IsValid(path) {
		return nil, vfs.ErrInvalidPath(path)
	}
	content, err := afero.ReadFile(d.fs, diskPath(path))
	if err != nil {
		return nil, vfs.WrapNative(err, vfspath.Normalize(path))
	}
	return content, nil
}

// MkdirAll creates a directory and any missing parents.
func (d *Disk) MkdirAll(ctx context.Context, path string) error {
	if !vfspath.IsValid(path) {
		return vfs.ErrInvalidPath(path)
	}
	if err := d.fs.MkdirAll(diskPath(path), 0755); err != nil {
		return vfs.WrapNative(err, vfspath.Normalize(path))
	}
	return nil
}

// Remove deletes a file or directory tree. Removing a missing path is not
// an error; the sandbox copy is best-effort by design.
func (d *Disk) Remove(ctx context.Context, path string) error {
	if !vfspath.IsValid(path) {
		return vfs.ErrInvalidPath(path)
	}
	if err := d.fs.RemoveAll(diskPath(path)); err != nil {
		return vfs.WrapNative(err, vfspath.Normalize(path))
	}
	return nil
}

// Exists reports whether path resolves on the sandbox disk.
func (d *Disk) Exists(ctx context.Context, path string) bool {
	if !vfspath.IsValid(path) {
		return false
	}
	_, err := d.fs.Stat(diskPath(path))
	return err == nil
}

// Stat returns metadata for path.
func (d *Disk) Stat(ctx context.Context, path string) (*vfs.DirectoryEntry, error) {
	if !vfspath.IsValid(path) {
		return nil, vfs.ErrInvalidPath(path)
	}
	p := vfspath.Normalize(path)
	info, err := d.fs.Stat(diskPath(p))
	if err != nil {
		return nil, vfs.WrapNative(err, p)
	}
	kind := vfs.KindFile
	if info.IsDir() {
		kind = vfs.KindDirectory
	}
	return &vfs.DirectoryEntry{
		Name:       info.Name(),
		Path:       p,
		Kind:       kind,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		CreatedAt:  info.ModTime(),
	}, nil
}

// Watch satisfies the contract shape but the sandbox disk has no change
// notification; the returned cleanup is a no-op. Callers must not rely on
// watch events for correctness.
func (d *Disk) Watch(path string, fn vfs.WatchFunc) vfs.CancelFunc {
	logging.Sub("sandbox").Debug("watch requested on sandbox disk, no-op", "path", path)
	return func() {}
}

// Reset drops all content, simulating a sandbox relaunch. The next
// synchronizer tick repopulates the tree without operator intervention.
func (d *Disk) Reset() {
	d.fs = afero.NewMemMapFs()
	logging.Sub("sandbox").Info("sandbox disk reset")
}
