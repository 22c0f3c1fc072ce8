// Package mirror holds the authoritative in-memory snapshot of the project
// tree that the UI renders and the action layer writes through. Every write
// performs the backend call first and commits the in-memory change only on
// success, so a failed write never lets the mirror and the caller's state
// diverge. Change events reported by the backend watch are applied on top,
// filtered through the durable deleted-path set so a polling race can never
// resurrect content the user removed.
package mirror

import (
	"context"
	"log/slog"
	"sort"
	gosync "sync"

	"github.com/maruel/natural"
	"github.com/samber/lo"

	"github.com/yuki-matsu783/electron-bolt/logging"
	"github.com/yuki-matsu783/electron-bolt/store"
	"github.com/yuki-matsu783/electron-bolt/vfs"
	"github.com/yuki-matsu783/electron-bolt/vfspath"
)

func sub(component string) *slog.Logger { return logging.Sub(component) }

// Mirror is created once per project session (or re-created on a backend
// switch), populated by a full recursive listing, then kept live by
// explicit-operation echoes and the backend's best-effort event stream.
// It is torn down, never persisted; durable state lives in the backend and
// the deleted-path set.
type Mirror struct {
	mu      gosync.RWMutex
	backend vfs.Storage
	tombs   *store.Tombstones
	bus     *Bus

	dirents   map[string]Dirent
	baseline  map[string]string // modification ledger: path → content at last confirmed write
	fileCount int
}

// New initializes the backend, loads the full tree, and applies the
// tombstone cleanup pass. The full-tree read happens once per mirror
// lifetime and is O(total files).
func New(ctx context.Context, backend vfs.Storage, tombs *store.Tombstones) (*Mirror, error) {
	l := sub("mirror")
	if err := backend.Initialize(ctx); err != nil {
		return nil, err
	}

	m := &Mirror{
		backend:  backend,
		tombs:    tombs,
		bus:      NewBus(),
		dirents:  make(map[string]Dirent),
		baseline: make(map[string]string),
	}

	entries, err := backend.ReadDirectory(ctx, "", vfs.ReadDirectoryOptions{Recursive: true})
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		p := vfspath.Normalize(entry.Path)
		if entry.Kind == vfs.KindDirectory {
			m.dirents[p] = folderDirent()
			continue
		}
		raw, err := backend.ReadFile(ctx, p, true)
		if err != nil {
			l.Warn("skipping unreadable file during load", "path", p, "err", err)
			continue
		}
		m.ensureAncestors(p)
		m.dirents[p] = newFileDirent(raw)
		m.fileCount++
	}

	// Cleanup pass: drop anything the user already deleted. This guards
	// against the backend's polling-based change detection re-reporting a
	// deletion race as a creation across a reload.
	if tombs != nil {
		for p, d := range m.dirents {
			if tombs.Covers(p) {
				delete(m.dirents, p)
				if d.Kind == DirentFile {
					m.fileCount--
				}
			}
		}
	}

	l.Info("mirror loaded", "entries", len(m.dirents), "files", m.fileCount)
	return m, nil
}

// Backend returns the active backend, e.g. for wiring a watch.
func (m *Mirror) Backend() vfs.Storage { return m.backend }

// Subscribe registers a UI subscriber for change notifications.
func (m *Mirror) Subscribe() chan Change { return m.bus.Subscribe() }

// Unsubscribe removes a subscriber.
func (m *Mirror) Unsubscribe(ch chan Change) { m.bus.Unsubscribe(ch) }

func (m *Mirror) normalize(path string) (string, error) {
	if !vfspath.IsValid(path) {
		return "", vfs.ErrInvalidPath(path)
	}
	p := vfspath.Normalize(path)
	if p == "" {
		return "", vfs.ErrInvalidPath(path)
	}
	return p, nil
}

// CreateFile writes a new file through the backend and commits it to the
// tree. A create at a tombstoned path clears the tombstone.
func (m *Mirror) CreateFile(ctx context.Context, path string, content []byte) error {
	p, err := m.normalize(path)
	if err != nil {
		return err
	}
	if err := m.backend.CreateFile(ctx, p, encodeForWrite(content)); err != nil {
		return err
	}
	m.clearTombstone(p)

	m.mu.Lock()
	existing, existed := m.dirents[p]
	m.ensureAncestors(p)
	m.dirents[p] = newFileDirent(content)
	if !existed || existing.Kind != DirentFile {
		m.fileCount++
	}
	m.mu.Unlock()

	m.bus.Publish(Change{Kind: vfs.EventAddFile, Path: p})
	return nil
}

// SaveFile overwrites an existing file. The first save after a load seeds
// the modification ledger with the prior content so later diffing can
// report what changed.
func (m *Mirror) SaveFile(ctx context.Context, path string, content []byte) error {
	p, err := m.normalize(path)
	if err != nil {
		return err
	}
	m.mu.RLock()
	prior, ok := m.dirents[p]
	m.mu.RUnlock()
	if !ok || prior.Kind != DirentFile {
		return vfs.ErrNotFound(p)
	}

	if err := m.backend.WriteFile(ctx, p, encodeForWrite(content)); err != nil {
		return err
	}

	m.mu.Lock()
	if _, seeded := m.baseline[p]; !seeded {
		m.baseline[p] = prior.Content
	}
	m.dirents[p] = newFileDirent(content)
	m.mu.Unlock()

	m.bus.Publish(Change{Kind: vfs.EventChangeFile, Path: p})
	return nil
}

// CreateFolder creates a directory through the backend and commits it.
func (m *Mirror) CreateFolder(ctx context.Context, path string) error {
	p, err := m.normalize(path)
	if err != nil {
		return err
	}
	if err := m.backend.CreateDirectory(ctx, p, true); err != nil && vfs.CodeOf(err) != vfs.CodeAlreadyExists {
		return err
	}
	m.clearTombstone(p)

	m.mu.Lock()
	m.ensureAncestors(p)
	m.dirents[p] = folderDirent()
	m.mu.Unlock()

	m.bus.Publish(Change{Kind: vfs.EventAddDir, Path: p})
	return nil
}

// DeleteFile removes a file. The tombstone is persisted after the backend
// delete succeeds and before DeleteFile returns.
func (m *Mirror) DeleteFile(ctx context.Context, path string) error {
	p, err := m.normalize(path)
	if err != nil {
		return err
	}
	if err := m.backend.DeleteFile(ctx, p); err != nil {
		return err
	}
	if m.tombs != nil {
		if err := m.tombs.Add(p); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if d, ok := m.dirents[p]; ok && d.Kind == DirentFile {
		delete(m.dirents, p)
		delete(m.baseline, p)
		m.fileCount--
	}
	m.mu.Unlock()

	m.bus.Publish(Change{Kind: vfs.EventRemoveFile, Path: p})
	return nil
}

// DeleteFolder removes a directory tree. All in-memory descendants are
// cascade-cleared after the backend delete succeeds.
func (m *Mirror) DeleteFolder(ctx context.Context, path string) error {
	p, err := m.normalize(path)
	if err != nil {
		return err
	}
	if err := m.backend.DeleteDirectory(ctx, p, true); err != nil {
		return err
	}
	if m.tombs != nil {
		if err := m.tombs.Add(p); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.removeSubtreeLocked(p)
	m.mu.Unlock()

	m.bus.Publish(Change{Kind: vfs.EventRemoveDir, Path: p})
	return nil
}

// GetFile returns the Dirent at path.
func (m *Mirror) GetFile(path string) (Dirent, bool) {
	p := vfspath.Normalize(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dirents[p]
	return d, ok
}

// GetModifiedFiles reports every path saved since the ledger was last
// consumed, mapped to its current content.
func (m *Mirror) GetModifiedFiles() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.baseline))
	for p := range m.baseline {
		if d, ok := m.dirents[p]; ok && d.Kind == DirentFile {
			out[p] = d.Content
		}
	}
	return out
}

// ResetFileModifications clears the ledger; the caller considers the
// history consumed, e.g. when a new assistant turn begins.
func (m *Mirror) ResetFileModifications() {
	m.mu.Lock()
	m.baseline = make(map[string]string)
	m.mu.Unlock()
}

// FileCount returns the number of file entries.
func (m *Mirror) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fileCount
}

// Paths returns all entry paths in natural order for tree rendering.
func (m *Mirror) Paths() []string {
	m.mu.RLock()
	paths := lo.Keys(m.dirents)
	m.mu.RUnlock()
	sort.Slice(paths, func(i, j int) bool { return natural.Less(paths[i], paths[j]) })
	return paths
}

// Snapshot returns a copy of the current path→Dirent map.
func (m *Mirror) Snapshot() map[string]Dirent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Dirent, len(m.dirents))
	for p, d := range m.dirents {
		out[p] = d
	}
	return out
}

// ProcessEvents applies a coalesced batch of backend-reported changes.
// Events at or under a tombstoned path are discarded. For a given path the
// last processed event wins; there is no ordering guarantee beyond that.
func (m *Mirror) ProcessEvents(events []vfs.Event) {
	l := sub("mirror")
	for _, ev := range events {
		p := vfspath.Normalize(ev.Path)
		if p == "" {
			continue
		}
		if m.tombs != nil && m.tombs.Covers(p) {
			if logEnabled(slog.LevelDebug) {
				l.Debug("event suppressed by tombstone", "kind", ev.Kind, "path", p)
			}
			continue
		}

		m.mu.Lock()
		switch ev.Kind {
		case vfs.EventAddDir:
			m.ensureAncestors(p)
			m.dirents[p] = folderDirent()
		case vfs.EventRemoveDir:
			m.removeSubtreeLocked(p)
		case vfs.EventAddFile, vfs.EventChangeFile:
			existing, existed := m.dirents[p]
			m.ensureAncestors(p)
			m.dirents[p] = newFileDirent(ev.Payload)
			if ev.Kind == vfs.EventAddFile && (!existed || existing.Kind != DirentFile) {
				m.fileCount++
			}
		case vfs.EventRemoveFile:
			if d, ok := m.dirents[p]; ok && d.Kind == DirentFile {
				delete(m.dirents, p)
				delete(m.baseline, p)
				m.fileCount--
			}
		}
		m.mu.Unlock()

		m.bus.Publish(Change{Kind: ev.Kind, Path: p})
	}
}

// Close tears the mirror down. In-memory state is discarded, not persisted.
func (m *Mirror) Close() {
	m.mu.Lock()
	m.dirents = make(map[string]Dirent)
	m.baseline = make(map[string]string)
	m.fileCount = 0
	m.mu.Unlock()
}

func (m *Mirror) clearTombstone(p string) {
	if m.tombs == nil {
		return
	}
	if err := m.tombs.Clear(p); err != nil {
		sub("mirror").Warn("tombstone clear failed", "path", p, "err", err)
	}
}

// ensureAncestors keeps the orphan invariant: every ancestor of an entry has
// a folder Dirent. Callers hold the lock.
func (m *Mirror) ensureAncestors(p string) {
	for dir := vfspath.Dirname(p); dir != ""; dir = vfspath.Dirname(dir) {
		if _, ok := m.dirents[dir]; ok {
			return
		}
		m.dirents[dir] = folderDirent()
	}
}

// removeSubtreeLocked clears an entry and every in-memory descendant,
// keeping the file counter in step. Callers hold the lock.
func (m *Mirror) removeSubtreeLocked(p string) {
	for path, d := range m.dirents {
		if vfspath.IsAncestor(p, path) {
			delete(m.dirents, path)
			delete(m.baseline, path)
			if d.Kind == DirentFile {
				m.fileCount--
			}
		}
	}
}

func logEnabled(level slog.Level) bool { return logging.Enabled(level) }
