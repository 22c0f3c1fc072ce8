// Package store persists the small amount of state that must outlive a
// project mirror: the deleted-path set and the active backend selection.
// Both live in a storm (bbolt) key-value database kept outside the storage
// backend itself, so a tombstone survives a reload even when the backend's
// own polling-based change detection briefly reports the path as present.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/asdine/storm/v3"

	"github.com/yuki-matsu783/electron-bolt/logging"
	"github.com/yuki-matsu783/electron-bolt/vfspath"
)

const schemaVersion = 1

const (
	metaBucket     = "meta"
	vfsBucket      = "vfs"
	settingsBucket = "settings"

	schemaKey    = "schemaVersion"
	tombstoneKey = "deletedPaths"
	backendKey   = "activeBackend"
)

// DB wraps the storm database holding durable filesystem-layer state.
type DB struct {
	db *storm.DB
}

// Open opens (or creates) the database at path and verifies the schema
// version stored in the meta bucket.
func Open(path string) (*DB, error) {
	l := logging.Sub("store")
	l.Info("opening state database", "path", path)

	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	var version int
	err = db.Get(metaBucket, schemaKey, &version)
	if errors.Is(err, storm.ErrNotFound) {
		if err := db.Set(metaBucket, schemaKey, schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("set schema version: %w", err)
		}
		l.Info("schema created", "version", schemaVersion)
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	} else if version != schemaVersion {
		db.Close()
		return nil, fmt.Errorf("unsupported schema version %d (want %d)", version, schemaVersion)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// ActiveBackend returns the persisted backend selection, "" when unset.
func (d *DB) ActiveBackend() (string, error) {
	var name string
	err := d.db.Get(settingsBucket, backendKey, &name)
	if errors.Is(err, storm.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read active backend: %w", err)
	}
	return name, nil
}

// SetActiveBackend persists the backend selection used by the factory on
// the next session start.
func (d *DB) SetActiveBackend(name string) error {
	if err := d.db.Set(settingsBucket, backendKey, name); err != nil {
		return fmt.Errorf("persist active backend: %w", err)
	}
	return nil
}

// Tombstones loads the durable deleted-path set.
func (d *DB) Tombstones() (*Tombstones, error) {
	var paths []string
	err := d.db.Get(vfsBucket, tombstoneKey, &paths)
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return nil, fmt.Errorf("load deleted paths: %w", err)
	}
	t := &Tombstones{db: d.db, set: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		t.set[vfspath.Normalize(p)] = struct{}{}
	}
	logging.Sub("store").Debug("tombstones loaded", "count", len(t.set))
	return t, nil
}

// Tombstones is the durable set of paths explicitly removed by the user.
// Any mirror event whose path equals, or descends from, a tombstoned path is
// suppressed until a subsequent create at that exact path clears the entry.
type Tombstones struct {
	db  *storm.DB
	mu  sync.Mutex
	set map[string]struct{}
}

// Add records a deletion. The entry is persisted before Add returns, so the
// tombstone is in place before any polling race can report the path again.
func (t *Tombstones) Add(path string) error {
	p := vfspath.Normalize(path)
	if p == "" {
		return nil // the root is never tombstoned
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.set[p]; ok {
		return nil
	}
	t.set[p] = struct{}{}
	return t.persistLocked()
}

// Clear removes the tombstone at exactly path, re-admitting events for it.
func (t *Tombstones) Clear(path string) error {
	p := vfspath.Normalize(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.set[p]; !ok {
		return nil
	}
	delete(t.set, p)
	return t.persistLocked()
}

// Covers reports whether path equals or is a strict descendant of any
// tombstoned path.
func (t *Tombstones) Covers(path string) bool {
	p := vfspath.Normalize(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	for tomb := range t.set {
		if vfspath.IsAncestor(tomb, p) {
			return true
		}
	}
	return false
}

// Paths returns the tombstoned paths in sorted order.
func (t *Tombstones) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.set))
	for p := range t.set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (t *Tombstones) persistLocked() error {
	paths := make([]string, 0, len(t.set))
	for p := range t.set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if err := t.db.Set(vfsBucket, tombstoneKey, paths); err != nil {
		return fmt.Errorf("persist deleted paths: %w", err)
	}
	return nil
}
