package opfs

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/yuki-matsu783/electron-bolt/vfs"
	"github.com/yuki-matsu783/electron-bolt/vfspath"
)

const (
	debounceInterval    = 300 * time.Millisecond
	defaultPollInterval = 2 * time.Second
)

// Watch registers a best-effort change listener under path. On OS-backed
// stores it uses native notification with debounce; otherwise it polls and
// diffs snapshots. A watcher malfunction degrades to "no live updates" and
// never surfaces as a failure to unrelated code.
func (s *Storage) Watch(path string, fn vfs.WatchFunc) (vfs.CancelFunc, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	w := &watchSession{s: s, base: p, fn: fn, done: make(chan struct{})}
	if snap, err := w.snapshot(); err == nil {
		w.prev = snap
	} else {
		w.prev = map[string]snapEntry{}
	}
	go w.run()

	cancel := w.stop
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()
	return cancel, nil
}

type snapEntry struct {
	isDir   bool
	modTime int64
	size    int64
}

type watchSession struct {
	s    *Storage
	base string
	fn   vfs.WatchFunc
	done chan struct{}

	stopOnce sync.Once
	prev     map[string]snapEntry
}

func (w *watchSession) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *watchSession) run() {
	l := sub("watch")
	if w.s.osRoot != "" {
		if err := w.runNative(l); err == nil {
			return
		} else {
			l.Warn("native watch unavailable, falling back to polling", "base", w.base, "err", err)
		}
	}
	w.runPolling(l)
}

// runNative debounces fsnotify events and flushes coalesced batches.
func (w *watchSession) runNative(l *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	root := filepath.Join(w.s.osRoot, filepath.FromSlash(w.base))
	if err := w.addRecursive(watcher, root); err != nil {
		return err
	}
	l.Debug("native watch started", "root", root)

	timer := time.NewTimer(debounceInterval)
	timer.Stop()
	dirty := false

	for {
		select {
		case <-w.done:
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") {
				continue
			}
			dirty = true
			timer.Reset(debounceInterval)
			if event.Has(fsnotify.Create) {
				// New directories need their own watch; adding a file
				// path is a harmless no-op.
				watcher.Add(event.Name) //nolint:errcheck
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch error", "err", err)

		case <-timer.C:
			if dirty {
				dirty = false
				w.flush(l)
			}
		}
	}
}

func (w *watchSession) runPolling(l *slog.Logger) {
	interval := w.s.opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	l.Debug("polling watch started", "base", w.base, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flush(l)
		}
	}
}

// flush snapshots the tree and emits one coalesced batch for the delta.
func (w *watchSession) flush(l *slog.Logger) {
	cur, err := w.snapshot()
	if err != nil {
		l.Debug("snapshot failed, skipping flush", "base", w.base, "err", err)
		return
	}
	events := w.diff(w.prev, cur)
	w.prev = cur
	if len(events) == 0 {
		return
	}
	if logEnabled(slog.LevelDebug) {
		l.Debug("flushing change batch", "base", w.base, "events", len(events))
	}
	w.fn(events)
}

func (w *watchSession) snapshot() (map[string]snapEntry, error) {
	snap := make(map[string]snapEntry)
	root := fsPath(w.base)
	err := afero.Walk(w.s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		rel := vfspath.Normalize(path)
		if rel == w.base {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") || w.s.opts.Ignore.Match(name, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		snap[rel] = snapEntry{
			isDir:   info.IsDir(),
			modTime: info.ModTime().UnixNano(),
			size:    info.Size(),
		}
		return nil
	})
	return snap, err
}

// diff orders events directories-first for additions and deepest-first for
// removals so a consumer applying them sequentially never sees an orphaned
// child.
func (w *watchSession) diff(prev, cur map[string]snapEntry) []vfs.Event {
	var addDirs, addFiles, changed, removed []string

	for p, e := range cur {
		old, ok := prev[p]
		switch {
		case !ok && e.isDir:
			addDirs = append(addDirs, p)
		case !ok:
			addFiles = append(addFiles, p)
		case !e.isDir && (old.modTime != e.modTime || old.size != e.size):
			changed = append(changed, p)
		}
	}
	for p := range prev {
		if _, ok := cur[p]; !ok {
			removed = append(removed, p)
		}
	}

	sort.Slice(addDirs, func(i, j int) bool { return vfspath.Depth(addDirs[i]) < vfspath.Depth(addDirs[j]) })
	sort.Strings(addFiles)
	sort.Strings(changed)
	sort.Slice(removed, func(i, j int) bool { return vfspath.Depth(removed[i]) > vfspath.Depth(removed[j]) })

	var events []vfs.Event
	for _, p := range addDirs {
		events = append(events, vfs.Event{Kind: vfs.EventAddDir, Path: p})
	}
	for _, p := range addFiles {
		events = append(events, vfs.Event{Kind: vfs.EventAddFile, Path: p, Payload: w.payload(p)})
	}
	for _, p := range changed {
		events = append(events, vfs.Event{Kind: vfs.EventChangeFile, Path: p, Payload: w.payload(p)})
	}
	for _, p := range removed {
		kind := vfs.EventRemoveFile
		if prev[p].isDir {
			kind = vfs.EventRemoveDir
		}
		events = append(events, vfs.Event{Kind: kind, Path: p})
	}
	return events
}

func (w *watchSession) payload(p string) []byte {
	content, err := afero.ReadFile(w.s.fs, fsPath(p))
	if err != nil {
		return nil
	}
	return content
}

func (w *watchSession) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if path != root && (strings.HasPrefix(name, ".") || w.s.opts.Ignore.Match(name, true)) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
