// Package syncer replicates the persistent project tree into the execution
// sandbox's disk so build tools and dev servers see current content. The
// replication is one-directional and best-effort: each tick performs a full
// pass, failures are logged and retried on the next tick, and a restarted
// sandbox self-heals without operator intervention. Deletions are not
// propagated; the sandbox keeps removed files for the rest of the session,
// an accepted asymmetry of this design.
package syncer

import (
	"context"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"github.com/marusama/semaphore/v2"
	"github.com/samber/lo"

	"github.com/yuki-matsu783/electron-bolt/logging"
	"github.com/yuki-matsu783/electron-bolt/sandboxfs"
	"github.com/yuki-matsu783/electron-bolt/vfs"
	"github.com/yuki-matsu783/electron-bolt/vfspath"
)

const (
	defaultInterval  = 3 * time.Second
	defaultTransfers = 4
)

func sub(component string) *slog.Logger { return logging.Sub(component) }

// Options tunes the synchronizer.
type Options struct {
	// Interval between ticks. A tick always completes (or fails) before
	// the next one is scheduled; ticks never overlap. Defaults to 3s.
	Interval time.Duration

	// MaxTransfers bounds concurrent file transfers inside one tick.
	// Defaults to 4.
	MaxTransfers int

	// Ignore filters entries out of replication, nil replicates all.
	Ignore IgnoreFunc
}

// IgnoreFunc reports whether an entry should be excluded from replication.
type IgnoreFunc func(name string, isDir bool) bool

// Syncer pushes the persistent backend's tree into the sandbox disk.
type Syncer struct {
	source vfs.Storage
	dest   *sandboxfs.Disk
	opts   Options
	sem    semaphore.Semaphore
}

// New creates a Syncer between the persistent backend and the sandbox disk.
func New(source vfs.Storage, dest *sandboxfs.Disk, opts Options) *Syncer {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxTransfers <= 0 {
		opts.MaxTransfers = defaultTransfers
	}
	return &Syncer{
		source: source,
		dest:   dest,
		opts:   opts,
		sem:    semaphore.New(opts.MaxTransfers),
	}
}

// Run ticks for the lifetime of the sandbox session. The next tick is
// scheduled only after the previous one finished, so two full-tree copies
// can never race on the same destination paths. Blocks until ctx is
// cancelled.
func (s *Syncer) Run(ctx context.Context) {
	l := sub("syncer")
	l.Info("synchronizer started", "interval", s.opts.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("synchronizer stopped")
			return
		case <-timer.C:
		}

		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			// A failed tick is logged, never fatal: the job is
			// continuous best-effort replication.
			l.Error("sync tick failed", "err", err)
		}
		timer.Reset(s.opts.Interval)
	}
}

// Tick replicates the full tree once: a recursive listing of the source,
// every directory created first (parents are guaranteed before any file
// lands), then every file's content read and written across. Per-entry
// failures are logged and skipped.
func (s *Syncer) Tick(ctx context.Context) error {
	l := sub("syncer")
	start := time.Now()

	entries, err := s.source.ReadDirectory(ctx, "", vfs.ReadDirectoryOptions{Recursive: true})
	if err != nil {
		return err
	}
	entries = s.filter(entries)

	dirs := lo.Filter(entries, func(e vfs.DirectoryEntry, _ int) bool { return e.Kind == vfs.KindDirectory })
	files := lo.Filter(entries, func(e vfs.DirectoryEntry, _ int) bool { return e.Kind == vfs.KindFile })

	// Shallower directories first so every parent exists before children.
	sort.Slice(dirs, func(i, j int) bool { return vfspath.Depth(dirs[i].Path) < vfspath.Depth(dirs[j].Path) })

	for _, dir := range dirs {
		if err := s.dest.MkdirAll(ctx, dir.Path); err != nil {
			l.Warn("mkdir failed, skipping", "path", dir.Path, "err", err)
		}
	}

	var wg gosync.WaitGroup
	for _, file := range files {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break // context cancelled mid-tick
		}
		wg.Add(1)
		go func(entry vfs.DirectoryEntry) {
			defer wg.Done()
			defer s.sem.Release(1)
			s.transfer(ctx, entry)
		}(file)
	}
	wg.Wait()

	if logEnabled(slog.LevelDebug) {
		l.Debug("tick complete", "dirs", len(dirs), "files", len(files), "took", time.Since(start))
	}
	return ctx.Err()
}

// transfer copies one file across. A source that moves under the read is
// skipped; the next tick picks up the settled content.
func (s *Syncer) transfer(ctx context.Context, entry vfs.DirectoryEntry) {
	l := sub("syncer")

	content, err := s.source.ReadFile(ctx, entry.Path, true)
	if err != nil {
		l.Warn("read failed, skipping", "path", entry.Path, "err", err)
		return
	}

	// Torn-snapshot guard: a foreground write may land mid-tick.
	info, err := s.source.GetFileInfo(ctx, entry.Path)
	if err != nil || !info.ModifiedAt.Equal(entry.ModifiedAt) {
		l.Debug("source changed during transfer, deferring to next tick", "path", entry.Path)
		return
	}

	if err := s.dest.WriteFile(ctx, entry.Path, content); err != nil {
		l.Warn("write failed, skipping", "path", entry.Path, "err", err)
	}
}

func (s *Syncer) filter(entries []vfs.DirectoryEntry) []vfs.DirectoryEntry {
	if s.opts.Ignore == nil {
		return entries
	}
	var skipped []string
	out := entries[:0]
	for _, e := range entries {
		if s.opts.Ignore(e.Name, e.Kind == vfs.KindDirectory) {
			if e.Kind == vfs.KindDirectory {
				skipped = append(skipped, e.Path)
			}
			continue
		}
		under := false
		for _, dir := range skipped {
			if vfspath.IsAncestor(dir, e.Path) {
				under = true
				break
			}
		}
		if !under {
			out = append(out, e)
		}
	}
	return out
}

func logEnabled(level slog.Level) bool { return logging.Enabled(level) }
