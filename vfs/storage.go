// Package vfs defines the storage capability contract shared by every
// backend, the closed error taxonomy, and the change-event types consumed by
// the project mirror. Backends are the sole point of variation between the
// durable project store and the execution sandbox's disk; a new backend must
// implement Storage in full to be usable by the mirror.
package vfs

import (
	"context"
	"io"
	"time"
)

// Kind discriminates directory entries.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// DirectoryEntry describes one entry produced by a listing or metadata
// query. It is never persisted independently of the backend.
type DirectoryEntry struct {
	Name       string
	Path       string
	Kind       Kind
	Size       int64
	ModifiedAt time.Time
	CreatedAt  time.Time
}

// Capabilities describes what a backend can do. It is queried once per
// backend activation; callers must not assume symmetric capabilities
// between backends.
type Capabilities struct {
	CanCreateFiles       bool
	CanCreateDirectories bool
	CanDelete            bool
	CanMove              bool
	CanCopy              bool
	MaxFileSize          int64 // 0 when unknown
	AvailableSpace       int64 // 0 when unknown
	PersistenceSupported bool
	StreamingSupported   bool
	BinarySupported      bool
}

// ReadDirectoryOptions controls listing. Recursive walks depth-first.
// Pattern filters entries by name match; it is applied per entry before
// recursion continues into matched directories.
type ReadDirectoryOptions struct {
	Recursive bool
	Pattern   string
}

// EventKind classifies a backend change event.
type EventKind string

const (
	EventAddFile    EventKind = "add_file"
	EventChangeFile EventKind = "change"
	EventRemoveFile EventKind = "remove_file"
	EventAddDir     EventKind = "add_dir"
	EventRemoveDir  EventKind = "remove_dir"
)

// Event is one entry of a coalesced change batch reported by a backend
// watch. Payload carries the file content for add/change events.
type Event struct {
	Kind    EventKind
	Path    string
	Payload []byte
}

// WatchFunc receives coalesced event batches. It must not rely on delivery
// for correctness; watch is a UI convenience only.
type WatchFunc func(events []Event)

// CancelFunc stops a watch. Safe to call more than once.
type CancelFunc func()

// Storage is the operation surface every backend implements. Every failure
// is reported through the *Error taxonomy rather than a generic fault.
//
// Backend calls may suspend for unbounded time (permission prompts, storage
// I/O). This layer offers no cancellation beyond the passed context being
// consulted at operation entry; an in-flight call runs to completion or
// failure.
type Storage interface {
	// Initialize acquires root access. It is re-entrant (subsequent calls
	// are no-ops) and is the only call that may request an interactive
	// permission grant.
	Initialize(ctx context.Context) error

	// Capabilities returns the descriptor. It must not require a live
	// grant beyond Initialize.
	Capabilities() Capabilities

	// CreateFile writes a new file, creating parent directories when the
	// backend supports nested creation. Equivalent to WriteFile except it
	// is used when no prior entry is expected.
	CreateFile(ctx context.Context, path string, content []byte) error

	// WriteFile overwrites (or creates) a file, creating parents as needed.
	WriteFile(ctx context.Context, path string, content []byte) error

	// ReadFile returns the file content. In text mode invalid UTF-8 fails
	// rather than being silently replaced; binary mode returns raw bytes.
	ReadFile(ctx context.Context, path string, binary bool) ([]byte, error)

	// DeleteFile removes a single file.
	DeleteFile(ctx context.Context, path string) error

	// DeleteDirectory removes a directory. Deleting a non-empty directory
	// without recursive fails with DIRECTORY_NOT_EMPTY and removes nothing.
	// Root deletion is always rejected regardless of recursive.
	DeleteDirectory(ctx context.Context, path string, recursive bool) error

	// Exists never fails; any resolution failure reports false.
	Exists(ctx context.Context, path string) bool

	// CreateDirectory creates a directory, with parents when recursive.
	CreateDirectory(ctx context.Context, path string, recursive bool) error

	// ReadDirectory lists entries in no guaranteed order.
	ReadDirectory(ctx context.Context, path string, opts ReadDirectoryOptions) ([]DirectoryEntry, error)

	// GetFileInfo resolves metadata, disambiguating file vs directory by
	// attempting file resolution first.
	GetFileInfo(ctx context.Context, path string) (*DirectoryEntry, error)

	// Copy duplicates a file or directory tree. Cost is linear in total
	// transferred bytes; there is no backend-level optimization.
	Copy(ctx context.Context, source, destination string) error

	// Move is copy followed by best-effort deletion of the source. It is
	// not atomic: a failure mid-copy can leave both the source and a
	// partial destination.
	Move(ctx context.Context, source, destination string) error

	// CreateReadStream opens the file for large-payload reads without
	// buffering the whole content.
	CreateReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// CreateWriteStream opens the file for large-payload writes, creating
	// parents as needed.
	CreateWriteStream(ctx context.Context, path string) (io.WriteCloser, error)

	// Watch registers a best-effort change listener. Backends without
	// native notification may poll, or return a no-op cancel.
	Watch(path string, fn WatchFunc) (CancelFunc, error)

	// Cleanup releases cached handles. Safe to call multiple times.
	Cleanup() error
}
