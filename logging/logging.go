// Package logging holds the process-wide structured logger shared by the
// filesystem layer. Console output is always on (INFO to stdout, WARN and
// above to stderr); when a log directory is configured, level-split rotating
// files are added on top.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logger defaults to a no-op handler until Init is called, so library use
// without CLI setup stays silent.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init configures the shared logger. If logDir is non-empty, it also writes
// level-split log files:
//   - fs_warn.log:  WARN and ERROR
//   - fs_info.log:  INFO only (1MB, 1 backup)
//   - fs_debug.log: DEBUG only (1MB, 1 backup)
func Init(logDir string) {
	console := &consoleHandler{
		stdout: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		stderr: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}

	handlers := []slog.Handler{console, &errorCaptureHandler{}}

	if logDir != "" {
		os.MkdirAll(logDir, 0750) //nolint:errcheck

		warnFile := slog.NewTextHandler(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "fs_warn.log"),
			MaxSize:    1000,
			MaxBackups: 3,
		}, &slog.HandlerOptions{Level: slog.LevelWarn})

		infoFile := &levelRangeHandler{
			min: slog.LevelInfo,
			max: slog.LevelInfo,
			inner: slog.NewTextHandler(&lumberjack.Logger{
				Filename:   filepath.Join(logDir, "fs_info.log"),
				MaxSize:    1,
				MaxBackups: 1,
			}, &slog.HandlerOptions{Level: slog.LevelInfo}),
		}

		debugFile := &levelRangeHandler{
			min: slog.LevelDebug,
			max: slog.LevelDebug,
			inner: slog.NewTextHandler(&lumberjack.Logger{
				Filename:   filepath.Join(logDir, "fs_debug.log"),
				MaxSize:    1,
				MaxBackups: 1,
			}, &slog.HandlerOptions{Level: slog.LevelDebug}),
		}

		handlers = append(handlers, warnFile, infoFile, debugFile)
	}

	logger = slog.New(&multiHandler{handlers: handlers})
}

// Sub returns a child logger tagged with the given component name.
func Sub(component string) *slog.Logger {
	return logger.With("comp", component)
}

// Enabled reports whether the given level is enabled. Use it to guard
// expensive DEBUG logging in hot paths.
func Enabled(level slog.Level) bool {
	return logger.Enabled(context.Background(), level)
}

// --- consoleHandler: routes INFO→stdout, WARN+→stderr ---

type consoleHandler struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderr.Handle(ctx, r)
	}
	return h.stdout.Handle(ctx, r)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{stdout: h.stdout.WithAttrs(attrs), stderr: h.stderr.WithAttrs(attrs)}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return &consoleHandler{stdout: h.stdout.WithGroup(name), stderr: h.stderr.WithGroup(name)}
}

// --- errorCapture: keeps the most recent error-level entries for the UI ---

// Entry is a captured error log record. Permission and quota failures are
// the two conditions users can act on, so the UI polls these to surface
// them distinctly from generic filesystem faults.
type Entry struct {
	Comp    string `json:"comp"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

const errorRingSize = 8

var errorRing struct {
	mu      sync.Mutex
	entries [errorRingSize]Entry
	count   int
}

// RecentErrors returns the most recent error entries, newest first.
func RecentErrors() []Entry {
	errorRing.mu.Lock()
	defer errorRing.mu.Unlock()
	n := errorRing.count
	if n > errorRingSize {
		n = errorRingSize
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = errorRing.entries[(errorRing.count-1-i+errorRingSize)%errorRingSize]
	}
	return out
}

type errorCaptureHandler struct {
	attrs []slog.Attr
}

func (h *errorCaptureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *errorCaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := Entry{Message: r.Message}
	capture := func(a slog.Attr) bool {
		switch a.Key {
		case "comp":
			entry.Comp = a.Value.String()
		case "err":
			entry.Error = a.Value.String()
		}
		return true
	}
	// Sub-logger attrs arrive via WithAttrs, per-call attrs on the record.
	for _, a := range h.attrs {
		capture(a)
	}
	r.Attrs(capture)
	errorRing.mu.Lock()
	errorRing.entries[errorRing.count%errorRingSize] = entry
	errorRing.count++
	errorRing.mu.Unlock()
	return nil
}

func (h *errorCaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &errorCaptureHandler{attrs: merged}
}

func (h *errorCaptureHandler) WithGroup(_ string) slog.Handler { return h }

// --- levelRangeHandler: passes only a specific level range ---

type levelRangeHandler struct {
	min, max slog.Level
	inner    slog.Handler
}

func (h *levelRangeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min && level <= h.max
}

func (h *levelRangeHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelRangeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelRangeHandler) WithGroup(name string) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithGroup(name)}
}

// --- multiHandler: fans out to multiple handlers ---

type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
