package texttemplar

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader reads template files and caches the parsed Documents keyed by
// absolute path, using the file's modification time as the freshness token.
// A cache hit hands out an Instance of the stored Document, so every Load
// call gets independent parameter stores over shared structure. The core
// parser never touches the filesystem; all I/O lives here.
type Loader struct {
	mu      sync.Mutex
	entries map[string]*loaderEntry
	opts    []Option
	logger  *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type loaderEntry struct {
	modTime time.Time
	doc     *Document
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithParseOptions sets the options applied to every parse the loader
// performs.
func WithParseOptions(opts ...Option) LoaderOption {
	return func(l *Loader) { l.opts = opts }
}

// WithLoaderLogger attaches a debug logger for cache hits and misses.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader. Call Watch to enable event-based
// invalidation.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{entries: map[string]*loaderEntry{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns a render-ready Document for the template file at path,
// parsing it only when the cache has no fresh entry.
func (l *Loader) Load(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &SourceAccessError{Path: path, Cause: err}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, &SourceAccessError{Path: path, Cause: err}
	}

	l.mu.Lock()
	if e, ok := l.entries[abs]; ok && e.modTime.Equal(fi.ModTime()) {
		doc := e.doc
		l.mu.Unlock()
		if l.logger != nil {
			l.logger.Debug("template cache hit", "path", abs)
		}
		return doc.Instance(), nil
	}
	l.mu.Unlock()

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, &SourceAccessError{Path: path, Cause: err}
	}
	doc, err := Parse(normalizeNewlines(string(raw)), l.opts...)
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Debug("template parsed from file", "path", abs, "bytes", len(raw))
	}

	l.mu.Lock()
	l.entries[abs] = &loaderEntry{modTime: fi.ModTime(), doc: doc}
	watcher := l.watcher
	l.mu.Unlock()

	if watcher != nil {
		// Watch the directory so renames and editor replace-writes are
		// seen even when the inode changes.
		_ = watcher.Add(filepath.Dir(abs))
	}
	return doc.Instance(), nil
}

// Invalidate drops the cache entry for path, if any.
func (l *Loader) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	l.mu.Lock()
	delete(l.entries, abs)
	l.mu.Unlock()
}

// Watch starts filesystem-event based invalidation. Entries for files that
// are written, removed or renamed are dropped so the next Load re-parses.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.watcher = watcher
	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()
	go l.watchLoop(watcher, done)
	return nil
}

func (l *Loader) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) == 0 {
				continue
			}
			l.mu.Lock()
			if _, cached := l.entries[ev.Name]; cached {
				delete(l.entries, ev.Name)
				if l.logger != nil {
					l.logger.Debug("template invalidated", "path", ev.Name, "op", ev.Op.String())
				}
			}
			l.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if l.logger != nil && err != nil {
				l.logger.Debug("watcher error", "error", err)
			}
		}
	}
}

// Close stops the watcher, if one was started.
func (l *Loader) Close() error {
	l.mu.Lock()
	watcher := l.watcher
	done := l.done
	l.watcher = nil
	l.done = nil
	l.mu.Unlock()
	if watcher == nil {
		return nil
	}
	close(done)
	return watcher.Close()
}

// LoadString is a convenience for sources that are already in memory, e.g.
// templates shipped inside the binary. It applies the loader's parse
// options but never caches.
func (l *Loader) LoadString(src string) (*Document, error) {
	return Parse(src, l.opts...)
}

// normalizeNewlines converts CRLF line endings before parsing, so templates
// written on Windows render with the same line structure.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
