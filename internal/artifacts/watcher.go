package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce delays the commit callback so bursts of events for one
// version collapse into a single call.
const DefaultDebounce = 250 * time.Millisecond

// CommitFunc is told about a version whose metadata appeared on disk.
type CommitFunc func(name, version string)

// Watcher reports versions committed to the store by other processes
// (or by this one), once per version. It follows new model and version
// directories as they are created.
type Watcher struct {
	store    *Store
	logger   *zap.Logger
	debounce time.Duration
	onCommit CommitFunc

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	reported map[string]bool
}

// NewWatcher prepares a watcher over store. A zero debounce uses
// DefaultDebounce.
func NewWatcher(store *Store, logger *zap.Logger, debounce time.Duration, onCommit CommitFunc) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact watcher: %w", err)
	}
	return &Watcher{
		store:    store,
		logger:   logger.Named("artifact-watcher"),
		debounce: debounce,
		onCommit: onCommit,
		fsw:      fsw,
		pending:  map[string]*time.Timer{},
		reported: map[string]bool{},
	}, nil
}

// Start registers watches on the store and processes events in the
// background until ctx is done. Saves made after Start returns are
// observed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.store.Root()); err != nil {
		w.stop()
		return fmt.Errorf("watch artifact root: %w", err)
	}
	entries, err := os.ReadDir(w.store.Root())
	if err != nil {
		w.stop()
		return fmt.Errorf("scan artifact root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchModel(e.Name(), false)
		}
	}

	go w.watchForChanges(ctx)

	w.logger.Info("Artifact watcher started", zap.String("root", w.store.Root()))
	return nil
}

func (w *Watcher) watchForChanges(ctx context.Context) {
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.handle(event.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Artifact watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(path string) {
	rel, err := filepath.Rel(w.store.Root(), path)
	if err != nil {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))
	switch len(parts) {
	case 1:
		if isDir(path) {
			w.watchModel(parts[0], true)
		}
	case 2:
		if isDir(path) {
			w.watchVersion(parts[0], parts[1])
		}
	case 3:
		if parts[2] == MetadataFile {
			w.schedule(parts[0], parts[1])
		}
	}
}

// watchModel follows the version directories of name. With announce set,
// versions already committed are reported too; they were written
// before the watch on the new model directory existed.
func (w *Watcher) watchModel(name string, announce bool) {
	dir := filepath.Join(w.store.Root(), name)
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("Failed to watch model directory", zap.String("path", dir), zap.Error(err))
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if committed(filepath.Join(dir, e.Name())) {
			if announce {
				w.schedule(name, e.Name())
			}
			continue
		}
		w.watchVersion(name, e.Name())
	}
}

func (w *Watcher) watchVersion(name, version string) {
	dir := filepath.Join(w.store.Root(), name, version)
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("Failed to watch version directory", zap.String("path", dir), zap.Error(err))
		return
	}
	if committed(dir) {
		w.schedule(name, version)
	}
}

func (w *Watcher) schedule(name, version string) {
	key := name + "@" + version
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reported[key] {
		return
	}
	if t, ok := w.pending[key]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.reported[key] = true
		w.mu.Unlock()

		_ = w.fsw.Remove(filepath.Join(w.store.Root(), name, version))
		w.logger.Debug("Artifact committed", zap.String("model", name), zap.String("version", version))
		w.onCommit(name, version)
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for key, t := range w.pending {
		t.Stop()
		delete(w.pending, key)
	}
	w.mu.Unlock()
	w.fsw.Close()
}

func committed(versionDir string) bool {
	_, err := os.Stat(filepath.Join(versionDir, MetadataFile))
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
