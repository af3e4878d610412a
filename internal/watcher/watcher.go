// internal/watcher/watcher.go
//
// Mirrors host-filesystem changes under the project root into the
// stable overlay, keeping stable the canonical copy of the repository.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/cairnhq/cairn/internal/overlay"
)

// defaultIgnores are path segments never mirrored into stable.
var defaultIgnores = []string{".agentfs", ".git", ".jj", "__pycache__", "node_modules"}

// Watcher syncs project-root file changes into the stable overlay.
type Watcher struct {
	projectRoot string
	stable      *overlay.Overlay
	ignores     []string
}

// New creates a watcher for projectRoot feeding stable.
func New(projectRoot string, stable *overlay.Overlay) *Watcher {
	return &Watcher{
		projectRoot: projectRoot,
		stable:      stable,
		ignores:     defaultIgnores,
	}
}

// InitialSync walks the project root once and writes every non-ignored
// file into stable. Used at startup before event watching begins.
func (w *Watcher) InitialSync() error {
	return filepath.WalkDir(w.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if w.shouldIgnore(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.projectRoot, path)
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("[watcher] skip %s: %v\n", rel, err)
			return nil
		}
		return w.stable.WriteFile(filepath.ToSlash(rel), data)
	})
}

// Watch blocks mirroring filesystem events until the context ends.
// Subdirectories created while watching are added to the watch set.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.projectRoot); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("[watcher] %v\n", err)
		}
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	rel, err := filepath.Rel(w.projectRoot, event.Name)
	if err != nil {
		return
	}
	relSlash := filepath.ToSlash(rel)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := w.stable.Delete(relSlash); err != nil {
			fmt.Printf("[watcher] delete %s: %v\n", relSlash, err)
		}
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				w.addRecursive(fsw, event.Name)
			}
			return
		}
		data, err := os.ReadFile(event.Name)
		if err != nil {
			return
		}
		if err := w.stable.WriteFile(relSlash, data); err != nil {
			fmt.Printf("[watcher] write %s: %v\n", relSlash, err)
		}
	}
}

// shouldIgnore reports whether any segment of path is in the ignore
// list or the path escapes the project root.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.projectRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, ignore := range w.ignores {
			if part == ignore {
				return true
			}
		}
	}
	return false
}
