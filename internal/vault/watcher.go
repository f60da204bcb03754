package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Change kinds reported by Watch.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeFunc is called for every markdown file change under the vault root.
type ChangeFunc func(kind, path string)

// Watch runs an fsnotify watcher over root until ctx is cancelled and
// reports changes to .md files with vault-relative paths. Directories
// created at runtime are added to the watch list and their existing
// markdown files are reported as created.
func Watch(ctx context.Context, root string, logger *slog.Logger, cb ChangeFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	emit := func(kind, abs string) {
		rel, relErr := filepath.Rel(root, abs)
		if relErr != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		logger.Debug("watcher: change", slog.String("path", rel), slog.String("kind", kind))
		if cb != nil {
			cb(kind, rel)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					}
					walkMarkdown(abs, func(p string) { emit(ChangeCreated, p) })
					continue
				}
			}

			if !isMarkdown(abs) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				emit(ChangeCreated, abs)
			case ev.Op&fsnotify.Write != 0:
				emit(ChangeUpdated, abs)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old name; the new name arrives as Create.
				emit(ChangeDeleted, abs)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isMarkdown(p string) bool {
	base := filepath.Base(p)
	return strings.HasSuffix(base, ".md") && !strings.HasPrefix(base, ".")
}

func walkMarkdown(dir string, fn func(string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isMarkdown(p) {
			return nil
		}
		fn(p)
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
