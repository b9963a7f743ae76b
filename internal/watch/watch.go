// Package watch turns filesystem event bursts into single change
// notifications so a caller can re-run verification after edits settle.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a directory tree and coalesces rapid event bursts
// (an editor save touches several files) into one notification per
// quiet period.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	ignores   []string
	debounce  time.Duration
	changes   chan struct{}
	logger    *slog.Logger
}

// New creates a watcher over the tree rooted at root. Paths under any
// of the ignore directories are not reported; the evidence pack output
// directory goes here so a run does not trigger the next one.
func New(root string, ignores []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	absIgnores := make([]string, 0, len(ignores))
	for _, ignore := range ignores {
		abs, err := filepath.Abs(ignore)
		if err != nil {
			continue
		}
		absIgnores = append(absIgnores, abs)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		root:      absRoot,
		ignores:   absIgnores,
		debounce:  debounce,
		changes:   make(chan struct{}, 1),
		logger:    logger,
	}

	if err := w.addTree(absRoot); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// Changes delivers one value per settled burst of filesystem events.
// The channel is never closed; stop consuming when the context given to
// Start is cancelled.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start runs the event loop in the background until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close releases the underlying filesystem watcher
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

// addTree registers every directory under path, skipping hidden
// directories and the ignore list
func (w *Watcher) addTree(path string) error {
	return filepath.WalkDir(path, func(entry string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Directories can vanish mid-walk in a live tree
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if entry != path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if w.ignored(entry) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(entry); err != nil {
			w.logger.Warn("failed to watch directory", "path", entry, "error", err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, ignore := range w.ignores {
		rel, err := filepath.Rel(ignore, path)
		if err != nil {
			continue
		}
		if rel == "." || !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("filesystem event", "op", event.Op.String(), "path", event.Name)

			// New directories need their own watch before their
			// contents produce events
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			select {
			case w.changes <- struct{}{}:
			default:
				// A notification is already pending; the burst folds
				// into it
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant filters events down to content changes in watched territory
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return !w.ignored(event.Name)
}
