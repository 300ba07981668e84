package bundle

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures the source watcher.
type WatchOptions struct {
	// Root is the project directory to watch recursively.
	Root string

	// Skip lists directories excluded from watching, typically the build
	// output root.
	Skip []string

	// Ignore filters project-relative paths.
	Ignore *Matcher

	// Debounce is the quiet period before a batch is delivered.
	Debounce time.Duration

	Logger *slog.Logger
}

// DefaultWatchOptions returns the default watcher settings.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Debounce: 200 * time.Millisecond,
		Logger:   slog.Default(),
	}
}

// Watch watches opts.Root and calls fn with each debounced batch of changed
// paths. It blocks until ctx is cancelled.
func Watch(ctx context.Context, opts WatchOptions, fn func(paths []string)) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return fmt.Errorf("resolving watch root %q: %w", opts.Root, err)
	}

	f := &filter{root: root, ignore: opts.Ignore}

	for _, s := range opts.Skip {
		abs, absErr := filepath.Abs(s)
		if absErr != nil {
			return fmt.Errorf("resolving skipped directory %q: %w", s, absErr)
		}

		f.skip = append(f.skip, abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root, f); err != nil {
		return fmt.Errorf("watching project directory: %w", err)
	}

	opts.Logger.Debug("watching", slog.String("root", root), slog.Duration("debounce", opts.Debounce))

	debouncer := NewDebouncer(opts.Debounce, fn)
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) || !f.allowed(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name, f)
				}
			}

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// filter decides which paths below root take part in the build.
type filter struct {
	root   string
	skip   []string
	ignore *Matcher
}

func (f *filter) allowed(p string) bool {
	for _, s := range f.skip {
		if p == s || strings.HasPrefix(p, s+string(filepath.Separator)) {
			return false
		}
	}

	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == "." {
		return true
	}

	return !f.ignore.Match(rel)
}

// addRecursive walks dir and adds every allowed directory to the watcher.
func addRecursive(watcher *fsnotify.Watcher, dir string, f *filter) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if p != f.root && !f.allowed(p) {
			return filepath.SkipDir
		}

		return watcher.Add(p)
	})
}

// isRelevant keeps content changes and drops metadata-only events.
func isRelevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
