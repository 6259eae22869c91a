// Package watch turns file system activity under a tree into debounced sync
// triggers.
//
// A burst of events (an editor save, a git checkout) collapses into a single
// trigger once the tree has been quiet for the debounce interval. Triggers run
// in their own goroutine and are never queued: when one is still running the
// next one overlaps it, and it is up to the trigger to reject the overlap.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/scanner"
)

// DefaultDebounce is used when no positive debounce interval is configured.
const DefaultDebounce = 2 * time.Second

// Trigger is invoked once per quiet period after a change.
type Trigger func(ctx context.Context)

// Watcher watches a directory tree recursively.
type Watcher struct {
	root     string
	matcher  *scanner.PatternMatcher
	debounce time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPatterns sets the include and exclude patterns events are filtered by.
// They should be the patterns the scanner uses.
func WithPatterns(include, exclude []string) Option {
	return func(w *Watcher) {
		w.matcher = scanner.NewPatternMatcher(include, exclude)
	}
}

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithClock sets the clock driving the debounce timer.
func WithClock(clock clockwork.Clock) Option {
	return func(w *Watcher) {
		w.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher for the host directory root.
func New(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		matcher:  scanner.NewPatternMatcher(nil, nil),
		debounce: DefaultDebounce,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled, calling trigger after every quiet
// period that follows a relevant change. It waits for running triggers
// before returning.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching tree", "root", w.root, "debounce", w.debounce)

	changes := make(chan struct{}, 1)
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		debounce(ctx, w.clock, w.debounce, changes, func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				trigger(ctx)
			}()
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(fsw, event) {
				notify(changes)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; a sync rescans everything anyway.
				notify(changes)
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handle reports whether event concerns the synced tree, adding watches for
// newly created directories on the way.
func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, ok := w.relative(event.Name)
	if !ok || rel == "" {
		return false
	}
	if w.excludedDir(rel) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return true
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// The path is gone, it may have been a directory.
		return true
	}
	return w.matcher.ShouldInclude(rel)
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.relative(p); ok && rel != "" && w.matcher.ExcludesDir(rel) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// relative converts a host path to a slash-separated tree path.
func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

// excludedDir reports whether rel or any of its parent directories is excluded.
func (w *Watcher) excludedDir(rel string) bool {
	for dir := rel; dir != "." && dir != "/" && dir != ""; {
		if w.matcher.ExcludesDir(dir) {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}

func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// debounce calls fire once d has passed since the last value received on in.
func debounce(ctx context.Context, clock clockwork.Clock, d time.Duration, in <-chan struct{}, fire func()) {
	var (
		timer   clockwork.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-in:
			if timer == nil {
				timer = clock.NewTimer(d)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.Chan():
					default:
					}
				}
				timer.Reset(d)
			}
			timerCh = timer.Chan()

		case <-timerCh:
			timerCh = nil
			fire()
		}
	}
}
